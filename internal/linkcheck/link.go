package linkcheck

// LinkKind categorizes where a link was found.
type LinkKind string

const (
	LinkKindHref   LinkKind = "href"   // a/link href in HTML
	LinkKindSrc    LinkKind = "src"    // img/script src in HTML
	LinkKindInline LinkKind = "inline" // inline Markdown link
	LinkKindImage  LinkKind = "image"  // Markdown image
	LinkKindAuto   LinkKind = "auto"   // Markdown autolink
	LinkKindRefDef LinkKind = "refdef" // Markdown reference definition
)

// Link is a single outgoing reference extracted from a document.
type Link struct {
	Kind        LinkKind
	Destination string
}

// BrokenLink records a link that failed verification.
type BrokenLink struct {
	SourceFile  string `json:"source_file"`
	Destination string `json:"destination"`
	Reason      string `json:"reason"`
}

// Report summarizes a link check run.
type Report struct {
	Checked int
	Broken  []BrokenLink
}

// OK reports whether no broken links were found.
func (r *Report) OK() bool { return len(r.Broken) == 0 }
