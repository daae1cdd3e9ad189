package builder

// Target names a documentation builder target. Well-known targets carry a
// description for listing; any other name is still forwarded to the builder
// unchanged (the builder decides whether it exists).
type Target struct {
	Name        string
	Description string
}

// DefaultTarget is used when no target is given on the command line.
const DefaultTarget = "html"

// HelpTarget asks the builder to print its own target listing.
const HelpTarget = "help"

// knownTargets mirrors the target set of the sphinx-build "-M" interface.
var knownTargets = []Target{
	{Name: "html", Description: "Standalone HTML files"},
	{Name: "dirhtml", Description: "HTML files named index.html in directories"},
	{Name: "singlehtml", Description: "Single large HTML file"},
	{Name: "epub", Description: "EPUB e-book"},
	{Name: "latex", Description: "LaTeX files"},
	{Name: "latexpdf", Description: "PDF via LaTeX"},
	{Name: "man", Description: "Manual pages"},
	{Name: "text", Description: "Plain text files"},
	{Name: "gettext", Description: "PO message catalogs"},
	{Name: "doctest", Description: "Run doctests embedded in the documentation"},
	{Name: "linkcheck", Description: "Check integrity of external links (builder-side)"},
	{Name: "changes", Description: "Overview of changed/added/deprecated items"},
	{Name: "help", Description: "Print the builder's target listing"},
}

// KnownTargets returns the well-known target list for display.
func KnownTargets() []Target {
	out := make([]Target, len(knownTargets))
	copy(out, knownTargets)
	return out
}

// Lookup returns the well-known target with the given name, if any.
func Lookup(name string) (Target, bool) {
	for _, t := range knownTargets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}
