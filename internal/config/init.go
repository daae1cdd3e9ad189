package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# docmake configuration
project:
  name: "My Project"

builder:
  # Executable used to build the documentation. Must accept the
  # "-M <target> <sourcedir> <builddir>" calling convention.
  binary: sphinx-build
  source_dir: docs
  build_dir: docs/_build
  # Extra options passed through to every builder invocation.
  # opts: ["-W", "--keep-going"]

publish:
  branch: gh-pages
  remote: origin
  # remote_url: git@github.com:example/project.git
  message: "Update documentation"
  # cname: docs.example.com
  # author_name: Docs Bot
  # author_email: docs@example.com
  # auth:
  #   type: token
  #   token: ${GIT_TOKEN}

linkcheck:
  external: false
  timeout: 10s
  # nats_url: nats://localhost:4222

serve:
  watch: true
  linkcheck: true
  rebuild_interval: 1h
  metrics_addr: ":9090"
`

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
