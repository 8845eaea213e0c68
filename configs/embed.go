// Package configs provides embedded configuration templates for ragindex.
//
// Templates are embedded at build time so every distribution carries them.
// They are written by:
//   - `ragindex config init` (user config at ~/.config/ragindex/config.yaml)
//   - `ragindex config init --project` (.ragindex.yaml in the project root)
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config
//  3. Project config (.ragindex.yaml, .ragindex.yml or .ragindex.toml)
//  4. Environment variables (RAGINDEX_*)
package configs

import _ "embed"

// UserConfigTemplate holds machine-level settings: embedding provider,
// Ollama host, log level.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate holds project-level settings: sources, excludes,
// storage backends.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
