// Package template loads markdown command templates into a registry.
//
// A template is a markdown file, optionally starting with a YAML
// front-matter block:
//
//	---
//	description: Scaffold a new project
//	argument-hint: [framework] [project-name]
//	scope: ["{{args[1]}}/"]
//	---
//	Create a {{args[0]}} project named {{args[1]}}.
//
// The command name is the front-matter name, or the file path relative to
// its command directory with the .md suffix removed and nested directories
// joined by ":" (git/commit.md becomes git:commit). The description falls
// back to the first markdown heading. argument-hint is kept verbatim for
// help output and never used for validation.
//
// # Placeholders
//
// Bodies may reference the invocation input with {{args}} (the raw input)
// and {{args[N]}} (the N-th token). Inner whitespace is allowed. A
// backslash escapes a placeholder: \{{args}} renders as {{args}}. Any other
// {{...}} text is left alone.
//
// # Loading
//
// Load never fails as a whole. Malformed files and duplicate names are
// reported per file through a *LoadError while the remaining templates load.
// Source keeps the current registry and Watcher reloads it when files change.
package template
