// Package gitignore matches paths against .gitignore-style rule files.
//
// Rule semantics:
//   - blank lines and lines starting with # are ignored (\# escapes)
//   - a simple name or glob without a slash ("*.log", "build") applies only
//     to entries directly inside the directory that owns the rule file;
//     prefix it with **/ to match at any depth
//   - a pattern containing a slash, or starting with /, is anchored to the
//     owning directory
//   - * matches within a path segment, ** across segments, ? one character
//   - a trailing / restricts the rule to directories
//   - ! re-includes; rules are evaluated in file order, the last match wins
//   - an entry inside an ignored directory is ignored regardless of later
//     negations
//
// Usage:
//
//	m := gitignore.New()
//	_ = m.AddFromFile("/repo/.gitignore", "")
//	_ = m.AddFromFile("/repo/src/.gitignore", "src")
//	if m.Match("src/app.log", false) {
//	    // ignored
//	}
package gitignore
