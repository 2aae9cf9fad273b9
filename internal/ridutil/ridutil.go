// Package ridutil validates resource identifiers taken from untrusted
// input. A rid is a slash-separated sequence of non-empty segments,
// none of which is "." or "..".
package ridutil

import "strings"

// Valid reports whether rid is a well-formed resource identifier.
// Empty rids, leading or trailing slashes, empty segments, and dot
// segments are all rejected.
func Valid(rid string) bool {
	if rid == "" {
		return false
	}
	for _, seg := range strings.Split(rid, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
