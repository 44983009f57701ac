package module

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchPath reports whether the slash-separated path rel, relative to the
// scan root, matches pattern. A pattern without "/" matches the last path
// element; any other pattern is matched against the whole of rel, with "**"
// spanning directories. Malformed patterns never match.
func MatchPath(pattern, rel string) bool {
	rel = strings.TrimSuffix(rel, "/")
	if !strings.Contains(pattern, "/") {
		rel = path.Base(rel)
	}
	ok, _ := doublestar.Match(pattern, rel)
	return ok
}
