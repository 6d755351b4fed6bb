// Package paths implements source-path glob expansion (spec.md §11): when
// enabled, each source argument containing shell metacharacters is expanded
// against the filesystem before the walker sees it, rather than being
// silently dropped when it doesn't match a literal path.
package paths

import (
	"path/filepath"
	"strings"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

// ExpandGlobs expands every source argument that contains a glob
// metacharacter, preserving order and leaving literal paths untouched
// (even if they don't currently exist, so the existing "source does not
// exist" error is reported at walk time instead of here). This fixes a
// known gap in the original implementation, where a pattern matching no
// entries silently vanished from the copy list instead of surfacing as an
// invalid source.
func ExpandGlobs(sources []string) ([]string, error) {
	var out []string
	for _, src := range sources {
		if !hasMeta(src) {
			out = append(out, src)
			continue
		}
		matches, err := filepath.Glob(src)
		if err != nil {
			return nil, xcperr.Wrap(xcperr.KindInvalidSource, "invalid glob pattern", err).WithPath(src)
		}
		if len(matches) == 0 {
			return nil, xcperr.New(xcperr.KindInvalidSource, "glob pattern matched no files").WithPath(src)
		}
		out = append(out, matches...)
	}
	return out, nil
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
