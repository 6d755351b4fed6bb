// Package verify implements the optional post-copy checksum verification
// pass of spec.md §11: stream both source and destination through a
// Whirlpool digest and compare.
package verify

import (
	"io"
	"os"

	"github.com/jzelinskie/whirlpool"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

// Files hashes from and to with Whirlpool and reports whether their
// digests match. A digest mismatch is not itself an error: the caller
// decides whether to treat it as fatal.
func Files(from, to string) (bool, error) {
	sum1, err := sumFile(from)
	if err != nil {
		return false, xcperr.Wrap(xcperr.KindCopyError, "hashing source", err).WithPath(from)
	}
	sum2, err := sumFile(to)
	if err != nil {
		return false, xcperr.Wrap(xcperr.KindCopyError, "hashing destination", err).WithPath(to)
	}
	if len(sum1) != len(sum2) {
		return false, nil
	}
	for i := range sum1 {
		if sum1[i] != sum2[i] {
			return false, nil
		}
	}
	return true, nil
}

func sumFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := whirlpool.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
