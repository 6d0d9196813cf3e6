package blob

import (
	"io"

	"github.com/opencontainers/go-digest"
)

// checkedReader enforces the declared length of an upload and, optionally,
// its digest. Violations surface as read errors so backends never publish
// the object.
type checkedReader struct {
	r        io.Reader
	want     uint64
	n        uint64
	verifier digest.Verifier
}

func newCheckedReader(r io.Reader, id ID, length uint64, verify bool) *checkedReader {
	c := &checkedReader{r: r, want: length}
	if verify {
		c.verifier = id.verifier()
	}
	return c
}

func (c *checkedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	if c.verifier != nil && n > 0 {
		_, _ = c.verifier.Write(p[:n])
	}
	if c.n > c.want {
		return n, ErrSizeMismatch
	}
	if err == io.EOF {
		if c.n != c.want {
			return n, ErrSizeMismatch
		}
		if c.verifier != nil && !c.verifier.Verified() {
			return n, ErrDigestMismatch
		}
	}
	return n, err
}
