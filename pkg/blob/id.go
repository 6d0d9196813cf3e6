package blob

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ID identifies a blob by the digest of its content, for example
// "sha256:2cf24dba...". Two IDs are the same blob iff their strings are equal.
type ID string

// Parse validates s as a digest string and returns it as an ID.
func Parse(s string) (ID, error) {
	d, err := digest.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	if !d.Algorithm().Available() {
		return "", fmt.Errorf("%w: %q: algorithm not available", ErrInvalidID, s)
	}
	return ID(d), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromBytes returns the canonical (sha256) ID of p.
func FromBytes(p []byte) ID {
	return ID(digest.FromBytes(p))
}

// FromReader digests everything read from r and returns the ID together with
// the number of bytes consumed.
func FromReader(r io.Reader) (ID, int64, error) {
	digester := digest.Canonical.Digester()
	n, err := io.Copy(digester.Hash(), r)
	if err != nil {
		return "", n, err
	}
	return ID(digester.Digest()), n, nil
}

// String returns the digest string.
func (id ID) String() string { return string(id) }

// Algorithm returns the digest algorithm name, e.g. "sha256".
func (id ID) Algorithm() string { return string(digest.Digest(id).Algorithm()) }

// Hex returns the encoded portion of the digest.
func (id ID) Hex() string { return digest.Digest(id).Encoded() }

// Validate reports whether id is a well-formed digest.
func (id ID) Validate() error {
	if err := digest.Digest(id).Validate(); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidID, string(id), err)
	}
	return nil
}

// Key returns the backend object key for id: <alg>/<hex[0:2]>/<hex[2:4]>/<hex>.
// id must be valid.
func (id ID) Key() string {
	hex := id.Hex()
	return id.Algorithm() + "/" + hex[0:2] + "/" + hex[2:4] + "/" + hex
}

// verifier returns a writer that checks streamed content against id.
func (id ID) verifier() digest.Verifier {
	return digest.Digest(id).Verifier()
}

// ParseKey is the inverse of ID.Key.
func ParseKey(key string) (ID, error) {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: malformed key %q", ErrInvalidID, key)
	}
	alg, a, b, hex := parts[0], parts[1], parts[2], parts[3]
	if len(hex) < 4 || hex[0:2] != a || hex[2:4] != b {
		return "", fmt.Errorf("%w: malformed key %q", ErrInvalidID, key)
	}
	return Parse(alg + ":" + hex)
}
