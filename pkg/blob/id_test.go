package blob

import (
	"errors"
	"strings"
	"testing"
)

const helloSHA = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestParse(t *testing.T) {
	id, err := Parse(helloSHA)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if id != FromBytes([]byte("hello")) {
		t.Errorf("Parse(%q) = %s, want digest of hello", helloSHA, id)
	}
	if id.Algorithm() != "sha256" {
		t.Errorf("Algorithm = %q", id.Algorithm())
	}

	for _, bad := range []string{
		"",
		"sha256",
		"sha256:xyz",
		"sha256:" + strings.Repeat("a", 63),
		"md5:d41d8cd98f00b204e9800998ecf8427e",
		strings.Repeat("a", 64),
	} {
		if _, err := Parse(bad); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Parse(%q) returned %v, want ErrInvalidID", bad, err)
		}
	}
}

func TestID_KeyRoundTrip(t *testing.T) {
	id := MustParse(helloSHA)

	key := id.Key()
	if key != "sha256/2c/f2/2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("Key = %q", key)
	}

	back, err := ParseKey(key)
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if back != id {
		t.Errorf("ParseKey = %s, want %s", back, id)
	}
}

func TestParseKey_Malformed(t *testing.T) {
	for _, key := range []string{
		"sha256/2cf24dba",
		"sha256/aa/f2/2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		"sha256/2c/f2/nothex",
		"tmp/file",
	} {
		if _, err := ParseKey(key); !errors.Is(err, ErrInvalidID) {
			t.Errorf("ParseKey(%q) returned %v, want ErrInvalidID", key, err)
		}
	}
}

func TestFromReader(t *testing.T) {
	id, n, err := FromReader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("FromReader failed: %v", err)
	}
	if n != 5 || id.String() != helloSHA {
		t.Errorf("FromReader = (%s, %d)", id, n)
	}
}

func TestID_Validate(t *testing.T) {
	if err := ID(helloSHA).Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	if err := ID("nope").Validate(); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Validate returned %v, want ErrInvalidID", err)
	}
}
