// Package sha256 computes SHA-256 digests of streamed content.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Digest is an io.Writer that accumulates a SHA-256 sum and a byte count.
type Digest struct {
	h hash.Hash
	n int64
}

// New returns an empty Digest.
func New() *Digest {
	return &Digest{h: sha256.New()}
}

// Write feeds p into the digest. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	n, _ := d.h.Write(p)
	d.n += int64(n)
	return n, nil
}

// Hex returns the hex-encoded digest of everything written so far.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size returns the number of bytes written.
func (d *Digest) Size() int64 {
	return d.n
}

// TeeReader returns a reader that feeds d with everything read from r.
func (d *Digest) TeeReader(r io.Reader) io.Reader {
	return io.TeeReader(r, d)
}
