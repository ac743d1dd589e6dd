package tables

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest identifies the content of an encoded file.
type Digest struct {
	Hash  string `json:"hash"` // "sha256:<hex>"
	Bytes int64  `json:"bytes"`
}

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	hash := sha256.Sum256(data)
	return Digest{Hash: "sha256:" + hex.EncodeToString(hash[:]), Bytes: int64(len(data))}
}

// Matches reports whether data has digest d.
func (d Digest) Matches(data []byte) bool {
	return Sum(data) == d
}
