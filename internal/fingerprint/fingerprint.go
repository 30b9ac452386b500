// Package fingerprint computes content fingerprints used for change detection.
// A fingerprint is the lowercase hex sha256 of the full byte content. It identifies
// content, it is not a security credential.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Size is the length of a hex encoded fingerprint.
const Size = sha256.Size * 2

const bufferSize = 64 * 1024

// Compute streams r through sha256. The input is never held in memory as a whole.
func Compute(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("fingerprint: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeFile fingerprints the file at path.
func ComputeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: open %q: %w", path, err)
	}
	defer f.Close()

	return Compute(f)
}

// Valid reports whether s looks like a fingerprint produced by Compute.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
