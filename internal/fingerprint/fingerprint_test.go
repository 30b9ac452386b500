package fingerprint

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_KnownVector(t *testing.T) {
	got, err := Compute(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
	assert.True(t, Valid(got))
}

func TestCompute_Deterministic(t *testing.T) {
	content := bytes.Repeat([]byte("%PDF-1.7 body "), 10_000)

	first, err := Compute(bytes.NewReader(content))
	require.NoError(t, err)
	second, err := Compute(bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_DetectsMutation(t *testing.T) {
	original := bytes.Repeat([]byte{0x25, 0x50, 0x44, 0x46}, 4096)
	mutations := map[string][]byte{
		"flipped byte": func() []byte {
			b := bytes.Clone(original)
			b[len(b)/2] ^= 0x01
			return b
		}(),
		"appended": append(bytes.Clone(original), '\n'),
		"truncated": original[:len(original)-1],
		"empty":     {},
	}

	base, err := Compute(bytes.NewReader(original))
	require.NoError(t, err)

	for name, mutated := range mutations {
		t.Run(name, func(t *testing.T) {
			got, err := Compute(bytes.NewReader(mutated))
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestCompute_Streams(t *testing.T) {
	// 64 MiB of zeros through a reader that never materialises the payload
	r := io.LimitReader(zeroReader{}, 64<<20)
	got, err := Compute(r)
	require.NoError(t, err)
	assert.Len(t, got, Size)
}

func TestCompute_ReadError(t *testing.T) {
	_, err := Compute(io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestComputeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	got, err := ComputeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = ComputeFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid(strings.Repeat("A", Size)))
	assert.False(t, Valid(strings.Repeat("a", Size-1)))
	assert.True(t, Valid(strings.Repeat("0", Size)))
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

var errBoom = errors.New("boom")

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errBoom }
