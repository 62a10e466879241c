package content

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		bodySize  int
		size      int
		wantParts int
	}{
		{"single part", 100, 1024, 1},
		{"exact multiple", 3000, 1000, 3},
		{"non-exact", 2500, 1000, 3},
		{"part size 1", 5, 1, 5},
		{"body equals part size", 1000, 1000, 1},
		{"empty", 0, 1000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bytes.Repeat([]byte{0xAB}, tt.bodySize)
			parts, err := Split(body, tt.size)
			require.NoError(t, err)
			assert.Len(t, parts, tt.wantParts)

			var combined []byte
			for _, p := range parts {
				assert.LessOrEqual(t, len(p), tt.size)
				combined = append(combined, p...)
			}
			assert.Equal(t, tt.bodySize, len(combined))
		})
	}
}

func TestSplit_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Split([]byte("x"), size)
		assert.ErrorIs(t, err, ErrInvalidChunkSize)
	}
}

func TestSplit_PartsDoNotGrowIntoNeighbours(t *testing.T) {
	body := []byte("abcdef")
	parts, err := Split(body, 4)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, 4, cap(parts[0]))

	grown := append(parts[0], 'z')
	assert.Equal(t, []byte("abcdz"), grown)
	assert.Equal(t, []byte("abcdef"), body)
}

func TestHash(t *testing.T) {
	parts := [][]byte{
		bytes.Repeat([]byte{0x01}, 100),
		bytes.Repeat([]byte{0x02}, 100),
		bytes.Repeat([]byte{0x03}, 100),
	}

	got := Hash(parts)
	assert.Len(t, got, HashSize)

	want := sha256.Sum256(bytes.Join(parts, nil))
	assert.Equal(t, want[:], got)

	// The hash depends on the bytes, not on where the chain splits them.
	resplit, err := Split(bytes.Join(parts, nil), 7)
	require.NoError(t, err)
	assert.Equal(t, got, Hash(resplit))
}

func TestJoiner(t *testing.T) {
	parts := [][]byte{[]byte("hello "), []byte("world")}
	want := Hash(parts)

	join := func() *Joiner {
		j := NewJoiner()
		for _, p := range parts {
			j.Add(p)
		}
		return j
	}

	j := join()
	assert.Equal(t, 11, j.Len())
	assert.Equal(t, want, j.Sum())

	got, err := j.Join(want)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)

	got, err = join().Join(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)

	bad := append([]byte(nil), want...)
	bad[0] ^= 0xFF
	_, err = join().Join(bad)
	assert.ErrorIs(t, err, ErrContentHashMismatch)
}

func TestJoiner_Empty(t *testing.T) {
	parts, err := Split(nil, DefaultChunkSize)
	require.NoError(t, err)

	j := NewJoiner()
	for _, p := range parts {
		j.Add(p)
	}
	got, err := j.Join(Hash(parts))
	require.NoError(t, err)
	assert.Empty(t, got)
}
