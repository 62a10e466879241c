package cryptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	key := testSecretKey(t)

	for _, c := range []component{componentFixed, componentBody, componentTail} {
		for _, n := range []int{0, 1, 100, 5000} {
			plaintext := make([]byte, n)
			for i := range plaintext {
				plaintext[i] = byte(i)
			}
			ct, err := sealComponent(key, loc(1), c, plaintext)
			require.NoError(t, err)
			assert.Len(t, ct, n+Overhead)

			got, err := openComponent(key, loc(1), c, ct)
			require.NoError(t, err)
			assert.Equal(t, len(plaintext), len(got))
			assert.Equal(t, plaintext[:n], got[:n])
		}
	}
}

func TestSealOpen_WrongKey(t *testing.T) {
	key := testSecretKey(t)
	ct, err := sealComponent(key, loc(1), componentBody, []byte("secret"))
	require.NoError(t, err)

	_, err = openComponent(testSecretKey(t), loc(1), componentBody, ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealOpen_BoundToLocationAndComponent(t *testing.T) {
	key := testSecretKey(t)
	ct, err := sealComponent(key, loc(1), componentBody, []byte("secret"))
	require.NoError(t, err)

	_, err = openComponent(key, loc(2), componentBody, ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "moved to another block")

	_, err = openComponent(key, loc(1), componentTail, ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "replayed as another component")
}

func TestSealOpen_Tampered(t *testing.T) {
	key := testSecretKey(t)
	ct, err := sealComponent(key, loc(1), componentFixed, []byte("secret"))
	require.NoError(t, err)

	for _, i := range []int{0, NonceSize, len(ct) - 1} {
		bad := append([]byte(nil), ct...)
		bad[i] ^= 0x01
		_, err := openComponent(key, loc(1), componentFixed, bad)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "byte %d", i)
	}
}

func TestOpen_TooShort(t *testing.T) {
	_, err := openComponent(testSecretKey(t), loc(1), componentFixed, make([]byte, Overhead-1))
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestSealOpen_Nondeterministic(t *testing.T) {
	key := testSecretKey(t)
	a, err := sealComponent(key, loc(1), componentBody, []byte("same"))
	require.NoError(t, err)
	b, err := sealComponent(key, loc(1), componentBody, []byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestWriteLink(t *testing.T) {
	parentWrite := testSecretKey(t)
	childWrite := testSecretKey(t)

	sealed, err := sealWriteLink(parentWrite, loc(5), childWrite)
	require.NoError(t, err)
	assert.Len(t, sealed, sealedKeySize)

	got, err := openWriteLink(parentWrite, loc(5), sealed)
	require.NoError(t, err)
	assert.Equal(t, childWrite, got)

	_, err = openWriteLink(testSecretKey(t), loc(5), sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = openWriteLink(parentWrite, loc(6), sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = openWriteLink(parentWrite, loc(5), sealed[:10])
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestSecretKey(t *testing.T) {
	a := testSecretKey(t)
	b := testSecretKey(t)
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
	assert.True(t, SecretKey{}.IsZero())
	assert.Len(t, a.String(), len("key:")+8)
}
