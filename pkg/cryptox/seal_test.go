package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("installation-secret"))
	require.NoError(t, err)

	plaintext := []byte(`{"raw":"header.payload.sig","expires_at":1234}`)
	sealed, err := sealer.Seal(plaintext)
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "header.payload.sig")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("secret-a"))
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("token"))
	require.NoError(t, err)

	other, err := NewSealer([]byte("secret-b"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("secret"))
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("token"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestOpenRejectsShortBlob(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer([]byte("secret"))
	require.NoError(t, err)

	_, err = sealer.Open([]byte("short"))
	require.ErrorIs(t, err, ErrSealedTooShort)
}

func TestNewSealerRejectsEmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewSealer(nil)
	require.Error(t, err)
}
