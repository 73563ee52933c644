package qrx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestPNG(t *testing.T) {
	t.Parallel()

	png, err := PNG("otpauth://totp/Webmonks:agent@example.com?secret=ABC", 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestPNGEmptyContent(t *testing.T) {
	t.Parallel()

	_, err := PNG("   ", 256)
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestDataURI(t *testing.T) {
	t.Parallel()

	uri, err := DataURI("otpauth://totp/Webmonks:agent@example.com?secret=ABC", 128)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
