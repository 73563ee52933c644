// Package qrx renders QR payloads for TOTP enrollment.
package qrx

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

var ErrEmptyContent = errors.New("qrx: content cannot be empty")

// PNG encodes content as a QR code PNG image.
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = defaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qrx: encode: %w", err)
	}
	return png, nil
}

// DataURI encodes content as a QR code and returns it as a
// data:image/png;base64 URI suitable for direct embedding in an <img>.
func DataURI(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
