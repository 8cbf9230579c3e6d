package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
)

const pngDataURLPrefix = "data:image/png;base64,"

// EncodeDataURL encodes img as PNG and wraps it in a base64 data URL.
// *image.Gray sources produce a single-channel PNG.
func EncodeDataURL(img image.Image) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", errors.New("encode data url: empty image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL returns the PNG bytes carried by a data URL produced by
// EncodeDataURL.
func DecodeDataURL(dataURL string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(dataURL, pngDataURLPrefix)
	if !ok {
		return nil, fmt.Errorf("decode data url: missing %q prefix", pngDataURLPrefix)
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return payload, nil
}

func mustEncodeDataURL(img image.Image) string {
	dataURL, err := EncodeDataURL(img)
	if err != nil {
		panic(err)
	}
	return dataURL
}
