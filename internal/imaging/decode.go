//go:build !imagick

package imaging

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Init and Shutdown bracket the process lifetime; the pure-Go decoders keep
// no global state.
func Init()     {}
func Shutdown() {}

// decodeImage decodes PNG, JPEG, GIF, BMP and TIFF payloads, applying any
// EXIF orientation so the depth map lines up with what a browser shows.
// The header is read first so oversized images are refused before any
// pixel buffer is allocated.
func decodeImage(data []byte, maxPixels int64) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkPixels(cfg.Width, cfg.Height, maxPixels); err != nil {
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}
