//go:build imagick

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/gographics/imagick/imagick"
)

// Init sets up the MagickWand environment. Call it once at process start,
// before any depth map is rendered, and pair it with Shutdown.
func Init() {
	imagick.Initialize()
}

// Shutdown releases the MagickWand environment. No decode may be in flight.
func Shutdown() {
	imagick.Terminate()
}

// decodeImage hands the payload to ImageMagick, which understands formats the
// pure-Go decoders do not (WebP, AVIF, HEIC, ...), and reads back the first
// frame as PNG. The image is pinged first so oversized inputs are refused
// before their pixels are read.
func decodeImage(data []byte, maxPixels int64) (image.Image, error) {
	ping := imagick.NewMagickWand()
	if err := ping.PingImageBlob(data); err != nil {
		ping.Destroy()
		return nil, fmt.Errorf("imagick ping: %w", err)
	}
	width, height := ping.GetImageWidth(), ping.GetImageHeight()
	ping.Destroy()
	if err := checkPixels(int(width), int(height), maxPixels); err != nil {
		return nil, err
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()

	if err := mw.ReadImageBlob(data); err != nil {
		return nil, fmt.Errorf("imagick read: %w", err)
	}
	mw.SetFirstIterator()
	frame := mw.GetImage()
	defer frame.Destroy()

	if frame.GetImageWidth() == 0 || frame.GetImageHeight() == 0 {
		return nil, fmt.Errorf("imagick read: empty image")
	}
	if err := frame.SetImageFormat("png"); err != nil {
		return nil, fmt.Errorf("imagick format: %w", err)
	}

	return png.Decode(bytes.NewReader(bytes.Clone(frame.GetImageBlob())))
}
