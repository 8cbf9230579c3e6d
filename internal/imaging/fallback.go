package imaging

import (
	"image"
	"math"
)

const placeholderSize = 256

// placeholderURL is computed once; it is immutable and shared read-only.
var placeholderURL = mustEncodeDataURL(RadialGradient(placeholderSize, placeholderSize))

// RadialGradient renders a single-channel gradient that is brightest in the
// middle and falls off linearly to 0 at normalized radius 1. Pixel centres
// span [-1, 1] on both axes, so an even-sized image has no pixel exactly at
// the origin and its four central pixels carry the peak value: 253 for a
// 256x256 image, not 255, because they sit half a pixel off centre.
func RadialGradient(width, height int) *image.Gray {
	if width <= 0 {
		width = placeholderSize
	}
	if height <= 0 {
		height = placeholderSize
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		fy := linspace(y, height)
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			fx := linspace(x, width)
			r := math.Min(math.Hypot(fx, fy), 1)
			row[x] = uint8((1 - r) * 255)
		}
	}
	return img
}

// PlaceholderDataURL returns the 256x256 radial gradient as a PNG data URL.
func PlaceholderDataURL() string {
	return placeholderURL
}

func linspace(i, n int) float64 {
	if n == 1 {
		return 0
	}
	return -1 + 2*float64(i)/float64(n-1)
}
