package imaging

import (
	"image"
	"math"
)

const histSize = 256

// EqualizeAdaptive applies contrast-limited adaptive histogram equalization.
// The image is split into at most tilesX x tilesY non-overlapping tiles, each
// tile gets its own clipped equalization table, and every output pixel is a
// bilinear blend of the tables of the four nearest tile centres.
//
// clipLimit is relative to a uniform histogram: 2.0 allows any bin to hold
// twice its average share before the excess is redistributed. A clipLimit of
// zero or less disables clipping.
func EqualizeAdaptive(src *image.Gray, clipLimit float64, tilesX, tilesY int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	tilesX = clampInt(tilesX, 1, w)
	tilesY = clampInt(tilesY, 1, h)
	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY
	// Rounding the tile size up can leave trailing tiles empty; drop them.
	tilesX = (w + tileW - 1) / tileW
	tilesY = (h + tileH - 1) / tileH

	luts := make([][histSize]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			rect := image.Rect(tx*tileW, ty*tileH, minInt((tx+1)*tileW, w), minInt((ty+1)*tileH, h))
			luts[ty*tilesX+tx] = tileLUT(src, rect, clipLimit)
		}
	}

	for y := 0; y < h; y++ {
		ty1, ty2, ya := neighbours(y, tileH, tilesY)
		srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			tx1, tx2, xa := neighbours(x, tileW, tilesX)
			v := srcRow[x]

			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bottom := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			dstRow[x] = saturate(top*(1-ya) + bottom*ya)
		}
	}
	return dst
}

// tileLUT builds the clipped equalization table for rect, given in
// coordinates relative to src's bounds.
func tileLUT(src *image.Gray, rect image.Rectangle, clipLimit float64) [histSize]uint8 {
	var hist [histSize]int
	b := src.Bounds()
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := src.Pix[src.PixOffset(b.Min.X+rect.Min.X, b.Min.Y+y):]
		for x := 0; x < rect.Dx(); x++ {
			hist[row[x]]++
		}
	}

	area := rect.Dx() * rect.Dy()
	if clipLimit > 0 {
		limit := int(clipLimit * float64(area) / histSize)
		if limit < 1 {
			limit = 1
		}
		clipHistogram(&hist, limit)
	}

	var lut [histSize]uint8
	scale := float64(histSize-1) / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = saturate(float64(sum) * scale)
	}
	return lut
}

// clipHistogram caps every bin at limit and spreads the clipped mass evenly,
// handing any remainder out at a regular stride. The total count is preserved.
func clipHistogram(hist *[histSize]int, limit int) {
	excess := 0
	for i := range hist {
		if over := hist[i] - limit; over > 0 {
			excess += over
			hist[i] = limit
		}
	}
	if excess == 0 {
		return
	}

	batch := excess / histSize
	residual := excess - batch*histSize
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := maxInt(histSize/residual, 1)
		for i := 0; i < histSize && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// neighbours returns the two tile indices bracketing pos along one axis and
// the blend weight of the second.
func neighbours(pos, tileSize, tiles int) (int, int, float64) {
	f := float64(pos)/float64(tileSize) - 0.5
	first := int(math.Floor(f))
	second := first + 1
	weight := f - float64(first)
	if first < 0 {
		first = 0
	}
	if second > tiles-1 {
		second = tiles - 1
	}
	return first, second, weight
}

func saturate(v float64) uint8 {
	r := math.Round(v)
	switch {
	case r < 0:
		return 0
	case r > 255:
		return 255
	}
	return uint8(r)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
