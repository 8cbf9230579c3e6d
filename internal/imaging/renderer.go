package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

const (
	DefaultFetchTimeout = 60 * time.Second
	DefaultMaxBytes     = 32 << 20
	// 64 Mpx; well under the 2^30 pixels OpenCV-based decoders accept.
	DefaultMaxPixels    = 1 << 26

	claheClipLimit = 2.0
	claheTiles     = 8
	// Sigma OpenCV derives for a 5x5 Gaussian kernel.
	blurSigma = 1.1
)

type RenderOptions struct {
	FetchTimeout time.Duration
	MaxBytes     int64
	MaxPixels    int64
	HTTPClient   *http.Client
}

// Renderer turns an image URL into a pseudo-depth map data URL.
type Renderer struct {
	client    *http.Client
	maxBytes  int64
	maxPixels int64
}

func NewRenderer(opts RenderOptions) *Renderer {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
	}
	return &Renderer{client: client, maxBytes: opts.MaxBytes, maxPixels: opts.MaxPixels}
}

// DepthMap always returns a usable PNG data URL: the derived depth map when
// every stage succeeds, the radial placeholder otherwise.
func (r *Renderer) DepthMap(ctx context.Context, imageURL string) string {
	dataURL, err := r.Attempt(ctx, imageURL)
	return reconcile(imageURL, dataURL, err)
}

// reconcile is the single point where pipeline failures become the placeholder.
func reconcile(imageURL, dataURL string, err error) string {
	if err != nil {
		log.Printf("depth map failed url=%s category=%T err=%v; using placeholder", trimText(imageURL, 120), rootCause(err), err)
		return PlaceholderDataURL()
	}
	log.Printf("depth map ready url=%s", trimText(imageURL, 120))
	return dataURL
}

// Attempt runs fetch, decode, depth approximation and encoding, reporting the
// first failure.
func (r *Renderer) Attempt(ctx context.Context, imageURL string) (string, error) {
	payload, err := r.fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}

	img, err := decodeImage(payload, r.maxPixels)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if img == nil || img.Bounds().Empty() {
		return "", errors.New("decode image: no pixels")
	}

	depth, err := ApproximateDepth(img)
	if err != nil {
		return "", fmt.Errorf("approximate depth: %w", err)
	}

	dataURL, err := EncodeDataURL(depth)
	if err != nil {
		return "", fmt.Errorf("encode depth map: %w", err)
	}
	return dataURL, nil
}

// ApproximateDepth converts img to luminance, boosts local contrast with
// CLAHE (clip 2.0, 8x8 tiles) and smooths the result with a small Gaussian
// blur. The output has img's dimensions.
func ApproximateDepth(img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("empty image")
	}

	gray := toGray(imaging.Grayscale(img))
	equalized := EqualizeAdaptive(gray, claheClipLimit, claheTiles, claheTiles)
	depth := toGray(imaging.Blur(equalized, blurSigma))

	if depth.Bounds().Dx() != b.Dx() || depth.Bounds().Dy() != b.Dy() {
		return nil, fmt.Errorf("depth map size %v does not match source %v", depth.Bounds().Size(), b.Size())
	}
	return depth, nil
}

func (r *Renderer) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(payload)) > r.maxBytes {
		return nil, fmt.Errorf("read image: payload exceeds %d bytes", r.maxBytes)
	}
	return payload, nil
}

// checkPixels refuses empty images and images whose pixel count exceeds
// maxPixels, so a small compressed payload cannot expand without bound.
func checkPixels(width, height int, maxPixels int64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image has no pixels: %dx%d", width, height)
	}
	if pixels := int64(width) * int64(height); pixels > maxPixels {
		return fmt.Errorf("image too large: %dx%d exceeds %d pixels", width, height, maxPixels)
	}
	return nil
}

// toGray keeps the first channel of an NRGBA image whose channels are equal.
func toGray(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dstRow[x] = srcRow[x*4]
		}
	}
	return dst
}
