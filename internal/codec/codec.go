package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
)

// Options configures the AVIF codec pool.
type Options struct {
	// MaxWorkers caps the number of simultaneous in-flight encodes.
	MaxWorkers int
	// Quality is the AVIF quality level on a 0-100 scale.
	Quality int
}

// AVIF re-encodes images into the AVIF format through a
// WebAssembly-backed encoder. All pixel-level work happens here; the
// rest of the system treats this type as an opaque collaborator that
// eventually resolves each call with an encoded buffer or an error.
type AVIF struct {
	sem     chan struct{}
	quality int
}

// New creates a codec pool with the given concurrency limit and quality.
func New(opts Options) *AVIF {
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	return &AVIF{
		sem:     make(chan struct{}, workers),
		quality: quality,
	}
}

// Warmup primes the underlying wasm runtime by encoding a throwaway
// one-pixel image, so the first real conversion does not pay the module
// compilation cost.
func (c *AVIF) Warmup(ctx context.Context) error {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("warmup: failed to encode probe image: %w", err)
	}

	if _, err := c.Encode(ctx, buf.Bytes(), 1); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	return nil
}

// Encode decodes src, downscales it to the target width when the image
// is wider (aspect ratio preserved, never upscaled), and re-encodes it
// as AVIF. It blocks while the pool is at its concurrency limit.
func (c *AVIF) Encode(ctx context.Context, src []byte, width int) ([]byte, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	err = avif.Encode(buf, img, avif.Options{
		Quality:      c.quality,
		QualityAlpha: c.quality,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode avif: %w", err)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("codec returned empty output")
	}

	return buf.Bytes(), nil
}

// Close waits for all in-flight encodes to finish. The pool must not be
// used afterwards.
func (c *AVIF) Close() {
	for i := 0; i < cap(c.sem); i++ {
		c.sem <- struct{}{}
	}
}
