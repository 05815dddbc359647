// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package avatar validates uploaded profile photos, normalizes them to a
// square JPEG and hands them to a storage backend.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	// Registered decoders for accepted uploads.
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Defaults for Options.
const (
	DefaultMaxBytes = 5 << 20
	DefaultSize     = 500
	DefaultQuality  = 90
	// maxSourcePixels caps the decoded canvas of an upload.
	maxSourcePixels = 50_000_000
)

// DefaultAccept matches every image content type.
var DefaultAccept = []string{"image/*"}

// ErrInvalidUpload marks failures caused by the uploaded file itself.
var ErrInvalidUpload = errors.New("invalid avatar upload")

// Storage persists processed avatars under a key.
type Storage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Options configures a Processor. Zero values take the defaults.
type Options struct {
	MaxBytes int64
	Size     int
	Quality  int
	Accept   []string
	Now      func() time.Time
}

// Processor turns uploads into stored avatars.
type Processor struct {
	storage  Storage
	accept   []glob.Glob
	maxBytes int64
	size     int
	quality  int
	now      func() time.Time
}

// NewProcessor compiles the accept patterns and validates the options.
func NewProcessor(storage Storage, opts Options) (*Processor, error) {
	if storage == nil {
		return nil, oops.Code("AVATAR_CONFIG_INVALID").Errorf("storage is required")
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Size == 0 {
		opts.Size = DefaultSize
	}
	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}
	if len(opts.Accept) == 0 {
		opts.Accept = DefaultAccept
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch {
	case opts.MaxBytes < 0:
		return nil, oops.Code("AVATAR_CONFIG_INVALID").Errorf("max bytes must be positive, got %d", opts.MaxBytes)
	case opts.Size < 1:
		return nil, oops.Code("AVATAR_CONFIG_INVALID").Errorf("size must be positive, got %d", opts.Size)
	case opts.Quality < 1 || opts.Quality > 100:
		return nil, oops.Code("AVATAR_CONFIG_INVALID").Errorf("quality must be between 1 and 100, got %d", opts.Quality)
	}

	accept := make([]glob.Glob, 0, len(opts.Accept))
	for _, pattern := range opts.Accept {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, oops.Code("AVATAR_CONFIG_INVALID").With("pattern", pattern).Wrap(err)
		}
		accept = append(accept, g)
	}

	return &Processor{
		storage:  storage,
		accept:   accept,
		maxBytes: opts.MaxBytes,
		size:     opts.Size,
		quality:  opts.Quality,
		now:      opts.Now,
	}, nil
}

// MaxBytes returns the upload size limit.
func (p *Processor) MaxBytes() int64 {
	return p.maxBytes
}

// Accepts reports whether contentType matches an accept pattern.
// Media type parameters are ignored.
func (p *Processor) Accepts(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, g := range p.accept {
		if g.Match(mediaType) {
			return true
		}
	}
	return false
}

// Process validates an upload, center-crops it to a square, encodes it as
// JPEG and stores it. It returns the storage key.
func (p *Processor) Process(ctx context.Context, contentType string, r io.Reader) (string, error) {
	if !p.Accepts(contentType) {
		return "", invalid("AVATAR_UNSUPPORTED_TYPE", "not an image, please upload only images").
			With("content_type", contentType).
			Wrap(ErrInvalidUpload)
	}

	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return "", oops.Code("AVATAR_READ_FAILED").Wrap(err)
	}
	if int64(len(data)) > p.maxBytes {
		return "", invalid("AVATAR_TOO_LARGE", fmt.Sprintf("image must be at most %d bytes", p.maxBytes)).
			With("max_bytes", p.maxBytes).
			Wrap(ErrInvalidUpload)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", invalid("AVATAR_DECODE_FAILED", "image could not be read").Wrap(errors.Join(ErrInvalidUpload, err))
	}
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Width*cfg.Height > maxSourcePixels {
		return "", invalid("AVATAR_DIMENSIONS_INVALID", "image dimensions are not supported").
			With("width", cfg.Width).
			With("height", cfg.Height).
			Wrap(ErrInvalidUpload)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", invalid("AVATAR_DECODE_FAILED", "image could not be read").
			With("format", format).
			Wrap(errors.Join(ErrInvalidUpload, err))
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, p.squareCrop(src), &jpeg.Options{Quality: p.quality}); err != nil {
		return "", oops.Code("AVATAR_ENCODE_FAILED").Wrap(err)
	}

	key := p.key()
	if err := p.storage.Put(ctx, key, out.Bytes(), "image/jpeg"); err != nil {
		return "", oops.Code("AVATAR_STORE_FAILED").With("key", key).Wrap(err)
	}
	return key, nil
}

// Discard removes a stored avatar. It is used when registration fails after
// the upload was stored.
func (p *Processor) Discard(ctx context.Context, key string) error {
	if err := p.storage.Delete(ctx, key); err != nil {
		return oops.Code("AVATAR_DELETE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// squareCrop scales the centered square of src to size x size.
func (p *Processor) squareCrop(src image.Image) image.Image {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

func (p *Processor) key() string {
	return fmt.Sprintf("user-%s-%d.jpeg", ulid.Make(), p.now().UnixMilli())
}

func invalid(code, msg string) oops.OopsErrorBuilder {
	return oops.Code(code).With("public_message", msg)
}

// PublicMessage returns a client-safe message for an upload error, or ""
// when err is not caused by the upload.
func PublicMessage(err error) string {
	if !errors.Is(err, ErrInvalidUpload) {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg, ok := oopsErr.Context()["public_message"].(string); ok {
			return msg
		}
	}
	return "invalid image upload"
}
