// Package imaging normalizes model photos before they are stored: the input
// format is sniffed, large photos are scaled down, transparency is flattened
// onto white and the result is re-encoded as JPEG.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// MaxUploadSize bounds the raw photo accepted from clients.
const MaxUploadSize = 5 << 20

// Options control re-encoding.
type Options struct {
	MaxDimension int
	Quality      int
}

// DefaultOptions suit catalog photos shown on a phone in the yard.
var DefaultOptions = Options{MaxDimension: 1024, Quality: 85}

// accepted lists the input types recognized by sniffing.
var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Photo is a processed image ready for storage.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process reads a photo and returns it as a JPEG within opts.MaxDimension.
func Process(r io.Reader, opts Options) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, fmt.Errorf("image larger than %d bytes", MaxUploadSize)
	}

	// Trust the bytes, not the client's content type.
	detected := http.DetectContentType(data)
	if !accepted[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (JPEG, PNG or WebP accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	img = downscale(img, opts.MaxDimension)
	img = flatten(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

// downscale resizes the image so neither dimension exceeds maxDim, keeping
// the aspect ratio. Smaller images are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(h*maxDim/w, 1)
	} else {
		newW = max(w*maxDim/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// flatten composites img over a white background.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
	image.RegisterFormat("webp", "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}
