// Package imaging decodes catalog images and isolates the garment region using segmentation masks.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrInvalidInput is returned for images that are missing, corrupt, or have no pixels.
var ErrInvalidInput = errors.New("invalid input")

var (
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.RGBA{A: 255}
)

// FillColor maps a configured fill name to its color. Unknown names map to white.
func FillColor(name string) color.RGBA {
	if name == "black" {
		return Black
	}
	return White
}

// Load opens and decodes the image at path.
// Undecodable data is reported as ErrInvalidInput; I/O errors are returned as-is.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()
	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Decode decodes an image from r and rejects images with empty bounds.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidInput, err)
	}
	if err := Validate(img); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate reports ErrInvalidInput for a nil image or one without pixels.
func Validate(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	return nil
}

// ApplyMask keeps the pixels of img where mask is non-zero and paints the rest with fill.
// The mask is resized to img's bounds with nearest-neighbour sampling. A nil mask returns img unchanged.
func ApplyMask(img image.Image, mask image.Image, fill color.RGBA) image.Image {
	if mask == nil {
		return img
	}
	b := img.Bounds()
	fg := image.NewGray(b)
	draw.NearestNeighbor.Scale(fg, b, mask, mask.Bounds(), draw.Src, nil)

	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if fg.GrayAt(x, y).Y == 0 {
				out.SetRGBA(x, y, fill)
			}
		}
	}
	return out
}

// Fit scales img so its shorter side equals size (bicubic), then crops the centre size×size square.
func Fit(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var sw, sh int
	if w < h {
		sw = size
		sh = (h*size + w/2) / w
	} else {
		sh = size
		sw = (w*size + h/2) / h
	}
	if sw < size {
		sw = size
	}
	if sh < size {
		sh = size
	}
	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	x0 := (sw - size) / 2
	y0 := (sh - size) / 2
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}
