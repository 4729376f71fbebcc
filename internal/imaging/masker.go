package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Masker isolates the garment region of an image given the path of its (optional) mask.
type Masker interface {
	Mask(img image.Image, maskPath string) (image.Image, error)
}

// SegmentationMasker reads binary segmentation masks from disk.
// A missing mask file leaves the image unchanged.
type SegmentationMasker struct {
	Fill color.RGBA
}

// NewSegmentationMasker returns a masker that paints background pixels with fill.
func NewSegmentationMasker(fill color.RGBA) *SegmentationMasker {
	return &SegmentationMasker{Fill: fill}
}

// Mask applies the mask at maskPath to img. An empty maskPath or a missing file returns img.
func (m *SegmentationMasker) Mask(img image.Image, maskPath string) (image.Image, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	if maskPath == "" {
		return img, nil
	}
	mask, err := Load(maskPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return img, nil
		}
		return nil, fmt.Errorf("load mask: %w", err)
	}
	return ApplyMask(img, mask, m.Fill), nil
}

// NopMasker returns images unchanged.
type NopMasker struct{}

// Mask returns img.
func (NopMasker) Mask(img image.Image, _ string) (image.Image, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	return img, nil
}

// MaskPath derives the mask location for imagePath: maskDir/<base><suffix>, where base is the
// file name without extension. Returns "" when maskDir is empty.
func MaskPath(maskDir, imagePath, suffix string) string {
	if maskDir == "" {
		return ""
	}
	name := filepath.Base(imagePath)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(maskDir, base+suffix)
}

// HasMask reports whether a mask file exists at path.
func HasMask(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
