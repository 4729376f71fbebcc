package embedding

import (
	"image"

	"github.com/hyperjump/katachi/internal/imaging"
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PixelValues converts img into a normalised CHW float tensor of shape (3, size, size)
// the way CLIP's image transform does: resize shortest side, centre crop, scale to [0,1], standardise.
func PixelValues(img image.Image, size int) []float32 {
	fitted := imaging.Fit(img, size)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := fitted.Pix[y*fitted.Stride:]
		for x := 0; x < size; x++ {
			p := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				v := float32(p[c]) / 255
				out[c*plane+y*size+x] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
