package extract

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	contrastGain   = 1.5
	thresholdBlock = 15
	thresholdC     = 10
	denoiseSigma   = 0.6
	upscaleFactor  = 2
)

var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// Preprocess normalizes an image for OCR with a fixed pipeline:
// grayscale, 3x3 sharpen, contrast boost, adaptive Gaussian threshold,
// denoise and 2x cubic upscale. The same steps run for every image.
func Preprocess(src image.Image) *image.NRGBA {
	img := imaging.Grayscale(src)
	img = imaging.Convolve3x3(img, sharpenKernel, nil)
	img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
	})
	img = adaptiveThreshold(img, thresholdBlock, thresholdC)
	img = imaging.Blur(img, denoiseSigma)

	b := img.Bounds()
	return imaging.Resize(img, b.Dx()*upscaleFactor, b.Dy()*upscaleFactor, imaging.CatmullRom)
}

func scale(v uint8) uint8 {
	return uint8(min(float64(v)*contrastGain, 255))
}

// adaptiveThreshold binarizes a grayscale image against a Gaussian-weighted
// local mean over a block x block window, minus c.
func adaptiveThreshold(img *image.NRGBA, block int, c float64) *image.NRGBA {
	// Sigma for a Gaussian kernel of the given size, as used by OpenCV.
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	mean := imaging.Blur(img, sigma)

	out := image.NewNRGBA(img.Bounds())
	for i := 0; i+3 < len(img.Pix); i += 4 {
		v := uint8(0)
		if float64(img.Pix[i]) > float64(mean.Pix[i])-c {
			v = 255
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
	}
	return out
}
