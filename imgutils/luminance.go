// Package imgutils prepares camera images for a tracking engine.
package imgutils

import (
	"image"
)

// Luminance returns one byte per pixel, row-major, as (r+g+b)/3 on 8 bit channels with the
// remainder dropped. Engines are tuned against exactly this average, not perceptual gray.
func Luminance(img image.Image) []byte {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out[y*w:(y+1)*w], src.Pix[off:off+w])
		}
	case *image.RGBA:
		averageRows(out, src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), w, h)
	case *image.NRGBA:
		averageRows(out, src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), w, h)
	default:
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				out[i] = byte(((r >> 8) + (g >> 8) + (b >> 8)) / 3)
				i++
			}
		}
	}

	return out
}

func averageRows(out, pix []byte, stride, start, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[start+y*stride : start+y*stride+4*w]
		for x := 0; x < w; x++ {
			p := row[4*x : 4*x+3]
			out[y*w+x] = byte((int(p[0]) + int(p[1]) + int(p[2])) / 3)
		}
	}
}

// AverageLuminance is the mean brightness of a luminance buffer, 0 for an empty one.
func AverageLuminance(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	total := 0
	for _, v := range buf {
		total += int(v)
	}
	return float64(total) / float64(len(buf))
}

// LuminanceImage wraps a luminance buffer for writing it out.
func LuminanceImage(buf []byte, width, height int) *image.Gray {
	return &image.Gray{
		Pix:    buf,
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}
}
