// Package augment produces the stochastic views used for contrastive
// training: random resized crop, random horizontal flip and conversion to a
// CHW float tensor in [0, 1].
package augment

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"math/rand"

	"github.com/nfnt/resize"

	"contrastive-forge/internal/tensor"
)

// RandomResizedCrop crops a random area/aspect-ratio region and resizes it
// to Size x Size.
type RandomResizedCrop struct {
	Size               int
	ScaleMin, ScaleMax float64
	RatioMin, RatioMax float64
}

// NewRandomResizedCrop uses the common defaults: scale 0.08-1, ratio 3/4-4/3.
func NewRandomResizedCrop(size int) RandomResizedCrop {
	return RandomResizedCrop{Size: size, ScaleMin: 0.08, ScaleMax: 1, RatioMin: 3.0 / 4.0, RatioMax: 4.0 / 3.0}
}

const cropAttempts = 10

// Rect picks the crop window for a w x h image.
func (c RandomResizedCrop) Rect(w, h int, rng *rand.Rand) image.Rectangle {
	area := float64(w * h)
	logMin, logMax := math.Log(c.RatioMin), math.Log(c.RatioMax)
	for i := 0; i < cropAttempts; i++ {
		target := area * (c.ScaleMin + rng.Float64()*(c.ScaleMax-c.ScaleMin))
		aspect := math.Exp(logMin + rng.Float64()*(logMax-logMin))
		cw := int(math.Round(math.Sqrt(target * aspect)))
		ch := int(math.Round(math.Sqrt(target / aspect)))
		if cw > 0 && ch > 0 && cw <= w && ch <= h {
			x := rng.Intn(w - cw + 1)
			y := rng.Intn(h - ch + 1)
			return image.Rect(x, y, x+cw, y+ch)
		}
	}

	// central crop clamped to the ratio range
	cw, ch := w, h
	switch ratio := float64(w) / float64(h); {
	case ratio < c.RatioMin:
		ch = int(math.Round(float64(cw) / c.RatioMin))
	case ratio > c.RatioMax:
		cw = int(math.Round(float64(ch) * c.RatioMax))
	}
	x, y := (w-cw)/2, (h-ch)/2
	return image.Rect(x, y, x+cw, y+ch)
}

// Apply crops img and resizes the crop with bilinear interpolation.
func (c RandomResizedCrop) Apply(img image.Image, rng *rand.Rand) image.Image {
	b := img.Bounds()
	r := c.Rect(b.Dx(), b.Dy(), rng).Add(b.Min)
	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return resize.Resize(uint(c.Size), uint(c.Size), crop, resize.Bilinear)
}

// RandomHorizontalFlip mirrors the image left-to-right with probability P.
type RandomHorizontalFlip struct {
	P float64
}

func (f RandomHorizontalFlip) Apply(img image.Image, rng *rand.Rand) image.Image {
	if rng.Float64() >= f.P {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(b.Dx()-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// ToTensor converts img to a [3, H, W] tensor with values in [0, 1].
func ToTensor(img image.Image) *tensor.Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		panic(fmt.Sprintf("augment: empty image %v", b))
	}
	t := tensor.New(3, h, w)
	plane := w * h
	rgba, fast := img.(*image.RGBA)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl float64
			if fast {
				p := rgba.RGBAAt(b.Min.X+x, b.Min.Y+y)
				r, g, bl = float64(p.R)/255, float64(p.G)/255, float64(p.B)/255
			} else {
				cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				r, g, bl = float64(cr)/0xffff, float64(cg)/0xffff, float64(cb)/0xffff
			}
			i := y*w + x
			t.Data[i] = r
			t.Data[plane+i] = g
			t.Data[2*plane+i] = bl
		}
	}
	return t
}
