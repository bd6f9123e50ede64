package core

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// LoadImage decodes a PNG, JPEG, BMP or TIFF file into tightly packed RGBA.
func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	rgba := ToRGBA(img)
	if rgba.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s (%s): empty image", path, format)
	}
	return rgba, nil
}

// LoadTexture loads path and scales it to size×size. A size of zero keeps
// the image's own dimensions.
func LoadTexture(path string, size int) (*image.RGBA, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	if size <= 0 || (img.Rect.Dx() == size && img.Rect.Dy() == size) {
		return img, nil
	}
	return ResizeRGBA(img, size, size), nil
}

// ToRGBA returns img as *image.RGBA with a zero origin and Stride == 4*width.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// ResizeRGBA scales img to w×h with bilinear filtering.
func ResizeRGBA(img image.Image, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

// GenerateCloudImage builds a tileable cloud texture from fractal value
// noise. Colour is white; alpha carries cloud density.
func GenerateCloudImage(size int, seed int64) (*image.RGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cloud texture size must be positive, got %d", size)
	}
	const (
		octaves  = 5
		baseCell = 4
		coverage = 0.45
	)
	rng := rand.New(rand.NewSource(seed))
	lattices := make([][]float32, octaves)
	for o := range lattices {
		cells := baseCell << o
		l := make([]float32, cells*cells)
		for i := range l {
			l[i] = rng.Float32()
		}
		lattices[o] = l
	}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			u := float32(x) / float32(size)
			v := float32(y) / float32(size)

			var sum, norm float32
			amp := float32(1)
			for o, l := range lattices {
				sum += amp * valueNoise(l, baseCell<<o, u, v)
				norm += amp
				amp *= 0.5
			}
			d := (sum/norm - coverage) / (1 - coverage)
			d = float32(math.Max(0, math.Min(1, float64(d))))
			// soften the edges
			a := d * d * (3 - 2*d)

			off := img.PixOffset(x, y)
			img.Pix[off+0] = 255
			img.Pix[off+1] = 255
			img.Pix[off+2] = 255
			img.Pix[off+3] = uint8(a*255 + 0.5)
		}
	}
	return img, nil
}

// valueNoise samples a cells×cells wrapping lattice at (u, v) in [0,1).
func valueNoise(lattice []float32, cells int, u, v float32) float32 {
	fx := u * float32(cells)
	fy := v * float32(cells)
	x0 := int(fx)
	y0 := int(fy)
	tx := smooth(fx - float32(x0))
	ty := smooth(fy - float32(y0))

	at := func(x, y int) float32 {
		return lattice[(y%cells)*cells+(x%cells)]
	}
	top := lerp(at(x0, y0), at(x0+1, y0), tx)
	bottom := lerp(at(x0, y0+1), at(x0+1, y0+1), tx)
	return lerp(top, bottom, ty)
}

func smooth(t float32) float32 { return t * t * (3 - 2*t) }

func lerp(a, b, t float32) float32 { return a + (b-a)*t }
