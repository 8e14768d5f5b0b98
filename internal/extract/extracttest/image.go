package extracttest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"

	"golang.org/x/image/tiff"
)

// PNG encodes a w x h image. Noisy images resist compression, flat ones
// compress to a few hundred bytes.
func PNG(w, h int, noisy bool) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(int64(w*31 + h)))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if noisy {
				img.SetNRGBA(x, y, color.NRGBA{
					R: uint8(rng.Intn(256)),
					G: uint8(rng.Intn(256)),
					B: uint8(rng.Intn(256)),
					A: 255,
				})
				continue
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// TIFF encodes a flat, uncompressed w x h image.
func TIFF(w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xf0
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
