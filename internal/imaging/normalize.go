// Package imaging normalizes rendered pages before they reach an OCR engine.
package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// ToRGB returns img as an opaque RGBA image anchored at the origin.
// Transparent regions are composited onto white, which is what the
// OCR engines expect for page background.
func ToRGB(img image.Image) *image.RGBA {
	if img == nil {
		return nil
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && rgba.Opaque() {
		return rgba
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// ErrNoImage is returned when there is no pixel data to encode.
var ErrNoImage = errors.New("no image data")

// EncodePNG encodes img losslessly for engines that take encoded input.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
