package embed

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	// decoders registered for image.Decode
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSize is the square input resolution of CLIP-style image encoders.
const ImageSize = 224

// LoadImage decodes an image file and preprocesses it for the image model.
func LoadImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return Preprocess(img, ImageSize)
}

// Preprocess flattens img onto an opaque RGB canvas, resizes its shortest side to size
// with bicubic interpolation, crops the centre size x size square and encodes it as PNG.
func Preprocess(img image.Image, size int) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)

	scale := float64(size) / float64(min(w, h))
	nw := max(size, int(float64(w)*scale+0.5))
	nh := max(size, int(float64(h)*scale+0.5))
	resized := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(resized, resized.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)

	cropped := image.NewRGBA(image.Rect(0, 0, size, size))
	offset := image.Pt((nw-size)/2, (nh-size)/2)
	draw.Draw(cropped, cropped.Bounds(), resized, offset, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
