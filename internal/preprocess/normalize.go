// Package preprocess turns uploaded image bytes into classifier input.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Brownie44l1/xray-api/internal/model"
	"github.com/nfnt/resize"
)

// DefaultSize is the side length the classifier was trained on.
const DefaultSize = 128

// DefaultMaxPixels caps the declared width*height of an upload. Decoding
// allocates per pixel, so a small compressed file can otherwise claim
// gigabytes.
const DefaultMaxPixels = 40_000_000

// Channels is the colour depth of every normalized tensor.
const Channels = 3

// ErrDecode is returned when the bytes are not a decodable image.
var ErrDecode = errors.New("cannot decode image")

// Normalizer resizes to Size x Size and scales pixels to [0,1]. Images
// larger than MaxPixels are rejected before decoding.
type Normalizer struct {
	Size      int
	MaxPixels int64
}

// Normalize uses DefaultSize.
func Normalize(raw []byte) (model.Tensor, error) {
	return Normalizer{Size: DefaultSize}.Normalize(raw)
}

// Normalize decodes raw and returns a [1, Size, Size, 3] channel-last tensor.
func (n Normalizer) Normalize(raw []byte) (model.Tensor, error) {
	size := n.Size
	if size <= 0 {
		size = DefaultSize
	}
	if len(raw) == 0 {
		return model.Tensor{}, fmt.Errorf("%w: empty input", ErrDecode)
	}

	maxPixels := n.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Tensor{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return model.Tensor{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// Nearest neighbour matches the interpolation the model saw in training.
	resized := resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)

	out := model.NewTensor(1, int64(size), int64(size), Channels)
	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			out.Data[i] = scale(r)
			out.Data[i+1] = scale(g)
			out.Data[i+2] = scale(b)
			i += Channels
		}
	}

	return out, nil
}

// scale maps a 16-bit colour channel to its 8-bit value divided by 255.
func scale(c uint32) float32 {
	return float32(c>>8) / 255.0
}
