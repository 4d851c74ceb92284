package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func TestNormalize_FixedShapeAndRange(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 300, 200))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 256)
	}
	translucent := image.NewNRGBA(image.Rect(0, 0, 50, 70))
	for i := range translucent.Pix {
		translucent.Pix[i] = uint8(i * 7 % 256)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"1x1 png", encodePNG(t, gradient(1, 1))},
		{"640x480 jpeg", encodeJPEG(t, gradient(640, 480))},
		{"128x128 png", encodePNG(t, gradient(128, 128))},
		{"tall jpeg", encodeJPEG(t, gradient(33, 900))},
		{"grayscale png", encodePNG(t, gray)},
		{"alpha png", encodePNG(t, translucent)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := Normalize(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, []int64{1, 128, 128, 3}, tensor.Shape)
			require.Len(t, tensor.Data, 128*128*3)
			for i, v := range tensor.Data {
				if v < 0 || v > 1 {
					t.Fatalf("value %d out of range: %f", i, v)
				}
			}
		})
	}
}

func TestNormalize_ChannelLastScaling(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	tensor, err := Normalizer{Size: 2}.Normalize(encodePNG(t, img))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 2, 3}, tensor.Shape)
	for px := 0; px < 4; px++ {
		assert.InDelta(t, 1.0, tensor.Data[px*3], 1e-6)
		assert.InDelta(t, 0.0, tensor.Data[px*3+1], 1e-6)
		assert.InDelta(t, 0.2, tensor.Data[px*3+2], 1e-6)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := encodeJPEG(t, gradient(200, 150))

	a, err := Normalize(raw)
	require.NoError(t, err)
	b, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h
// grayscale image with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalize_DecodeErrors(t *testing.T) {
	for name, raw := range map[string][]byte{
		"empty":              nil,
		"garbage":            []byte("definitely not an image"),
		"truncated":          encodePNG(t, gradient(20, 20))[:30],
		"oversized png":      pngHeader(16000, 16000),
		"huge declared size": pngHeader(1<<30, 1<<30),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(raw)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestNormalize_MaxPixels(t *testing.T) {
	raw := encodePNG(t, gradient(20, 20))

	_, err := Normalizer{Size: 4, MaxPixels: 399}.Normalize(raw)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "exceeds 399 pixels")

	tensor, err := Normalizer{Size: 4, MaxPixels: 400}.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 4, 3}, tensor.Shape)
}
