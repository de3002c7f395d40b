package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func jpegBase64(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 70}))
	return []byte(base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func TestJPEGDecoder_Decode(t *testing.T) {
	img, err := JPEGDecoder{}.Decode(jpegBase64(t, 64, 36))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 36, img.Bounds().Dy())
}

func TestJPEGDecoder_DataURLPrefix(t *testing.T) {
	payload := append([]byte("data:image/jpeg;base64,"), jpegBase64(t, 16, 16)...)
	img, err := JPEGDecoder{}.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestJPEGDecoder_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(8, 4)))
	img, err := JPEGDecoder{}.Decode([]byte(base64.StdEncoding.EncodeToString(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestJPEGDecoder_Errors(t *testing.T) {
	_, err := JPEGDecoder{}.Decode(nil)
	assert.True(t, errors.Is(err, ErrEmptyPayload))

	_, err = JPEGDecoder{}.Decode([]byte("data:image/jpeg;base64,"))
	assert.True(t, errors.Is(err, ErrEmptyPayload))

	_, err = JPEGDecoder{}.Decode([]byte("!!not base64!!"))
	assert.Error(t, err)

	_, err = JPEGDecoder{}.Decode([]byte(base64.StdEncoding.EncodeToString([]byte("plain text"))))
	assert.Error(t, err)
}
