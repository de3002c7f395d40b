package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrEmptyPayload is returned for a message with no image data.
var ErrEmptyPayload = errors.New("frame: empty payload")

// Decoder turns a payload into an image. Implementations must be safe to
// call from several goroutines.
type Decoder interface {
	Decode(payload []byte) (image.Image, error)
}

// JPEGDecoder decodes base64 text, optionally carrying a data URL prefix
// such as "data:image/jpeg;base64,". PNG and GIF payloads are accepted too.
type JPEGDecoder struct{}

// Decode implements Decoder.
func (JPEGDecoder) Decode(payload []byte) (image.Image, error) {
	data := bytes.TrimSpace(payload)
	if bytes.HasPrefix(data, []byte("data:")) {
		i := bytes.IndexByte(data, ',')
		if i < 0 {
			return nil, fmt.Errorf("frame: malformed data url")
		}
		data = data[i+1:]
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return nil, fmt.Errorf("frame: base64: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw[:n]))
	if err != nil {
		return nil, fmt.Errorf("frame: decode image: %w", err)
	}
	return img, nil
}
