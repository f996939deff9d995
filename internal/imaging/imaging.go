package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	// Register decoders for every format the upload surface accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmpty  = errors.New("image payload is empty")
	ErrDecode = errors.New("not a valid image of a supported format")
)

// Payload is a validated, immutable image as received from the client.
// Only the header is parsed here; pixel processing is the model's job.
type Payload struct {
	Data   []byte
	Format string
	MIME   string
	Width  int
	Height int
}

// Decode validates raw upload bytes as a supported raster image.
func Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, ErrEmpty
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return Payload{
		Data:   data,
		Format: format,
		MIME:   "image/" + format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// DecodeDataURL accepts either a full data URL ("data:image/png;base64,...")
// or a bare base64 string, mirroring the paste box in the web UI.
func DecodeDataURL(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Payload{}, ErrEmpty
	}

	if strings.HasPrefix(s, "data:") {
		_, b64, ok := strings.Cut(s, ",")
		if !ok {
			return Payload{}, fmt.Errorf("%w: malformed data URL", ErrDecode)
		}
		s = b64
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}

	return Decode(data)
}

// DataURL renders the payload as a base64 data URL for multimodal
// message parts.
func (p Payload) DataURL() string {
	return "data:" + p.MIME + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}
