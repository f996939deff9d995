package imaging_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/zhouzirui/smolvqa/backend/internal/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	payload, err := imaging.Decode(pngBytes(t, 4, 3))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	if payload.Format != "png" {
		t.Fatalf("unexpected format: %s", payload.Format)
	}
	if payload.MIME != "image/png" {
		t.Fatalf("unexpected mime: %s", payload.MIME)
	}
	if payload.Width != 4 || payload.Height != 3 {
		t.Fatalf("unexpected dimensions: %dx%d", payload.Width, payload.Height)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := imaging.Decode([]byte("definitely not an image")); !errors.Is(err, imaging.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDecodeRejectsEmpty(t *testing.T) {
	if _, err := imaging.Decode(nil); !errors.Is(err, imaging.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDecodeDataURL(t *testing.T) {
	raw := pngBytes(t, 2, 2)
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	payload, err := imaging.DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL err: %v", err)
	}
	if payload.Format != "png" {
		t.Fatalf("unexpected format: %s", payload.Format)
	}
}

func TestDecodeDataURLBareBase64(t *testing.T) {
	raw := pngBytes(t, 2, 2)
	if _, err := imaging.DecodeDataURL(base64.StdEncoding.EncodeToString(raw)); err != nil {
		t.Fatalf("bare base64 err: %v", err)
	}
}

func TestDecodeDataURLInvalidBase64(t *testing.T) {
	if _, err := imaging.DecodeDataURL("data:image/png;base64,%%%%"); !errors.Is(err, imaging.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	payload, err := imaging.Decode(pngBytes(t, 2, 2))
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}

	again, err := imaging.DecodeDataURL(payload.DataURL())
	if err != nil {
		t.Fatalf("round trip err: %v", err)
	}
	if !bytes.Equal(again.Data, payload.Data) {
		t.Fatal("round trip altered payload bytes")
	}
}
