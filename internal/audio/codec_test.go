package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/loqalabs/loqa-interview/internal/config"
)

func newTestCodec() *Codec {
	return NewCodec(config.AudioConfig{MimeType: "audio/mp3", UploadFilename: "user.wav"})
}

func TestDecodePreservesBytes(t *testing.T) {
	codec := newTestCodec()
	for size := 0; size < 9; size++ {
		raw := make([]byte, size+1)
		for i := range raw {
			raw[i] = byte(i * 37)
		}
		payload := base64.StdEncoding.EncodeToString(raw)

		h, err := codec.Decode(payload)
		if err != nil {
			t.Fatalf("decode %d bytes: %v", len(raw), err)
		}
		if h.Size() != len(raw) || h.Size() != DecodedLen(payload) {
			t.Fatalf("size mismatch: handle=%d raw=%d expected=%d", h.Size(), len(raw), DecodedLen(payload))
		}
		got, err := h.Bytes()
		if err != nil {
			t.Fatalf("bytes: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("decoded bytes differ")
		}
		if h.MimeType != "audio/mp3" {
			t.Fatalf("unexpected mime type %q", h.MimeType)
		}
	}
}

func TestDecodeDeterministic(t *testing.T) {
	codec := newTestCodec()
	payload := base64.StdEncoding.EncodeToString([]byte("ID3 fake mp3 frame data"))

	first, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct handles")
	}
	a, _ := first.Bytes()
	b, _ := second.Bytes()
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical content")
	}
}

func TestDecodeRejectsBadPayload(t *testing.T) {
	codec := newTestCodec()
	if _, err := codec.Decode(""); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if _, err := codec.Decode("not base64!"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPackageForUpload(t *testing.T) {
	codec := newTestCodec()
	recording := []byte{'R', 'I', 'F', 'F', 0x00, 0xff, 0x10}

	upload, err := codec.PackageForUpload(Blob{Data: recording, MimeType: "audio/wav"}, "Software Engineer")
	if err != nil {
		t.Fatalf("package: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(upload.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("unexpected content type %q: %v", upload.ContentType, err)
	}
	form, err := multipart.NewReader(bytes.NewReader(upload.Body), params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	if got := form.Value["role"]; len(got) != 1 || got[0] != "Software Engineer" {
		t.Fatalf("unexpected role field %v", got)
	}
	files := form.File["file"]
	if len(files) != 1 || files[0].Filename != "user.wav" {
		t.Fatalf("unexpected file parts %v", files)
	}
	f, err := files[0].Open()
	if err != nil {
		t.Fatalf("open part: %v", err)
	}
	defer f.Close()
	body, _ := io.ReadAll(f)
	if !bytes.Equal(body, recording) {
		t.Fatalf("recording altered during packaging")
	}
}

func TestPackageForUploadEmpty(t *testing.T) {
	if _, err := newTestCodec().PackageForUpload(Blob{}, "role"); !errors.Is(err, ErrEmptyBlob) {
		t.Fatalf("expected ErrEmptyBlob, got %v", err)
	}
}

func TestHandlesReleaseAll(t *testing.T) {
	codec := newTestCodec()
	set := NewHandles()
	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := codec.Decode(base64.StdEncoding.EncodeToString([]byte{byte(i), 1, 2}))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		set.Track(h)
		handles = append(handles, h)
	}
	if set.Outstanding() != 3 {
		t.Fatalf("expected 3 outstanding, got %d", set.Outstanding())
	}
	if !set.Release(handles[0].ID) {
		t.Fatalf("expected release of tracked handle")
	}
	if set.Release(handles[0].ID) {
		t.Fatalf("second release should report false")
	}
	if n := set.ReleaseAll(); n != 2 {
		t.Fatalf("expected 2 released, got %d", n)
	}
	for _, h := range handles {
		if !h.Released() {
			t.Fatalf("handle %s not released", h.ID)
		}
		if _, err := h.Open(); !errors.Is(err, ErrReleased) {
			t.Fatalf("expected ErrReleased, got %v", err)
		}
	}
	if set.Outstanding() != 0 {
		t.Fatalf("expected none outstanding")
	}
}
