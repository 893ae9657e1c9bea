package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-interview/internal/config"
)

var (
	ErrEmptyPayload = errors.New("audio payload is empty")
	ErrEmptyBlob    = errors.New("captured audio is empty")
)

// Blob is a raw recording handed over by the capture device.
type Blob struct {
	Data     []byte
	MimeType string
}

// Upload is a ready-to-send multipart body.
type Upload struct {
	Body        []byte
	ContentType string
}

// Codec converts backend audio payloads into playable handles and wraps
// captured recordings for upload. It never re-encodes audio.
type Codec struct {
	mimeType       string
	uploadFilename string
	newID          func() string
}

func NewCodec(cfg config.AudioConfig) *Codec {
	mimeType := cfg.MimeType
	if mimeType == "" {
		mimeType = "audio/mp3"
	}
	filename := cfg.UploadFilename
	if filename == "" {
		filename = "user.wav"
	}
	return &Codec{
		mimeType:       mimeType,
		uploadFilename: filename,
		newID:          uuid.NewString,
	}
}

// Decode turns a base64 payload into a handle. The handle is not tracked;
// callers own it and must Release it.
func (c *Codec) Decode(payload string) (*Handle, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return newHandle(c.newID(), c.mimeType, data), nil
}

// PackageForUpload builds the multipart form the voice endpoint expects:
// the recording under "file" and the role under "role".
func (c *Codec) PackageForUpload(blob Blob, role string) (Upload, error) {
	if len(blob.Data) == 0 {
		return Upload{}, ErrEmptyBlob
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(c.uploadFilename)))
	contentType := blob.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	fw, err := mw.CreatePart(header)
	if err != nil {
		return Upload{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(blob.Data); err != nil {
		return Upload{}, fmt.Errorf("write audio data: %w", err)
	}
	if err := mw.WriteField("role", role); err != nil {
		return Upload{}, fmt.Errorf("write role field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return Upload{Body: buf.Bytes(), ContentType: mw.FormDataContentType()}, nil
}

// DecodedLen returns the exact byte length a well-formed padded base64
// payload of n characters decodes to.
func DecodedLen(payload string) int {
	n := len(payload)
	if n == 0 {
		return 0
	}
	pad := 0
	if strings.HasSuffix(payload, "==") {
		pad = 2
	} else if strings.HasSuffix(payload, "=") {
		pad = 1
	}
	return n/4*3 - pad
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
