package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/loqalabs/loqa-interview/internal/audio"
	"github.com/loqalabs/loqa-interview/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrBackend classifies every failure of a backend operation.
var ErrBackend = errors.New("backend error")

// Error describes a failed backend call.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrBackend, e.Err} }

type Greeting struct {
	Text        string `json:"text"`
	AudioBase64 string `json:"audio_base64"`
	Role        string `json:"role"`
}

type TextAnswer struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

type VoiceAnswer struct {
	Transcript  string `json:"transcript"`
	Answer      string `json:"answer"`
	AudioBase64 string `json:"audio_base64"`
}

type Feedback struct {
	Text string `json:"feedback"`
}

// errorBody catches the {"error": "..."} replies the backend sends with a 200.
type errorBody struct {
	Error string `json:"error"`
}

type textRequest struct {
	Query string `json:"query"`
	Role  string `json:"role"`
}

// Client speaks the interview backend's HTTP contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tracer     trace.Tracer
	logger     *slog.Logger
}

func NewClient(cfg config.BackendConfig, logger *slog.Logger) *Client {
	return NewClientWithHTTP(cfg, &http.Client{}, logger)
}

func NewClientWithHTTP(cfg config.BackendConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		timeout:    time.Duration(cfg.TimeoutMS) * time.Millisecond,
		tracer:     otel.Tracer("github.com/loqalabs/loqa-interview/backend"),
		logger:     logger.With(slog.String("component", "backend-client")),
	}
}

func (c *Client) ResetMemory(ctx context.Context) error {
	return c.do(ctx, "reset_memory", http.MethodPost, "/reset_memory", nil, "", nil)
}

func (c *Client) Greet(ctx context.Context, mode, role string) (Greeting, error) {
	q := url.Values{}
	q.Set("mode", mode)
	if role != "" {
		q.Set("role", role)
	}
	var out Greeting
	err := c.do(ctx, "greet", http.MethodGet, "/greet?"+q.Encode(), nil, "", &out)
	return out, err
}

func (c *Client) ChatText(ctx context.Context, query, role string) (TextAnswer, error) {
	body, err := json.Marshal(textRequest{Query: query, Role: role})
	if err != nil {
		return TextAnswer{}, &Error{Op: "chattext", Err: err}
	}
	var out TextAnswer
	err = c.do(ctx, "chattext", http.MethodPost, "/chattext", body, "application/json", &out)
	return out, err
}

func (c *Client) VoiceChat(ctx context.Context, upload audio.Upload) (VoiceAnswer, error) {
	var out VoiceAnswer
	err := c.do(ctx, "voice_chat", http.MethodPost, "/voice_chat", upload.Body, upload.ContentType, &out)
	return out, err
}

func (c *Client) EndInterview(ctx context.Context) (Feedback, error) {
	var out Feedback
	err := c.do(ctx, "end_interview", http.MethodPost, "/end_interview", nil, "", &out)
	return out, err
}

// UploadResume sends a document for role detection. A 2xx reply means the
// backend now holds the resume in its session memory.
func (c *Client) UploadResume(ctx context.Context, filename string, document []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return &Error{Op: "upload_resume", Err: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := fw.Write(document); err != nil {
		return &Error{Op: "upload_resume", Err: fmt.Errorf("write document: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return &Error{Op: "upload_resume", Err: fmt.Errorf("close multipart writer: %w", err)}
	}
	return c.do(ctx, "upload_resume", http.MethodPost, "/upload_resume", buf.Bytes(), mw.FormDataContentType(), nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, contentType string, out any) error {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("backend.operation", op),
	)

	err := c.roundTrip(ctx, op, method, path, body, contentType, out)
	if err != nil {
		var be *Error
		if errors.As(err, &be) && be.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", be.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("backend call failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body []byte, contentType string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if len(bytes.TrimSpace(data)) > 0 {
		var failure errorBody
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New(failure.Error)}
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
