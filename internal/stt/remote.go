package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxResponseBytes caps how much of a provider reply is read.
const DefaultMaxResponseBytes = 10 << 20

// ErrResponseTooLarge is returned when a provider reply exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("provider response too large")

// RemoteConfig holds configuration for the HTTP transcription provider.
type RemoteConfig struct {
	BaseURL          string
	Timeout          time.Duration // default: 60s
	HealthTimeout    time.Duration // default: 10s
	MaxResponseBytes int64         // default: DefaultMaxResponseBytes
}

// Remote calls a provider exposing POST/GET {BaseURL}/transcribe.
type Remote struct {
	cfg          RemoteConfig
	httpClient   *http.Client
	healthClient *http.Client
}

func NewRemote(cfg RemoteConfig) *Remote {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 10 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return &Remote{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		healthClient: &http.Client{Timeout: cfg.HealthTimeout},
	}
}

func (r *Remote) Name() string { return "aws-lambda" }

func (r *Remote) endpoint() string { return r.cfg.BaseURL + "/transcribe" }

// Transcribe makes exactly one POST attempt. It never returns a nil-outcome
// Result: every failure is classified.
func (r *Remote) Transcribe(ctx context.Context, req Request) Result {
	body, err := json.Marshal(req)
	if err != nil {
		return transportError(fmt.Errorf("encode provider request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(body))
	if err != nil {
		return transportError(fmt.Errorf("build provider request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", RequestID(ctx))

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return transportError(fmt.Errorf("provider request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.drain(resp.Body)
		return Result{Outcome: ProviderHTTPError, StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxResponseBytes+1))
	if err != nil {
		return transportError(fmt.Errorf("read provider response: %w", err))
	}
	if int64(len(respBody)) > r.cfg.MaxResponseBytes {
		return transportError(fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, r.cfg.MaxResponseBytes))
	}

	parsed, err := ParseResponse(respBody)
	if err != nil {
		return transportError(err)
	}

	return Result{Outcome: ProviderOK, Response: parsed, StatusCode: resp.StatusCode}
}

// Probe issues a bodiless GET to the transcribe endpoint. A non-nil error
// means the HTTP exchange itself did not complete.
func (r *Remote) Probe(ctx context.Context) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(), nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := r.healthClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()
	r.drain(resp.Body)

	return resp.StatusCode, nil
}

// drain discards at most MaxResponseBytes so the connection can be reused
// without reading an unbounded body.
func (r *Remote) drain(body io.Reader) {
	io.Copy(io.Discard, io.LimitReader(body, r.cfg.MaxResponseBytes))
}

type requestIDKey struct{}

// WithRequestID attaches the id sent to the provider as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached by WithRequestID, or a fresh one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func transportError(err error) Result {
	return Result{Outcome: ProviderTransportError, Err: err}
}

// IsTimeout reports whether a transport failure was a deadline being hit.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
