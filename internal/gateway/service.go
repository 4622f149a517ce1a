package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/transcribegateway/internal/stt"
)

// Outcome labels for responses produced without a completed provider call.
const (
	outcomeUnexpected  = "unexpected"
	outcomeRateLimited = "rate_limited"
)

// Recorder receives per-call measurements. *metrics.Metrics implements it.
type Recorder interface {
	RecordTranscription(outcome, provider string)
	RecordProviderCall(outcome string, seconds float64)
	RecordUpload(size int64)
	RecordHealthProbe(aws string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTranscription(string, string) {}
func (nopRecorder) RecordProviderCall(string, float64) {}
func (nopRecorder) RecordUpload(int64)                 {}
func (nopRecorder) RecordHealthProbe(string)           {}

// Service runs the normalize → call → map pipeline. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	provider stt.Provider
	recorder Recorder
	now      func() time.Time
}

func NewService(provider stt.Provider, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		provider: provider,
		recorder: recorder,
		now:      time.Now,
	}
}

// Transcribe always returns a response; provider failures and panics are
// translated into the fallback or backup envelope.
func (s *Service) Transcribe(ctx context.Context, in InboundRequest) (resp Response) {
	requestID := requestIDFrom(ctx)
	ctx = stt.WithRequestID(ctx, requestID)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("transcription pipeline panicked, serving backup",
				"request_id", requestID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			s.recorder.RecordTranscription(outcomeUnexpected, ProviderBackup)
			resp = BackupResponse()
		}
	}()

	req := Normalize(in)
	if !req.IsDemo() {
		s.recorder.RecordUpload(in.Upload.Size)
	}

	start := s.now()
	res := s.provider.Transcribe(ctx, req)
	elapsed := s.now().Sub(start)

	resp = MapResult(in, res)
	s.recorder.RecordProviderCall(res.Outcome.String(), elapsed.Seconds())
	s.recorder.RecordTranscription(res.Outcome.String(), resp.Provider)

	attrs := []any{
		"request_id", requestID,
		"provider", s.provider.Name(),
		"demo", req.IsDemo(),
		"language", req.Language,
		"latency_ms", elapsed.Milliseconds(),
	}
	switch res.Outcome {
	case stt.ProviderOK:
		slog.Info("transcription completed", attrs...)
	case stt.ProviderHTTPError:
		slog.Warn("provider returned error status, serving fallback",
			append(attrs, "status", res.StatusCode)...)
	default:
		slog.Error("provider call failed, serving backup",
			append(attrs, "error", res.Err, "timeout", stt.IsTimeout(res.Err))...)
	}

	return resp
}

// Reject produces the backup response for a request that could not be read.
func (s *Service) Reject(err error) Response {
	slog.Error("could not read transcription request, serving backup", "error", err)
	s.recorder.RecordTranscription(outcomeUnexpected, ProviderBackup)
	return BackupResponse()
}

// Throttle produces the backup response for a submission turned away by the
// rate limiter. The provider is not called.
func (s *Service) Throttle(ctx context.Context) Response {
	slog.Warn("rate limit exceeded, serving backup", "request_id", requestIDFrom(ctx))
	s.recorder.RecordTranscription(outcomeRateLimited, ProviderBackup)
	return BackupResponse()
}

// requestIDFrom reuses the id assigned by the HTTP layer so gateway and
// access log lines share it.
func requestIDFrom(ctx context.Context) string {
	if id := chimiddleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
