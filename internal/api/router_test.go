package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nikhilbhutani/transcribegateway/internal/api/handlers"
	"github.com/nikhilbhutani/transcribegateway/internal/config"
	"github.com/nikhilbhutani/transcribegateway/internal/gateway"
	"github.com/nikhilbhutani/transcribegateway/internal/metrics"
	"github.com/nikhilbhutani/transcribegateway/internal/stt"
)

func testConfig() *config.Config {
	return &config.Config{
		Upload: config.UploadConfig{MaxMemory: 1 << 20},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func newGateway(t *testing.T, providerURL string) (http.Handler, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	svc := gateway.NewService(stt.NewRemote(stt.RemoteConfig{BaseURL: providerURL}), m)
	return NewRouter(testConfig(), svc, m, nil, nil).Setup(), m
}

// closedURL returns the address of a server that is no longer listening.
func closedURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func uploadRequest(t *testing.T, fileName string, content []byte, language string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(content)
	}
	if language != "" {
		mw.WriteField("language", language)
	}
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/transcribe", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestTranscribeForwardsFileToProvider(t *testing.T) {
	var sent map[string]any
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		io.WriteString(w, `{"transcription":"T","language":"L2"}`)
	}))
	defer provider.Close()

	h, _ := newGateway(t, provider.URL)
	content := []byte("RIFF....WAVEfmt ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "nota.wav", content, "es"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	want := map[string]any{"success": true, "transcription": "T", "language": "L2", "provider": "AWS Lambda Enterprise"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["error"]; ok {
		t.Error("error field present on success")
	}

	if sent["fileName"] != "nota.wav" || sent["filePath"] != "/uploaded/nota.wav" || sent["language"] != "es" {
		t.Errorf("provider received %v", sent)
	}
	if sent["fileContent"] != base64.StdEncoding.EncodeToString(content) {
		t.Errorf("fileContent = %v", sent["fileContent"])
	}
}

func TestTranscribeDemoMode(t *testing.T) {
	var sent map[string]any
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		io.WriteString(w, `{}`)
	}))
	defer provider.Close()

	h, _ := newGateway(t, provider.URL)

	for name, req := range map[string]*http.Request{
		"no file":        uploadRequest(t, "", nil, "en"),
		"zero-byte file": uploadRequest(t, "empty.mp3", []byte{}, "en"),
	} {
		t.Run(name, func(t *testing.T) {
			sent = nil
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			want := map[string]any{"language": "en", "filePath": "/demo/test-audio.mp3"}
			if len(sent) != len(want) || sent["language"] != want["language"] || sent["filePath"] != want["filePath"] {
				t.Errorf("provider received %v, want %v", sent, want)
			}
			resp := decode[gateway.Response](t, rec)
			if resp.Transcription != "Transcripción completada" {
				t.Errorf("transcription = %q", resp.Transcription)
			}
		})
	}
}

func TestTranscribeAlwaysReturns200(t *testing.T) {
	errorProvider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer errorProvider.Close()

	garbageProvider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway timeout</html>")
	}))
	defer garbageProvider.Close()

	size := 2*1024*1024 + 700*1024

	tests := []struct {
		name         string
		providerURL  string
		req          func(t *testing.T) *http.Request
		wantSuccess  bool
		wantProvider string
		wantError    bool
		wantContains []string
	}{
		{
			name:         "provider error status",
			providerURL:  errorProvider.URL,
			req:          func(t *testing.T) *http.Request { return uploadRequest(t, "reunion.mp4", make([]byte, size), "es") },
			wantSuccess:  true,
			wantProvider: "Anna Logica Enterprise (Fallback)",
			wantContains: []string{`"reunion.mp4"`, "Tamaño: 3 MB"},
		},
		{
			name:         "provider unreachable",
			providerURL:  closedURL(),
			req:          func(t *testing.T) *http.Request { return uploadRequest(t, "a.mp3", []byte("abc"), "es") },
			wantSuccess:  false,
			wantProvider: "Enterprise Backup",
			wantError:    true,
		},
		{
			name:         "provider returns non-json",
			providerURL:  garbageProvider.URL,
			req:          func(t *testing.T) *http.Request { return uploadRequest(t, "a.mp3", []byte("abc"), "") },
			wantSuccess:  false,
			wantProvider: "Enterprise Backup",
			wantError:    true,
		},
		{
			name:        "body is not a form",
			providerURL: errorProvider.URL,
			req: func(t *testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/transcribe", strings.NewReader(`{"language":"es"}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			wantSuccess:  false,
			wantProvider: "Enterprise Backup",
			wantError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newGateway(t, tt.providerURL)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req(t))

			if rec.Code != http.StatusOK {
				t.Fatalf("outer status = %d, want 200", rec.Code)
			}
			resp := decode[gateway.Response](t, rec)
			if resp.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Provider != tt.wantProvider {
				t.Errorf("provider = %q, want %q", resp.Provider, tt.wantProvider)
			}
			if (resp.Error != "") != tt.wantError {
				t.Errorf("error = %q, wantError %v", resp.Error, tt.wantError)
			}
			if resp.Transcription == "" {
				t.Error("transcription must never be empty")
			}
			for _, s := range tt.wantContains {
				if !strings.Contains(resp.Transcription, s) {
					t.Errorf("transcription %q missing %q", resp.Transcription, s)
				}
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()

	tests := []struct {
		name        string
		providerURL string
		wantAWS     string
	}{
		{"reachable", up.URL, "connected"},
		{"error status", forbidden.URL, "connected"},
		{"unreachable", closedURL(), "fallback mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newGateway(t, tt.providerURL)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transcribe", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			got := decode[gateway.HealthReport](t, rec)
			if got.Status != "healthy" || got.Service != "Anna Logica Clean" || got.AWS != tt.wantAWS {
				t.Errorf("got %+v, want aws %q", got, tt.wantAWS)
			}
			if got.Timestamp == "" || !strings.HasSuffix(got.Timestamp, "Z") {
				t.Errorf("timestamp = %q", got.Timestamp)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"transcription":"ok"}`)
	}))
	defer provider.Close()

	h, _ := newGateway(t, provider.URL)
	h.ServeHTTP(httptest.NewRecorder(), uploadRequest(t, "", nil, ""))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`gateway_transcriptions_total{outcome="ok",provider="AWS Lambda Enterprise"} 1`,
		`gateway_http_requests_total{method="POST",route="/api/transcribe`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		deps map[string]handlers.Pinger
		want int
	}{
		{"no dependencies", nil, http.StatusOK},
		{"redis ok", map[string]handlers.Pinger{"redis": fakePinger{}}, http.StatusOK},
		{"redis down", map[string]handlers.Pinger{"redis": fakePinger{err: errors.New("refused")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := gateway.NewService(stt.NewRemote(stt.RemoteConfig{BaseURL: closedURL()}), nil)
			h := NewRouter(testConfig(), svc, nil, nil, tt.deps).Setup()

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func TestRateLimitedSubmissionStill200(t *testing.T) {
	svc := gateway.NewService(stt.NewRemote(stt.RemoteConfig{BaseURL: closedURL()}), nil)
	h := NewRouter(testConfig(), svc, nil, denyAll{}, nil).Setup()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "a.mp3", []byte("abc"), "es"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when limited", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := decode[gateway.Response](t, rec); got != gateway.BackupResponse() {
		t.Errorf("got %+v, want backup response", got)
	}

	// Health and liveness are never limited.
	for _, path := range []string{"/api/transcribe", "/healthz"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Header().Get("Retry-After") != "" {
			t.Errorf("GET %s: status = %d, Retry-After = %q", path, rec.Code, rec.Header().Get("Retry-After"))
		}
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transcribe", nil))
	if got := decode[gateway.HealthReport](t, rec); got.Status != "healthy" || got.AWS != "fallback mode" {
		t.Errorf("health = %+v", got)
	}
}

func TestRequestIDReachesProvider(t *testing.T) {
	var gotID string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		io.WriteString(w, `{"transcription":"T"}`)
	}))
	defer provider.Close()

	h, _ := newGateway(t, provider.URL)
	req := uploadRequest(t, "", nil, "")
	req.Header.Set("X-Request-Id", "trace-7f3a")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "trace-7f3a" {
		t.Errorf("provider X-Request-ID = %q, want the inbound request id", gotID)
	}
}

func TestCORSDisabledWithEmptyOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = nil
	svc := gateway.NewService(stt.NewRemote(stt.RemoteConfig{BaseURL: closedURL()}), nil)
	h := NewRouter(cfg, svc, nil, nil, nil).Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/transcribe", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q with CORS disabled", got)
	}
}
