package stt

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// DemoFilePath is sent instead of file content when no usable upload exists.
	DemoFilePath = "/demo/test-audio.mp3"
	// UploadPathPrefix prefixes the synthetic path built from an uploaded file name.
	UploadPathPrefix = "/uploaded/"
)

// Request is the body POSTed to the provider. It has exactly two shapes,
// built by NewFileRequest and NewDemoRequest; the zero value is not valid.
type Request struct {
	Language    string
	FileName    string
	FileContent string // base64
	FilePath    string

	demo bool
}

// NewFileRequest builds the file variant from an uploaded file's name and
// its base64-encoded content.
func NewFileRequest(language, fileName, base64Content string) Request {
	return Request{
		Language:    language,
		FileName:    fileName,
		FileContent: base64Content,
		FilePath:    UploadPathPrefix + fileName,
	}
}

// NewDemoRequest builds the demo variant, which carries no content fields.
func NewDemoRequest(language string) Request {
	return Request{
		Language: language,
		FilePath: DemoFilePath,
		demo:     true,
	}
}

func (r Request) IsDemo() bool { return r.demo }

func (r Request) MarshalJSON() ([]byte, error) {
	if r.demo {
		return json.Marshal(struct {
			Language string `json:"language"`
			FilePath string `json:"filePath"`
		}{r.Language, r.FilePath})
	}
	return json.Marshal(struct {
		Language    string `json:"language"`
		FileName    string `json:"fileName"`
		FileContent string `json:"fileContent"`
		FilePath    string `json:"filePath"`
	}{r.Language, r.FileName, r.FileContent, r.FilePath})
}

// Response is the provider's loosely structured reply. A nil field means the
// key was absent or was not a string.
type Response struct {
	Transcription *string
	Message       *string
	Language      *string
}

// ParseResponse decodes a provider body. The body must be a JSON object;
// anything else is an error.
func ParseResponse(body []byte) (*Response, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse provider response: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse provider response: body is null")
	}
	return &Response{
		Transcription: stringField(raw, "transcription"),
		Message:       stringField(raw, "message"),
		Language:      stringField(raw, "language"),
	}, nil
}

func stringField(raw map[string]any, key string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// Outcome classifies a single provider call.
type Outcome int

const (
	ProviderOK Outcome = iota
	ProviderHTTPError
	ProviderTransportError
)

func (o Outcome) String() string {
	switch o {
	case ProviderOK:
		return "ok"
	case ProviderHTTPError:
		return "http_error"
	case ProviderTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one provider call. Response is set only for
// ProviderOK, StatusCode for ProviderOK and ProviderHTTPError, Err for
// ProviderTransportError.
type Result struct {
	Outcome    Outcome
	Response   *Response
	StatusCode int
	Err        error
}

// Provider delivers a transcription request to a remote backend.
type Provider interface {
	Transcribe(ctx context.Context, req Request) Result
	Probe(ctx context.Context) (statusCode int, err error)
	Name() string
}
