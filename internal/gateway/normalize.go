package gateway

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/nikhilbhutani/transcribegateway/internal/stt"
)

// DefaultLanguage is used when the caller sends no language or an empty one.
const DefaultLanguage = "auto"

// ErrUnsupportedBody is returned by ParseInbound for bodies that are not forms.
var ErrUnsupportedBody = errors.New("request body is not a form")

// Upload is a file received from the caller.
type Upload struct {
	Name    string
	Content []byte // only read when Size > 0
	Size    int64
}

// InboundRequest is a caller submission. Upload is nil when no file part was sent.
type InboundRequest struct {
	Upload   *Upload
	Language string
}

// HasFile reports whether the request carries a file that should be forwarded.
// A zero-byte upload counts as no file.
func (in InboundRequest) HasFile() bool {
	return in.Upload != nil && in.Upload.Size > 0
}

// RequestedLanguage returns the caller's language or DefaultLanguage.
func (in InboundRequest) RequestedLanguage() string {
	if in.Language == "" {
		return DefaultLanguage
	}
	return in.Language
}

// ParseInbound reads the "file" and "language" fields from a multipart or
// urlencoded form. A missing or unreadable file part yields a request with no
// file; only a body that cannot be parsed as a form is an error.
func ParseInbound(r *http.Request, maxMemory int64) (InboundRequest, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return InboundRequest{}, fmt.Errorf("%w: %v", ErrUnsupportedBody, err)
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return InboundRequest{}, fmt.Errorf("parse multipart form: %w", err)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return InboundRequest{}, fmt.Errorf("parse form: %w", err)
		}
	default:
		return InboundRequest{}, fmt.Errorf("%w: %s", ErrUnsupportedBody, mediaType)
	}

	in := InboundRequest{Language: r.PostFormValue("language")}
	in.Language = in.RequestedLanguage()

	if r.MultipartForm == nil {
		return in, nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			slog.Warn("unreadable file part, treating as no file", "error", err)
		}
		return in, nil
	}
	defer file.Close()

	upload := &Upload{Name: header.Filename, Size: header.Size}
	if upload.Size > 0 {
		content, err := io.ReadAll(file)
		if err != nil {
			slog.Warn("failed to read uploaded file, treating as no file",
				"file", header.Filename,
				"error", err,
			)
			return in, nil
		}
		upload.Content = content
	}
	in.Upload = upload

	return in, nil
}

// Normalize builds exactly one provider request variant: the file variant
// when the request has a non-empty upload, the demo variant otherwise.
func Normalize(in InboundRequest) stt.Request {
	lang := in.RequestedLanguage()
	if !in.HasFile() {
		return stt.NewDemoRequest(lang)
	}
	encoded := base64.StdEncoding.EncodeToString(in.Upload.Content)
	return stt.NewFileRequest(lang, in.Upload.Name, encoded)
}
