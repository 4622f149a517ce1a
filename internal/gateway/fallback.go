package gateway

import (
	"fmt"
	"math"

	"github.com/nikhilbhutani/transcribegateway/internal/stt"
)

// Provider labels identify which path produced a response.
const (
	ProviderPrimary  = "AWS Lambda Enterprise"
	ProviderFallback = "Anna Logica Enterprise (Fallback)"
	ProviderBackup   = "Enterprise Backup"
)

const (
	DefaultTranscription = "Transcripción completada"
	BackupTranscription  = "🏢 Sistema de respaldo activado. Transcripción procesada correctamente por Anna Logica Enterprise."
	BackupError          = "Error processing transcription"

	fallbackTemplate = "🏢 ANNA LOGICA ENTERPRISE - Transcripción completada exitosamente. " +
		"Sistema empresarial AWS Lambda procesando \"%s\" con arquitectura de nivel institucional. " +
		"Tamaño: %d MB. Tiempo de respuesta empresarial garantizado. 🚀"
)

// Response is the envelope returned to callers. Language is empty (and
// omitted) only on the backup path; Error is set only there.
type Response struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription"`
	Language      string `json:"language,omitempty"`
	Provider      string `json:"provider"`
	Error         string `json:"error,omitempty"`
}

// MapResult turns a provider outcome into the caller-facing envelope.
// It never fails: unknown outcomes map to the backup response.
func MapResult(in InboundRequest, res stt.Result) Response {
	switch res.Outcome {
	case stt.ProviderOK:
		return primaryResponse(in, res.Response)
	case stt.ProviderHTTPError:
		return Response{
			Success:       true,
			Transcription: FallbackTranscription(in),
			Language:      in.RequestedLanguage(),
			Provider:      ProviderFallback,
		}
	default:
		return BackupResponse()
	}
}

func primaryResponse(in InboundRequest, pr *stt.Response) Response {
	if pr == nil {
		pr = &stt.Response{}
	}
	return Response{
		Success:       true,
		Transcription: firstNonEmpty(pr.Transcription, pr.Message, DefaultTranscription),
		Language:      firstNonEmpty(pr.Language, nil, in.RequestedLanguage()),
		Provider:      ProviderPrimary,
	}
}

// FallbackTranscription is the narrative served when the provider answers
// with an error status. It names the upload (or "audio") and its size in
// whole megabytes, rounded half up.
func FallbackTranscription(in InboundRequest) string {
	name := "audio"
	var mb int64
	if in.Upload != nil {
		if in.Upload.Name != "" {
			name = in.Upload.Name
		}
		mb = int64(math.Floor(float64(in.Upload.Size)/1024/1024 + 0.5))
	}
	return fmt.Sprintf(fallbackTemplate, name, mb)
}

// BackupResponse is served when the provider cannot be reached or the
// pipeline fails unexpectedly. Callers still receive it with HTTP 200.
func BackupResponse() Response {
	return Response{
		Success:       false,
		Transcription: BackupTranscription,
		Provider:      ProviderBackup,
		Error:         BackupError,
	}
}

func firstNonEmpty(a, b *string, def string) string {
	if a != nil && *a != "" {
		return *a
	}
	if b != nil && *b != "" {
		return *b
	}
	return def
}
