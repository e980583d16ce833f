package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/dx-junkyard/plura/internal/platform/logger"
)

// TranscriptionService turns a voice memo into text. Treated as a black
// box by the rest of the system: bytes in, text out, TranscriptionError
// on failure.
type TranscriptionService interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Close() error
}

type transcriptionService struct {
	log      *logger.Logger
	client   *speech.Client
	language string
}

func NewTranscriptionService(log *logger.Logger) (TranscriptionService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "TranscriptionService")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	lang := strings.TrimSpace(os.Getenv("SPEECH_LANGUAGE_CODE"))
	if lang == "" {
		lang = "ja-JP"
	}

	ctx := context.Background()
	var c *speech.Client
	var err error
	if creds != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &transcriptionService{
		log:      slog,
		client:   c,
		language: lang,
	}, nil
}

func (s *transcriptionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *transcriptionService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", &TranscriptionError{Err: fmt.Errorf("empty audio")}
	}

	// Voice memos are short; a strict timeout keeps the request path honest.
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encodingForMime(mimeType),
			LanguageCode:               s.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}

	var b strings.Builder
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(alts[0].GetTranscript()))
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &TranscriptionError{Err: fmt.Errorf("no speech recognized")}
	}
	return text, nil
}

func encodingForMime(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(mt, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(mt, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(mt, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(mt, "wav"), strings.Contains(mt, "x-wav"), strings.Contains(mt, "linear16"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(mt, "mp3"), strings.Contains(mt, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
