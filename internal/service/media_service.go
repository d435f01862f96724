package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
)

// Sentinel errors for question image uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Image types a question may carry, keyed by sniffed MIME type.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// MediaService stores question images on local disk.
type MediaService struct {
	dir      string
	maxBytes int64
	log      zerolog.Logger
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config, log zerolog.Logger) *MediaService {
	return &MediaService{
		dir:      cfg.UploadDir,
		maxBytes: cfg.MaxUploadBytes,
		log:      log.With().Str("component", "media_service").Logger(),
	}
}

// SaveQuestionImage writes an uploaded image under a random name and returns
// the URL path to reference from Question.Image. The type is sniffed from the
// content; the client's Content-Type header is ignored.
func (s *MediaService) SaveQuestionImage(r io.Reader, size int64) (string, error) {
	if size > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, size, s.maxBytes)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(s.dir, filename))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	// One byte over the limit is enough to reject a lying size.
	written, err := io.Copy(dst, io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.maxBytes+1))
	if err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("write file: %w", err)
	}
	if written > s.maxBytes {
		os.Remove(dst.Name())
		return "", fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, s.maxBytes)
	}

	s.log.Debug().Str("file", filename).Int64("bytes", written).Msg("Question image stored")
	return "/uploads/" + filename, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedImageTypes))
	for t := range allowedImageTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
