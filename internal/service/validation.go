package service

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"
	"github.com/code19m/errx"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const genericContentType = "application/octet-stream"

func invalidArgument(msg string, details errx.D) error {
	return errx.New(msg,
		errx.WithType(errx.T_Validation),
		errx.WithCode(upload.CodeInvalidArgument),
		errx.WithDetails(details),
	)
}

// validateMessage checks a request's validate tags.
func (s *fileServer) validateMessage(msg any) error {
	err := s.validate.Struct(msg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidArgument(err.Error(), errx.D{})
	}
	fields := errx.D{}
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return invalidArgument("validation failed", fields)
}

// ValidateContentType checks that the leading bytes of content match the
// declared type. Empty and generic declarations always pass; the pipeline
// sniffs those itself. The read position is restored.
func ValidateContentType(content io.ReadSeeker, declared string) error {
	declared = normalizeType(declared)
	if declared == "" || declared == genericContentType {
		return nil
	}

	start, err := content.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("mark content: %w", err)
	}
	detected, err := mimetype.DetectReader(content)
	if err != nil {
		return fmt.Errorf("read magic bytes: %w", err)
	}
	if _, err := content.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("reset content: %w", err)
	}

	if !isContentTypeMatch(detected, declared) {
		return fmt.Errorf("content type mismatch: declared=%s, detected=%s", declared, detected.String())
	}
	return nil
}

func isContentTypeMatch(detected *mimetype.MIME, declared string) bool {
	// text/plain covers JSON, CSV and other text formats through the parent chain
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
	}

	// Same family, e.g. image/jpeg declared for a webp
	actualFamily, _, _ := strings.Cut(detected.String(), "/")
	declaredFamily, _, _ := strings.Cut(declared, "/")
	return actualFamily == declaredFamily && actualFamily != "application"
}

func normalizeType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mediaType
}
