// Package extract turns uploaded file bytes into plain text by declared type.
package extract

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"askdocs/internal/domain"
)

// Kind is a normalised document type.
type Kind string

const (
	KindText    Kind = "text"
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

// KindOf maps an extension, file name or MIME type to a Kind.
func KindOf(declaredType string) Kind {
	t := strings.ToLower(strings.TrimSpace(declaredType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if ext := filepath.Ext(t); ext != "" && !strings.Contains(t, "/") {
		t = ext
	}
	t = strings.TrimPrefix(t, ".")
	switch t {
	case "txt", "md", "markdown", "text", "text/plain", "text/markdown":
		return KindText
	case "pdf", "application/pdf":
		return KindPDF
	case "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDOCX
	case "png", "jpg", "jpeg", "gif", "bmp", "tiff", "webp":
		return KindImage
	}
	if strings.HasPrefix(t, "image/") {
		return KindImage
	}
	return KindUnknown
}

// Router dispatches to the extractor for the declared type. Images and
// unknown types fail with domain.ErrUnsupportedFormat.
type Router struct{}

func NewRouter() *Router { return &Router{} }

var _ domain.Extractor = (*Router)(nil)

func (r *Router) Extract(ctx context.Context, data []byte, declaredType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch KindOf(declaredType) {
	case KindText:
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), "�"), nil
		}
		return string(data), nil
	case KindPDF:
		return PDFText(data)
	case KindDOCX:
		return DOCXText(data)
	default:
		return "", &domain.UnsupportedFormatError{Name: declaredType, DeclaredType: declaredType}
	}
}
