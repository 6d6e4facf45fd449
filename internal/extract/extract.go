// Package extract pulls plain text out of uploaded study material.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/studybuddy-ai/backend/internal/domain"
)

// MIME types accepted at the API boundary.
const (
	MIMEPDF  = "application/pdf"
	MIMEText = "text/plain"
	MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Accepted reports whether the declared content type may be uploaded at all.
// DOCX is accepted at the door but extraction for it is not implemented, so it
// fails later with ErrUnsupportedFileType.
func Accepted(contentType string) bool {
	switch contentType {
	case MIMEPDF, MIMEText, MIMEDocx:
		return true
	}
	return false
}

// Text extracts plain text from raw file bytes based on the declared content
// type. Returns ErrUnsupportedFileType for types it cannot parse and
// ErrEmptyDocumentText when extraction yields nothing usable.
func Text(data []byte, contentType string) (string, error) {
	var text string
	var err error

	switch contentType {
	case MIMEPDF:
		text, err = fromPDF(data)
	case MIMEText:
		text = string(data)
	default:
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
			fmt.Sprintf("unsupported file type %q", contentType), domain.ErrUnsupportedFileType)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyDocumentText
	}
	return text, nil
}

func fromPDF(data []byte) (text string, err error) {
	// The pdf parser panics on some malformed inputs; a bad upload must not
	// take the process down.
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
				"malformed PDF", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "parsing PDF", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "extracting PDF text", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "reading PDF text", err)
	}
	return sb.String(), nil
}
