package core

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileSize is the upload cap when Config.MaxFileSize is zero.
const DefaultMaxFileSize = 5 << 20

// sniffLen is how many leading bytes are used for content detection.
const sniffLen = 512

// AllowedMIMETypes are the detected content types an import may have.
var AllowedMIMETypes = []string{"text/csv", "text/plain", "application/vnd.ms-excel"}

// Upload describes one import file as received by a transport.
type Upload struct {
	FileName string
	Size     int64
	Body     io.Reader
	// Err carries a transport failure, e.g. a truncated multipart body.
	Err error
}

// admissionError is a file-level rejection reported at row 0.
type admissionError struct {
	msg string
}

func (e *admissionError) Error() string { return e.msg }

// admit checks an upload before any row is read and returns a reader
// positioned at the start of the file.
func admit(up Upload, maxSize int64) (io.Reader, error) {
	if up.Err != nil {
		return nil, &admissionError{fmt.Sprintf("File upload failed: %v", up.Err)}
	}
	if up.Body == nil {
		return nil, &admissionError{"No file provided"}
	}
	if !strings.EqualFold(filepath.Ext(up.FileName), ".csv") {
		return nil, &admissionError{"Invalid file type: only .csv files are accepted"}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if up.Size > maxSize {
		return nil, &admissionError{fmt.Sprintf("File too large: maximum size is %s", FormatBytes(maxSize))}
	}

	br := bufio.NewReaderSize(up.Body, 4096)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, &admissionError{fmt.Sprintf("File upload failed: %v", err)}
	}
	if mt := mimetype.Detect(head); !allowedMIME(mt) {
		return nil, &admissionError{fmt.Sprintf("Invalid file type: detected %s, expected CSV", baseMIME(mt.String()))}
	}
	return br, nil
}

// allowedMIME walks the detected type and its parents against the allow list.
func allowedMIME(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		base := baseMIME(m.String())
		for _, allowed := range AllowedMIMETypes {
			if base == allowed {
				return true
			}
		}
	}
	return false
}

// baseMIME strips parameters such as "; charset=utf-8".
func baseMIME(s string) string {
	base, _, _ := strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// FormatBytes renders a size limit for messages: "5 MB", "200 KB".
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
