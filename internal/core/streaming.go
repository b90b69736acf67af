package core

// streaming.go wraps the uploaded file in small io.Readers so encoding/csv
// never sees a byte-order mark, invalid UTF-8, or an unbounded line.
//
// WrapForImport applies them in order: BOM first (it only affects the first
// header cell), then UTF-8 repair, then the per-line cap.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrLineTooLong is returned once a physical line exceeds the configured cap.
var ErrLineTooLong = errors.New("line exceeds maximum length")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader drops a leading UTF-8 byte-order mark.
type BOMSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: bufio.NewReader(r)}
}

func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		if head, err := b.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// UTF8Sanitizer replaces bytes that are not valid UTF-8 with '?'. A rune split
// across two reads is carried over rather than replaced.
type UTF8Sanitizer struct {
	r     io.Reader
	carry []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, carry: make([]byte, 0, utf8.UTFMax)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) <= len(s.carry) {
		return 0, io.ErrShortBuffer
	}

	n := copy(p, s.carry)
	s.carry = s.carry[:0]

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if err == nil {
		if tail := incompleteTail(data); tail > 0 {
			s.carry = append(s.carry, data[len(data)-tail:]...)
			data = data[:len(data)-tail]
		}
	}
	return replaceInvalidUTF8(data), err
}

// incompleteTail returns how many trailing bytes form the start of a rune that
// has not been fully read yet.
func incompleteTail(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if b >= utf8.RuneSelf && !utf8.FullRune(data[len(data)-i:]) {
			return i
		}
		return 0
	}
	return 0
}

// replaceInvalidUTF8 rewrites data in place and returns the new length.
func replaceInvalidUTF8(data []byte) int {
	if utf8.Valid(data) {
		return len(data)
	}
	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		w += copy(data[w:], data[i:i+size])
		i += size
	}
	return w
}

// LineLimitReader fails with ErrLineTooLong once more than max bytes are read
// without a newline. Bytes before the offending position are still delivered
// so earlier rows can be parsed.
type LineLimitReader struct {
	r     io.Reader
	max   int
	cur   int
	lines int
	err   error
}

// NewLineLimitReader wraps r. A non-positive max disables the check.
func NewLineLimitReader(r io.Reader, max int) *LineLimitReader {
	return &LineLimitReader{r: r, max: max}
}

func (l *LineLimitReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	n, err := l.r.Read(p)
	if l.max <= 0 {
		return n, err
	}
	for i := 0; i < n; i++ {
		if p[i] == '\n' {
			l.cur = 0
			l.lines++
			continue
		}
		l.cur++
		if l.cur > l.max {
			l.err = fmt.Errorf("%w (%d bytes)", ErrLineTooLong, l.max)
			return i, nil
		}
	}
	return n, err
}

// Line returns the 1-based physical line the reader has reached. After
// ErrLineTooLong it is the offending line.
func (l *LineLimitReader) Line() int {
	return l.lines + 1
}

// WrapForImport applies BOM skipping, UTF-8 repair and the line cap.
func WrapForImport(r io.Reader, maxLineBytes int) *LineLimitReader {
	return NewLineLimitReader(NewUTF8Sanitizer(NewBOMSkippingReader(r)), maxLineBytes)
}
