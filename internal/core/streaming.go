package core

// streaming.go provides readers that prepare uploaded bytes for parsing.
//
//   - ReadLimited: reads an upload body, failing once it exceeds a size cap
//   - NewTextReader: strips a UTF-8 BOM and replaces invalid UTF-8 with U+FFFD
//
// Spreadsheet files are zip archives and must never pass through
// NewTextReader; only CSV content is text.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned when an upload exceeds the configured cap.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadLimited reads r fully, failing with ErrFileTooLarge if more than max
// bytes are available. A non-positive max disables the cap.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}

	cr := &countingReader{reader: io.LimitReader(r, max+1)}
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, err
	}
	if cr.n > max {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, max)
	}
	return data, nil
}

// countingReader tracks bytes read.
type countingReader struct {
	reader io.Reader
	n      int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n += int64(n)
	return n, err
}

// NewTextReader wraps r so that a leading UTF-8 BOM is dropped and every
// invalid byte sequence comes out as the replacement character.
func NewTextReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{src: br}
}

// utf8Sanitizer re-encodes its input rune by rune. bufio.Reader.ReadRune
// reports each invalid byte as (utf8.RuneError, 1), which encodes as U+FFFD.
type utf8Sanitizer struct {
	src *bufio.Reader

	// Bytes of an encoded rune that did not fit in the caller's buffer.
	pending []byte
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		r, _, err := s.src.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		w := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:w])
		n += c
		if c < w {
			s.pending = append(s.pending, buf[c:w]...)
		}
	}
	return n, nil
}

// sanitizeText applies NewTextReader to an in-memory body.
func sanitizeText(data []byte) ([]byte, error) {
	return io.ReadAll(NewTextReader(bytes.NewReader(data)))
}
