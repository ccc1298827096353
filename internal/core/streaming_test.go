package core

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestNewTextReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("numero,nome")...),
			expected: "numero,nome",
		},
		{
			name:     "file without BOM",
			input:    []byte("numero,nome"),
			expected: "numero,nome",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM is invalid UTF-8",
			input:    []byte{0xEF, 0xBB, 'a'},
			expected: "��a",
		},
		{
			name:     "valid multibyte kept",
			input:    []byte("observação,Número"),
			expected: "observação,Número",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte{'J', 'o', 0x80, 's', 'e'},
			expected: "Jo�se",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewTextReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestNewTextReader_SmallBuffer(t *testing.T) {
	// Multibyte runes must survive reads through a 1-byte buffer.
	r := NewTextReader(strings.NewReader("ção"))

	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if string(out) != "ção" {
		t.Errorf("got %q, want %q", out, "ção")
	}
}

func TestReadLimited(t *testing.T) {
	data := strings.Repeat("x", 100)

	got, err := ReadLimited(strings.NewReader(data), 100)
	if err != nil {
		t.Fatalf("at limit: unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Errorf("len = %d, want 100", len(got))
	}

	_, err = ReadLimited(strings.NewReader(data), 99)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("over limit: err = %v, want ErrFileTooLarge", err)
	}

	got, err = ReadLimited(strings.NewReader(data), 0)
	if err != nil || len(got) != 100 {
		t.Errorf("no limit: len = %d, err = %v", len(got), err)
	}
}
