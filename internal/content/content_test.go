package content

import (
	"errors"
	"testing"

	"talkroom/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text unchanged",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "script tag removed",
			input:    `<script>alert("xss")</script>hello`,
			expected: "hello",
		},
		{
			name:     "event handler stripped",
			input:    `<b onclick="alert(1)">bold</b>`,
			expected: "<b>bold</b>",
		},
		{
			name:     "iframe removed",
			input:    `<iframe src="https://evil.example"></iframe>text`,
			expected: "text",
		},
		{
			name:     "safe formatting kept",
			input:    "<em>emphasis</em>",
			expected: "<em>emphasis</em>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  error
	}{
		{name: "plain message", input: "hi", expected: "hi"},
		{name: "surrounding space trimmed", input: "  hi  ", expected: "hi"},
		{name: "empty rejected", input: "", wantErr: models.ErrEmptyMessage},
		{name: "whitespace only rejected", input: " \n\t ", wantErr: models.ErrEmptyMessage},
		{name: "markup stripped", input: "<script>x</script>ok", expected: "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMessage(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateMessage(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.expected {
				t.Errorf("ValidateMessage(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidateRoomFields(t *testing.T) {
	if err := ValidateRoomFields("name", "description"); err != nil {
		t.Errorf("expected valid fields, got %v", err)
	}
	for _, tt := range [][2]string{{"", "description"}, {"name", ""}, {"  ", "description"}, {"", ""}} {
		if err := ValidateRoomFields(tt[0], tt[1]); !errors.Is(err, models.ErrMissingField) {
			t.Errorf("ValidateRoomFields(%q, %q) = %v, want ErrMissingField", tt[0], tt[1], err)
		}
	}
}

func TestSniffFileType(t *testing.T) {
	tests := []struct {
		name     string
		head     []byte
		expected string
	}{
		{
			name:     "png",
			head:     []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
			expected: "image/png",
		},
		{
			name:     "jpeg",
			head:     []byte{0xFF, 0xD8, 0xFF, 0xE0},
			expected: "image/jpeg",
		},
		{
			name:     "pdf",
			head:     []byte("%PDF-1.7"),
			expected: "application/pdf",
		},
		{
			name:     "unknown falls back",
			head:     []byte("just some text"),
			expected: "application/octet-stream",
		},
		{
			name:     "empty falls back",
			head:     nil,
			expected: "application/octet-stream",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffFileType(tt.head); got != tt.expected {
				t.Errorf("SniffFileType(%s) = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}
