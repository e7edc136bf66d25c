package content

import (
	"strings"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"

	"talkroom/internal/models"
)

var policy = bluemonday.UGCPolicy()

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like message text and room fields.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateMessage rejects empty message bodies before any store call.
// It returns the trimmed, sanitized text.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", models.ErrEmptyMessage
	}
	return Sanitize(text), nil
}

// ValidateRoomFields checks that both required room fields are present.
func ValidateRoomFields(name, description string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(description) == "" {
		return models.ErrMissingField
	}
	return nil
}

// SniffFileType detects the content type of an uploaded payload from its
// leading bytes, falling back to a generic type when unrecognized.
func SniffFileType(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
