package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength bounds a single chat message in bytes.
const MaxMessageLength = 8000

// ValidateMessageContent validates a chat message.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates an assistant session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateLanguage accepts the persona languages.
func ValidateLanguage(lang string) error {
	switch lang {
	case "en", "ar":
		return nil
	}
	return errors.New("language must be en or ar")
}

// ValidateComment validates a review comment.
func ValidateComment(comment string) error {
	if len(comment) > 2000 {
		return errors.New("comment exceeds maximum length")
	}
	if !utf8.ValidString(comment) {
		return errors.New("comment must be valid UTF-8")
	}
	return nil
}
