package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"housing-chat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateCommand runs the struct tag rules of any command.
func ValidateCommand(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

// ValidateText checks a message body: non-empty once trimmed, at most maxLength bytes.
func ValidateText(text string, maxLength int) error {
	if strings.TrimSpace(text) == "" {
		return errors.ErrEmptyText
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", errors.ErrValidation)
	}
	if maxLength > 0 && len(text) > maxLength {
		return fmt.Errorf("%w: text longer than %d bytes", errors.ErrValidation, maxLength)
	}
	return nil
}
