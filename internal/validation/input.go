package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ignatzorin/freelance-wallet/internal/pkg/apperror"
)

// Константы валидации
const (
	MaxDescriptionLength    = 500
	MaxNoteLength           = 500
	MaxIdempotencyKeyLength = 128
	MaxRelatedIDLength      = 64
	MaxMetadataKeys         = 20
	MaxMetadataKeyLength    = 64
)

var (
	idempotencyKeyRegex = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)
	metadataKeyRegex    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ValidateLength проверяет длину строки в символах.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return apperror.Newf(apperror.ErrCodeValidation, "%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return apperror.Newf(apperror.ErrCodeValidation, "%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.Newf(apperror.ErrCodeValidation, "%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateText проверяет описание или комментарий: длина и отсутствие управляющих символов.
func ValidateText(fieldName, value string, max int) error {
	if err := ValidateLength(fieldName, value, 0, max); err != nil {
		return err
	}
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return apperror.Newf(apperror.ErrCodeValidation, "%s содержит недопустимые символы", fieldName)
		}
	}
	return nil
}

// ValidateIdempotencyKey пустой ключ допустим, непустой только из безопасных символов.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if err := ValidateLength("ключ идемпотентности", key, 0, MaxIdempotencyKeyLength); err != nil {
		return err
	}
	if !idempotencyKeyRegex.MatchString(key) {
		return apperror.New(apperror.ErrCodeValidation, "ключ идемпотентности содержит недопустимые символы")
	}
	return nil
}

// ValidateMetadata ограничивает число и формат ключей метаданных.
func ValidateMetadata(meta map[string]interface{}) error {
	if len(meta) > MaxMetadataKeys {
		return apperror.Newf(apperror.ErrCodeValidation, "метаданных не может быть больше %d ключей", MaxMetadataKeys)
	}
	for key := range meta {
		if len(key) > MaxMetadataKeyLength || !metadataKeyRegex.MatchString(key) {
			return apperror.Newf(apperror.ErrCodeValidation, "некорректный ключ метаданных: %q", key)
		}
	}
	return nil
}
