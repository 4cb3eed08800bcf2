package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"

	// Бизнес-правила кошелька
	ErrCodeBelowMinimum               ErrorCode = "BELOW_MINIMUM"
	ErrCodeDailyLimitExceeded         ErrorCode = "DAILY_LIMIT_EXCEEDED"
	ErrCodeInsufficientBalance        ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeInsufficientPendingBalance ErrorCode = "INSUFFICIENT_PENDING_BALANCE"
	ErrCodeInvalidTransition          ErrorCode = "INVALID_TRANSITION"

	// Конкурентный доступ
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodeTransient              ErrorCode = "TRANSIENT"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	// Числа, которые нужны клиенту: запрошено, доступно, лимит и т.д.
	Details map[string]int64
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду, чтобы errors.Is работал с шаблонными ошибками ниже.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// WithDetail возвращает копию ошибки с добавленным числовым полем.
func (e *AppError) WithDetail(key string, value int64) *AppError {
	cp := *e
	cp.Details = make(map[string]int64, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf как New, но с форматированием сообщения.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidTransition, ErrCodeConcurrentModification:
		return http.StatusConflict
	case ErrCodeBelowMinimum, ErrCodeInsufficientBalance, ErrCodeInsufficientPendingBalance:
		return http.StatusUnprocessableEntity
	case ErrCodeDailyLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки или пустую строку, если ошибка не AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	return CodeOf(err) == ErrCodeForbidden
}

func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// IsBusinessRule сообщает, что ошибку может исправить вызывающий (повторять бессмысленно).
func IsBusinessRule(err error) bool {
	switch CodeOf(err) {
	case ErrCodeBelowMinimum, ErrCodeDailyLimitExceeded, ErrCodeInsufficientBalance,
		ErrCodeInsufficientPendingBalance, ErrCodeInvalidTransition:
		return true
	}
	return false
}

func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransient
}

var (
	ErrAccountNotFound     = New(ErrCodeNotFound, "кошелёк не найден")
	ErrWithdrawalNotFound  = New(ErrCodeNotFound, "заявка на вывод не найдена")
	ErrTransactionNotFound = New(ErrCodeNotFound, "транзакция не найдена")
	ErrUserNotFound        = New(ErrCodeNotFound, "пользователь не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden           = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidAmount       = New(ErrCodeValidation, "сумма должна быть положительной")
)
