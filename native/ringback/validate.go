package ringback

import (
	"errors"
	"strings"
)

var (
	ErrEmptyField         = errors.New("ringback: field is empty")
	ErrExceededMaxLength  = errors.New("ringback: field exceeds maximum length")
	ErrNotGreaterThanZero = errors.New("ringback: value must be greater than zero")
)

// ValidateText rejects blank values and values longer than max bytes.
func ValidateText(value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyField
	}
	if len(value) > max {
		return ErrExceededMaxLength
	}
	return nil
}

// ValidatePositive rejects zero.
func ValidatePositive(v uint64) error {
	if v == 0 {
		return ErrNotGreaterThanZero
	}
	return nil
}

func isBlank(value string) bool { return strings.TrimSpace(value) == "" }

// validateSignUp checks a profile's name and url. Missing data is reported
// before any length violation.
func validateSignUp(name, url string) error {
	if isBlank(name) || isBlank(url) {
		return ErrCannotSignUpUser
	}
	if errors.Is(ValidateText(name, MaxNameLength), ErrExceededMaxLength) {
		return ErrExceededNameMaxLength
	}
	if errors.Is(ValidateText(url, MaxURLLength), ErrExceededMaxLength) {
		return ErrExceededUserURLMaxLength
	}
	return nil
}

func validateUpload(p UploadParams) error {
	if isBlank(p.AudioName) || isBlank(p.AudioURL) || isBlank(p.Duration) {
		return ErrCannotUploadAudio
	}
	if errors.Is(ValidateText(p.AudioName, MaxNameLength), ErrExceededMaxLength) {
		return ErrExceededAudioMaxLength
	}
	if errors.Is(ValidateText(p.AudioURL, MaxURLLength), ErrExceededMaxLength) {
		return ErrExceededAudioURLMaxLength
	}
	if errors.Is(ValidateText(p.Duration, MaxDurationLength), ErrExceededMaxLength) {
		return ErrExceededSubscriptionDurationMaxLength
	}
	if p.AudioCode == 0 {
		return ErrInvalidAudioCode
	}
	if ValidatePositive(p.Price) != nil {
		return ErrAmountNotGreaterThanZero
	}
	return nil
}
