package ringback

import "fmt"

// ErrorCode is the stable numeric identifier of a domain failure.
type ErrorCode uint32

const (
	CodeCannotSignUpUser ErrorCode = 6000 + iota
	CodeCannotUploadAudio
	_ // 6002, reserved
	_ // 6003, reserved
	CodeExceededNameMaxLength
	CodeExceededSubscriptionDurationMaxLength
	CodeExceededUserURLMaxLength
	CodeExceededAudioMaxLength
	CodeExceededAudioURLMaxLength
	CodeAmountNotGreaterThanZero
	CodeInvalidAudioCode
	CodeUserSubscribedAudio
	CodeCannotAddRingbackTone
	CodeExceededTargetAmount
	CodeCollectionFull
	CodePlatformNotInitialized
	CodeArtistNotRegistered
	CodeToneNotFound
	CodeAmountOverflow
)

// Error is a domain failure raised by a state transition.
type Error struct {
	Code    ErrorCode
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ringback: %s (%d): %s", e.Name, e.Code, e.Message)
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code ErrorCode, name, message string) *Error {
	return &Error{Code: code, Name: name, Message: message}
}

var (
	ErrCannotSignUpUser                      = newError(CodeCannotSignUpUser, "CannotSignUpUser", "user cannot be signed up, missing data")
	ErrCannotUploadAudio                     = newError(CodeCannotUploadAudio, "CannotUploadAudio", "audio cannot be created, missing data")
	ErrExceededNameMaxLength                 = newError(CodeExceededNameMaxLength, "ExceededNameMaxLength", "exceeded name max length")
	ErrExceededSubscriptionDurationMaxLength = newError(CodeExceededSubscriptionDurationMaxLength, "ExceededSubscriptionDurationMaxLength", "exceeded subscription duration max length")
	ErrExceededUserURLMaxLength              = newError(CodeExceededUserURLMaxLength, "ExceededUserUrlMaxLength", "exceeded user url max length")
	ErrExceededAudioMaxLength                = newError(CodeExceededAudioMaxLength, "ExceededAudioMaxLength", "exceeded audio max length")
	ErrExceededAudioURLMaxLength             = newError(CodeExceededAudioURLMaxLength, "ExceededAudioUrlMaxLength", "exceeded audio url max length")
	ErrAmountNotGreaterThanZero              = newError(CodeAmountNotGreaterThanZero, "AmountNotgreaterThanZero", "amount must be greater than zero")
	ErrInvalidAudioCode                      = newError(CodeInvalidAudioCode, "InvalidAudioCode", "audio code must be greater than zero")
	ErrUserSubscribedAudio                   = newError(CodeUserSubscribedAudio, "UserSubscribedAudio", "user has already subscribed")
	ErrCannotAddRingbackTone                 = newError(CodeCannotAddRingbackTone, "CannotAddRingbackTone", "ring-back-tone has already been added")
	ErrExceededTargetAmount                  = newError(CodeExceededTargetAmount, "ExceededTargetAmount", "target amount exceeded")
	ErrCollectionFull                        = newError(CodeCollectionFull, "CollectionFull", "collection is full")
	ErrPlatformNotInitialized                = newError(CodePlatformNotInitialized, "PlatformNotInitialized", "platform has not been set up")
	ErrArtistNotRegistered                   = newError(CodeArtistNotRegistered, "ArtistNotRegistered", "artist profile not found")
	ErrToneNotFound                          = newError(CodeToneNotFound, "ToneNotFound", "ring-back-tone not found")
	ErrAmountOverflow                        = newError(CodeAmountOverflow, "AmountOverflow", "counter overflow")
)

var errorsByCode = map[ErrorCode]*Error{}

func init() {
	for _, e := range []*Error{
		ErrCannotSignUpUser, ErrCannotUploadAudio, ErrExceededNameMaxLength,
		ErrExceededSubscriptionDurationMaxLength, ErrExceededUserURLMaxLength,
		ErrExceededAudioMaxLength, ErrExceededAudioURLMaxLength, ErrAmountNotGreaterThanZero,
		ErrInvalidAudioCode, ErrUserSubscribedAudio, ErrCannotAddRingbackTone,
		ErrExceededTargetAmount, ErrCollectionFull, ErrPlatformNotInitialized,
		ErrArtistNotRegistered, ErrToneNotFound, ErrAmountOverflow,
	} {
		errorsByCode[e.Code] = e
	}
}

// ErrorByCode returns the domain error registered for code.
func ErrorByCode(code ErrorCode) (*Error, bool) {
	e, ok := errorsByCode[code]
	return e, ok
}
