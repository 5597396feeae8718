package ringback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateText(t *testing.T) {
	require.NoError(t, ValidateText("a", 1))
	require.ErrorIs(t, ValidateText("", 5), ErrEmptyField)
	require.ErrorIs(t, ValidateText("  \t", 5), ErrEmptyField)
	require.ErrorIs(t, ValidateText("abcdef", 5), ErrExceededMaxLength)
	// length counts bytes, not runes
	require.ErrorIs(t, ValidateText("ééé", 5), ErrExceededMaxLength)
}

func TestValidatePositive(t *testing.T) {
	require.ErrorIs(t, ValidatePositive(0), ErrNotGreaterThanZero)
	require.NoError(t, ValidatePositive(1))
}

func TestValidateSignUpOrdering(t *testing.T) {
	long := strings.Repeat("x", MaxNameLength+1)
	longURL := strings.Repeat("x", MaxURLLength+1)

	require.ErrorIs(t, validateSignUp("", "https://ok"), ErrCannotSignUpUser)
	require.ErrorIs(t, validateSignUp("ok", ""), ErrCannotSignUpUser)
	require.ErrorIs(t, validateSignUp(long, ""), ErrCannotSignUpUser)
	require.ErrorIs(t, validateSignUp("", longURL), ErrCannotSignUpUser)
	require.ErrorIs(t, validateSignUp(long, longURL), ErrExceededNameMaxLength)
	require.ErrorIs(t, validateSignUp("ok", longURL), ErrExceededUserURLMaxLength)
	require.NoError(t, validateSignUp(strings.Repeat("x", MaxNameLength), strings.Repeat("x", MaxURLLength)))
}

func TestValidateUpload(t *testing.T) {
	valid := UploadParams{AudioName: "tone", AudioCode: 1, AudioURL: "https://t", Price: 10, Duration: "30d"}
	require.NoError(t, validateUpload(valid))

	cases := []struct {
		name   string
		mutate func(*UploadParams)
		want   error
	}{
		{"empty name", func(p *UploadParams) { p.AudioName = "" }, ErrCannotUploadAudio},
		{"empty url", func(p *UploadParams) { p.AudioURL = " " }, ErrCannotUploadAudio},
		{"empty duration", func(p *UploadParams) { p.Duration = "" }, ErrCannotUploadAudio},
		{"long name", func(p *UploadParams) { p.AudioName = strings.Repeat("a", MaxNameLength+1) }, ErrExceededAudioMaxLength},
		{"long url", func(p *UploadParams) { p.AudioURL = strings.Repeat("a", MaxURLLength+1) }, ErrExceededAudioURLMaxLength},
		{"long duration", func(p *UploadParams) { p.Duration = strings.Repeat("a", MaxDurationLength+1) }, ErrExceededSubscriptionDurationMaxLength},
		{"zero code", func(p *UploadParams) { p.AudioCode = 0 }, ErrInvalidAudioCode},
		{"zero price", func(p *UploadParams) { p.Price = 0 }, ErrAmountNotGreaterThanZero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			require.ErrorIs(t, validateUpload(p), tc.want)
		})
	}
}

func TestErrorCodesAreStable(t *testing.T) {
	require.Equal(t, ErrorCode(6000), ErrCannotSignUpUser.Code)
	require.Equal(t, ErrorCode(6004), ErrExceededNameMaxLength.Code)
	require.Equal(t, ErrorCode(6013), ErrExceededTargetAmount.Code)
	require.Equal(t, ErrorCode(6018), ErrAmountOverflow.Code)

	found, ok := ErrorByCode(CodeToneNotFound)
	require.True(t, ok)
	require.Same(t, ErrToneNotFound, found)
	_, ok = ErrorByCode(6002)
	require.False(t, ok)
}

func TestAddUint64Overflow(t *testing.T) {
	sum, err := addUint64(2, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(5), sum)
	_, err = addUint64(^uint64(0), 1)
	require.ErrorIs(t, err, ErrAmountOverflow)
}
