package core

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrEmptyParticipantSet = errors.New("empty participant set")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrInvalidCurrency     = errors.New("invalid currency code")
	ErrInvalidLocale       = errors.New("invalid locale")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrInvalidExpenditure  = errors.New("invalid expenditure")
	ErrParticipantInUse    = errors.New("participant still referenced")
	ErrNotFound            = errors.New("not found")
)

// IsValidation reports whether err is a caller/data error rather than an
// infrastructure failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrDivisionByZero,
		ErrEmptyParticipantSet,
		ErrUnknownParticipant,
		ErrUnknownCategory,
		ErrInvalidCurrency,
		ErrInvalidLocale,
		ErrCurrencyMismatch,
		ErrInvalidExpenditure,
		ErrParticipantInUse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
