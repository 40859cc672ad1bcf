package services

import "errors"

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindUnauthorized
	KindNotFound
	KindConflict
)

var (
	ErrInvalidReferralCode = errors.New("referral code is required")
	ErrAlreadyReferred     = errors.New("you have already used a referral code")
	ErrSelfReferral        = errors.New("you cannot use your own referral code")
	ErrCodeNotFound        = errors.New("invalid referral code")
	ErrDuplicateReferral   = errors.New("referral already recorded")
	ErrUserNotFound        = errors.New("user not found")
	ErrWebhookUnauthorized = errors.New("unauthorized")
	ErrInvalidBillingEvent = errors.New("invalid billing event")
	ErrCodeUnavailable     = errors.New("could not allocate a unique referral code")
)

var errorKinds = []struct {
	target error
	kind   ErrorKind
}{
	{ErrInvalidReferralCode, KindInvalidInput},
	{ErrInvalidBillingEvent, KindInvalidInput},
	{ErrWebhookUnauthorized, KindUnauthorized},
	{ErrUserNotFound, KindNotFound},
	{ErrCodeNotFound, KindNotFound},
	{ErrAlreadyReferred, KindConflict},
	{ErrSelfReferral, KindConflict},
	{ErrDuplicateReferral, KindConflict},
}

// KindOf classifies err for transport mapping. Anything unrecognized is internal.
func KindOf(err error) ErrorKind {
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.target) {
			return candidate.kind
		}
	}
	return KindInternal
}

func (kind ErrorKind) String() string {
	switch kind {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}
