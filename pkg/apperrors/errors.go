package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidInput         = errors.New("invalid input")
	ErrQuotaExceeded        = errors.New("monthly sms quota exceeded")
	ErrInvitationExpired    = errors.New("invitation expired")
	ErrInvitationUsed       = errors.New("invitation is no longer pending")
	ErrPlatformNotConnected = errors.New("platform not connected")
	ErrInvalidOAuthState    = errors.New("invalid or expired oauth state")
	ErrGroupCycle           = errors.New("location group cannot be moved under itself or a descendant")
	ErrLastOwner            = errors.New("cannot remove or demote the last owner")
	ErrInvalidRole          = errors.New("invalid role")
)
