package services

import (
	"net/http"

	apperrors "github.com/charlesng35/csahub/pkg/errors"
)

// Visitor-facing failures shared by the registration and admin workflows.
var (
	ErrAlreadyRegistered = apperrors.New("ALREADY_REGISTERED",
		"This email is already registered. If you forgot your login, please contact us.", http.StatusBadRequest)
	ErrRegistrationBlocked = apperrors.New("REGISTRATION_BLOCKED",
		"This email is blocked from registration. Please contact us for assistance.", http.StatusBadRequest)

	ErrVerificationMissing = apperrors.New("VERIFICATION_MISSING",
		"No verification token provided.", http.StatusBadRequest)
	ErrVerificationInvalid = apperrors.New("VERIFICATION_INVALID",
		"Invalid or already used verification link.", http.StatusBadRequest)
	ErrVerificationExpired = apperrors.New("VERIFICATION_EXPIRED",
		"This verification link has expired. Please register again to receive a new link.", http.StatusBadRequest)

	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "Member not found.", http.StatusNotFound)
	ErrEventNotFound  = apperrors.New("EVENT_NOT_FOUND", "Event not found.", http.StatusNotFound)
)

func rateLimited(message string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrRateLimit.Code, message, http.StatusTooManyRequests)
}

func internalError(err error) *apperrors.AppError {
	return apperrors.ErrInternalServer.WithInternal(err)
}
