package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyExists = errors.New("email already exists")

	// ErrTokenInvalid covers malformed plaintext, unknown jti and hash
	// mismatch alike, so a caller cannot probe which part was wrong.
	ErrTokenInvalid = errors.New("refresh token invalid")
	ErrTokenExpired = errors.New("refresh token expired")

	// ErrTokenReused is the theft signal: a spent token was presented and
	// replay recovery failed. The whole family has been revoked by the time
	// this error is returned.
	ErrTokenReused = errors.New("refresh token reuse detected")
)
