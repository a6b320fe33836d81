package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("wrong email or password")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenRejected      = errors.New("token rejected")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailRequired      = errors.New("email is required")
	ErrNameRequired       = errors.New("name is required")
)
