package domain

import "errors"

// error kinds, 用 errors.Is 判斷
var (
	ErrAuthentication   = errors.New("authentication failure")
	ErrAuthorization    = errors.New("authorization failure")
	ErrUnrecognizedRoom = errors.New("unrecognized room")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEmptyMessage     = errors.New("empty message")
	ErrPersistence      = errors.New("persistence failure")
)
