package domain

import "errors"

var (
	// ErrInvalidRequest is returned for malformed or missing input.
	// It is raised before any storage write, so callers may retry after correcting the request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrActivationNotFound is surfaced only by read-only flows.
	// Mutating flows fold a missing activation into a REMOVED invalid-state response instead.
	ErrActivationNotFound       = errors.New("activation not found")
	ErrActivationIncorrectState = errors.New("activation in incorrect state")
	ErrInvalidKeyFormat         = errors.New("invalid key format")
	ErrGenericCryptography      = errors.New("unable to compute signature")
	ErrInvalidCryptoProvider    = errors.New("invalid crypto provider")
	// ErrDecryptionFailed and ErrEncryptionFailed describe a broken envelope, not an authentication outcome.
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrEncryptionFailed   = errors.New("encryption failed")
	ErrInvalidInputFormat = errors.New("invalid input format")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnknown            = errors.New("unknown error")
)
