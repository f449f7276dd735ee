package secure

import "errors"

var (
	ErrKeyMismatch    = errors.New("incompatible public key")
	ErrAuthFailure    = errors.New("ciphertext authentication failed")
	ErrNotEstablished = errors.New("session key not established")
)
