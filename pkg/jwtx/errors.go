package jwtx

import "errors"

var (
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrMissingKID    = errors.New("jwtx: missing kid header")
	ErrUnknownKID    = errors.New("jwtx: unknown key id")
	ErrInvalidSig    = errors.New("jwtx: invalid signature")
	ErrExpired       = errors.New("jwtx: token expired")
	ErrNoActiveKey   = errors.New("jwtx: no active signing key")
	ErrKeyNotFound   = errors.New("jwtx: signing key not found")
	ErrInvalidExpiry = errors.New("jwtx: invalid expiry")
)
