package model

import "errors"

var (
	// ErrTokenExpired means the signature is fine but the token is stale.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed tokens and bad signatures.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenForbidden marks a well-signed refresh token with a wrong issuer or no jti.
	ErrTokenForbidden = errors.New("token not trusted")
)
