package interfaces

// Claims is the identity extracted from a validated session token.
type Claims struct {
	UserID string
	Role   string
}

// TokenVerifier validates a bearer session token. Any failure (bad
// signature, malformed token, past expiry) yields ErrInvalidToken; callers
// must not be able to distinguish why a token was rejected.
type TokenVerifier interface {
	ValidateToken(token string) (*Claims, error)
}
