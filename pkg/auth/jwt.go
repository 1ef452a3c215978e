package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const roomKey ctxKey = 1

// WithRoom adds an authorized room code to the context
func WithRoom(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, roomKey, code)
}

// RoomCode extracts the authorized room code from the context
func RoomCode(ctx context.Context) string {
	v := ctx.Value(roomKey)
	if v == nil {
		return ""
	}
	return v.(string)
}

// JWT wraps a signing secret for issuing/verifying room admin tokens.
// A room token is handed out once at creation and authorizes expiry
// extension and deletion of that room only.
type JWT struct{ secret []byte }

// New creates a new JWT signer/verifier.
func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks a token and returns the sub (room code) claim
func (j *JWT) Verify(tok string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		return "", err
	}
	code, _ := claims["sub"].(string)
	if code == "" {
		return "", errors.New("no sub")
	}
	return code, nil
}

// Sign creates a token for a room code with the given TTL
func (j *JWT) Sign(code string, ttl time.Duration) (string, error) {
	if code == "" {
		return "", errors.New("empty room code")
	}
	claims := jwt.MapClaims{
		"sub": code,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(j.secret)
}
