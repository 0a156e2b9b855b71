package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any credential that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is a verified socket user.
type Identity struct {
	UserID      string
	DisplayName string
}

// TokenVerifier validates a bearer credential presented during the socket
// handshake. Verification happens once per connection; failure downgrades
// the connection to a guest rather than dropping it.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// UserDirectory resolves a verified user ID to a display name. The user
// store behind it is owned by the account system; this package only reads.
type UserDirectory interface {
	DisplayName(userID string) (string, error)
}

type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens issued by the account service and
// labels the resulting identity from the user directory.
type JWTVerifier struct {
	key   []byte
	users UserDirectory
}

// NewJWTVerifier creates a verifier for the given signing key. The
// directory may be nil, in which case display names fall back to a
// derived handle.
func NewJWTVerifier(key string, users UserDirectory) *JWTVerifier {
	return &JWTVerifier{
		key:   []byte(key),
		users: users,
	}
}

func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userID := c.UserID
	if userID == "" {
		userID = c.Subject
	}
	if userID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:      userID,
		DisplayName: v.displayName(userID),
	}, nil
}

func (v *JWTVerifier) displayName(userID string) string {
	if v.users != nil {
		if name, err := v.users.DisplayName(userID); err == nil && name != "" {
			return name
		}
	}
	return fmt.Sprintf("User-%s", userID)
}
