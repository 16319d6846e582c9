package auth

import (
	"fmt"
	"time"

	"housing-chat/domain/chat"
	"housing-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "housing-chat"

// IdentityClaims binds a token to the identity it was issued for.
type IdentityClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// Verifier issues and checks HS256 identity tokens.
// The marketplace backend owning the accounts signs with the same secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// GenerateToken creates a signed JWT for identity, valid for ttl.
func (v *Verifier) GenerateToken(identity chat.Identity, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &IdentityClaims{
		Identity: string(identity),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks signature and expiry and returns the identity the token was issued for.
func (v *Verifier) Verify(tokenString string) (chat.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{},
		func(token *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid || claims.Identity == "" {
		return "", errors.ErrInvalidToken
	}
	return chat.Identity(claims.Identity), nil
}

// CheckIdentity verifies the token and that it was issued for claimed.
func (v *Verifier) CheckIdentity(tokenString string, claimed chat.Identity) error {
	identity, err := v.Verify(tokenString)
	if err != nil {
		return err
	}
	if identity != claimed {
		return fmt.Errorf("%w: token issued for another identity", errors.ErrInvalidToken)
	}
	return nil
}
