// Package identity verifies bearer credentials issued by the chat-messaging
// platform and resolves them to a stable user identifier.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned for any token that fails verification.
var ErrInvalidCredential = errors.New("invalid credential")

// Verifier resolves a bearer credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// Claims are the ID token claims the service relies on.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 ID tokens signed with the channel secret.
type JWTVerifier struct {
	secret    []byte
	audience  string
	issuer    string
	parserOps []jwt.ParserOption
}

// NewJWTVerifier creates a verifier bound to one channel.
func NewJWTVerifier(channelID, channelSecret, issuer string) (*JWTVerifier, error) {
	if channelSecret == "" {
		return nil, errors.New("identity: channel secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if channelID != "" {
		opts = append(opts, jwt.WithAudience(channelID))
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{
		secret:    []byte(channelSecret),
		audience:  channelID,
		issuer:    issuer,
		parserOps: opts,
	}, nil
}

// Verify checks signature, expiry, audience and issuer and returns the subject.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.parserOps...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidCredential
	}
	return claims.Subject, nil
}

// Sign issues a token in the same format Verify accepts. Used by tests and
// local tooling that stands in for the platform login.
func (v *JWTVerifier) Sign(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	if len(claims.Audience) == 0 && v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, credential string) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, credential string) (string, error) {
	return f(ctx, credential)
}
