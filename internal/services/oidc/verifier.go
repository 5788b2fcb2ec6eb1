package oidc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/inbox-gateway/internal/apperr"
	"github.com/benvon/inbox-gateway/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier checks RS256 access tokens issued by the identity provider
type Verifier struct {
	keys     *JWKSManager
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

// NewVerifier creates a verifier for tokens issued by issuer for audience
func NewVerifier(keys *JWKSManager, issuer, audience string, skew time.Duration) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		skew:     skew,
		now:      time.Now,
	}
}

// Verify validates the token signature and its exp, iss and aud claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.Claims, error) {
	msg, err := jws.Parse([]byte(tokenString))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", apperr.ErrAuth, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signature", apperr.ErrAuth)
	}
	kid := sigs[0].ProtectedHeaders().KeyID()
	if kid == "" {
		return nil, fmt.Errorf("%w: token header has no kid", apperr.ErrAuth)
	}

	set, err := v.keys.KeySet(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: key set unavailable: %v", apperr.ErrAuth, err)
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: no RSA key found for kid %q", apperr.ErrAuth, kid)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.RS256, key),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrAuth, err)
	}

	return extractClaims(ctx, token)
}

func extractClaims(ctx context.Context, token jwt.Token) (*models.Claims, error) {
	raw, err := token.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read token claims: %w", err)
	}

	claims := &models.Claims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Aud: token.Audience(),
		Exp: token.Expiration().Unix(),
		Raw: raw,
	}
	if iat := token.IssuedAt(); !iat.IsZero() {
		claims.Iat = iat.Unix()
	}

	private := token.PrivateClaims()
	claims.Email = stringClaim(private, "email")
	claims.Name = stringClaim(private, "name")
	claims.Scope, _ = private["scope"].(string)
	if perms, ok := private["permissions"].([]any); ok {
		for _, p := range perms {
			if s, ok := p.(string); ok {
				claims.Permissions = append(claims.Permissions, s)
			}
		}
	}

	return claims, nil
}

// stringClaim reads a claim by name, falling back to a namespaced custom claim
// such as "https://api.example.com/email" as added by Auth0 actions.
func stringClaim(private map[string]any, name string) string {
	if s, ok := private[name].(string); ok {
		return s
	}
	for k, val := range private {
		if strings.HasSuffix(k, "/"+name) {
			if s, ok := val.(string); ok {
				return s
			}
		}
	}
	return ""
}
