// AngelaMos | 2026
// google.go

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
)

const googleKeysTTL = time.Hour

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type ExternalIdentity struct {
	Subject string
	Email   string
	Name    string
}

type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*ExternalIdentity, error)
}

// GoogleVerifier checks Google ID tokens against Google's published keys.
// The key set is cached and refetched once it is older than googleKeysTTL.
type GoogleVerifier struct {
	clientID string
	jwksURL  string
	client   *http.Client

	mu        sync.Mutex
	keys      jwk.Set
	fetchedAt time.Time
}

func NewGoogleVerifier(cfg config.GoogleConfig) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: cfg.ClientID,
		jwksURL:  cfg.JWKSURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *GoogleVerifier) Verify(
	ctx context.Context,
	idToken string,
) (*ExternalIdentity, error) {
	if v.clientID == "" {
		return nil, core.NotConfiguredError(
			"google sign-in is not configured",
			"set GOOGLE_CLIENT_ID",
		)
	}

	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, fmt.Errorf("google id token: %w", core.ErrTokenInvalid)
	}

	keys, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(
		[]byte(idToken),
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithAudience(v.clientID),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("google id token: %w", core.ErrTokenInvalid)
	}

	issuer, _ := token.Issuer()
	if !validGoogleIssuer(issuer) {
		return nil, fmt.Errorf("google id token: issuer %q: %w", issuer, core.ErrTokenInvalid)
	}

	var email string
	if err := token.Get("email", &email); err != nil || email == "" {
		return nil, fmt.Errorf("google id token: missing email: %w", core.ErrTokenInvalid)
	}

	var verified bool
	if err := token.Get("email_verified", &verified); err != nil || !verified {
		return nil, fmt.Errorf("google id token: email not verified: %w", core.ErrUnauthorized)
	}

	subject, _ := token.Subject()

	var name string
	//nolint:errcheck // name is optional profile data
	_ = token.Get("name", &name)

	return &ExternalIdentity{
		Subject: subject,
		Email:   strings.ToLower(email),
		Name:    name,
	}, nil
}

func (v *GoogleVerifier) keySet(ctx context.Context) (jwk.Set, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && time.Since(v.fetchedAt) < googleKeysTTL {
		return v.keys, nil
	}

	keys, err := jwk.Fetch(ctx, v.jwksURL, jwk.WithHTTPClient(v.client))
	if err != nil {
		if v.keys != nil {
			return v.keys, nil
		}
		return nil, fmt.Errorf("fetch google keys: %w", err)
	}

	v.keys = keys
	v.fetchedAt = time.Now()

	return keys, nil
}

func validGoogleIssuer(iss string) bool {
	for _, allowed := range googleIssuers {
		if iss == allowed {
			return true
		}
	}
	return false
}
