package usertoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

const (
	defaultLeeway       = 30 * time.Second
	defaultJWKSCacheTTL = 5 * time.Minute
	// Unknown kids trigger at most one refetch per interval.
	jwksRefreshInterval = 30 * time.Second
)

var (
	errUnknownKey = errors.New("unknown token key")
	// ErrNoIdentity is returned for a valid token that names neither subject nor email.
	ErrNoIdentity = errors.New("token identity missing")
)

// Config configures user access-token verification. Exactly one of JWKSURL
// (RS256) or Secret (HS256) must be set. Issuer and Audience are enforced
// only when non-empty.
type Config struct {
	JWKSURL    string
	Secret     string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client
}

// Verifier validates user access tokens issued by the identity provider
// and resolves the caller identity.
type Verifier struct {
	issuer   string
	audience string
	leeway   time.Duration
	secret   []byte

	jwksURL    string
	httpClient *http.Client

	now func() time.Time

	mu          sync.RWMutex
	rsaKeys     map[string]any
	keysExpire  time.Time
	lastFetched time.Time
}

type identityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// NewVerifier creates a token verifier. With a JWKS URL the key set is
// fetched once up front so misconfiguration fails at startup.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	v := &Verifier{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   leeway,
		now:      func() time.Time { return time.Now().UTC() },
	}

	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case jwksURL == "" && secret == "":
		return nil, errors.New("token verifier requires jwksURL or secret")
	case jwksURL != "" && secret != "":
		return nil, errors.New("token verifier accepts only one of jwksURL or secret")
	case secret != "":
		v.secret = []byte(secret)
		return v, nil
	}

	v.jwksURL = jwksURL
	if cfg.HTTPClient != nil {
		v.httpClient = cfg.HTTPClient
	} else {
		v.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if err := v.refreshJWKS(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Verify validates the token and returns the caller identity.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, errors.New("token missing")
	}
	var (
		claims identityClaims
		err    error
	)
	if v.secret != nil {
		claims, err = v.parse(token, jwt.SigningMethodHS256.Alg(), func(*jwt.Token) (any, error) {
			return v.secret, nil
		})
	} else {
		claims, err = v.verifyJWKS(ctx, token)
	}
	if err != nil {
		return domain.Identity{}, err
	}
	id := domain.Identity{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.ToLower(strings.TrimSpace(claims.Email)),
	}
	if id.OwnerKey() == "" {
		return domain.Identity{}, ErrNoIdentity
	}
	return id, nil
}

func (v *Verifier) verifyJWKS(ctx context.Context, token string) (identityClaims, error) {
	claims, err := v.parse(token, jwt.SigningMethodRS256.Alg(), v.keyByKid(v.copyKeys()))
	if err == nil {
		return claims, nil
	}
	expired := v.keysExpired()
	if !expired && (!errors.Is(err, errUnknownKey) || !v.refreshAllowed()) {
		return claims, err
	}
	if refreshErr := v.refreshJWKS(ctx); refreshErr != nil {
		return claims, refreshErr
	}
	return v.parse(token, jwt.SigningMethodRS256.Alg(), v.keyByKid(v.copyKeys()))
}

func (v *Verifier) keyByKid(keys map[string]any) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	}
}

func (v *Verifier) parse(token, alg string, keyFunc jwt.Keyfunc) (identityClaims, error) {
	claims := identityClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, keyFunc, opts...)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	return claims, nil
}

func (v *Verifier) keysExpired() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.now().After(v.keysExpire)
}

func (v *Verifier) refreshAllowed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.now().Sub(v.lastFetched) >= jwksRefreshInterval
}

func (v *Verifier) copyKeys() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]any, len(v.rsaKeys))
	for kid, key := range v.rsaKeys {
		out[kid] = key
	}
	return out
}

type jwksPayload struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *Verifier) refreshJWKS(ctx context.Context) error {
	v.mu.Lock()
	v.lastFetched = v.now()
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload jwksPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]any, len(payload.Keys))
	for _, k := range payload.Keys {
		kid := strings.TrimSpace(k.Kid)
		if kid == "" || !strings.EqualFold(strings.TrimSpace(k.Kty), "RSA") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	ttl := parseCacheMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	v.mu.Lock()
	v.rsaKeys = keys
	v.keysExpire = v.now().Add(ttl)
	v.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func parseCacheMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := time.ParseDuration(strings.TrimSpace(raw) + "s")
		if err != nil {
			return 0
		}
		return secs
	}
	return 0
}
