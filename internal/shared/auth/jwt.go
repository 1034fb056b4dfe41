package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"medocs-backend/internal/shared/telemetry"
)

// Roles carried in the role claim.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// Claims represents the identity contained in a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

var (
	errMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

var (
	secretMu sync.RWMutex
	secret   string
	env      string
	keySet   keyfunc.Keyfunc
)

const jwksFetchTimeout = 10 * time.Second

// Configure sets the signing secret and environment. Unset values fall back
// to JWT_SECRET and ENV.
func Configure(jwtSecret, environment string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = strings.TrimSpace(jwtSecret)
	env = strings.TrimSpace(environment)
}

// UseKeySet additionally accepts RS256 tokens whose kid resolves in k,
// typically an identity provider's JWKS. nil turns this off.
func UseKeySet(k keyfunc.Keyfunc) {
	secretMu.Lock()
	defer secretMu.Unlock()
	keySet = k
}

// NewRemoteKeySet loads the JWKS at url and refreshes it in the background
// until ctx is done. Startup does not fail when the first fetch does.
func NewRemoteKeySet(ctx context.Context, url string, refresh time.Duration) (keyfunc.Keyfunc, error) {
	storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksFetchTimeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refresh,
		RefreshErrorHandler: func(_ context.Context, err error) {
			telemetry.Error("auth.jwks_refresh_failed", map[string]any{"url": url, "err": err})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks storage: %w", err)
	}
	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("jwks keyfunc: %w", err)
	}
	return k, nil
}

// SignJWT signs the given claims with HS256 using the configured secret.
func SignJWT(claims Claims) (string, error) {
	key, err := secretKey()
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("sub is required")
	}
	if claims.Role == "" {
		claims.Role = RolePatient
	}

	now := time.Now().UTC()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(24 * time.Hour))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// VerifyJWT verifies a token and returns its claims.
func VerifyJWT(token string) (Claims, error) {
	key, err := secretKey()
	if err != nil {
		return Claims{}, err
	}

	secretMu.RLock()
	ks := keySet
	secretMu.RUnlock()

	methods := []string{jwt.SigningMethodHS256.Alg()}
	if ks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() == jwt.SigningMethodRS256.Alg() {
			return ks.Keyfunc(t)
		}
		return key, nil
	}, jwt.WithValidMethods(methods))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	switch claims.Role {
	case "":
		claims.Role = RolePatient
	case RolePatient, RoleDoctor:
	default:
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func secretKey() ([]byte, error) {
	secretMu.RLock()
	s, e := secret, env
	secretMu.RUnlock()
	if s == "" {
		s = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	}
	if e == "" {
		e = os.Getenv("ENV")
	}
	e = strings.ToLower(strings.TrimSpace(e))
	if e == "production" || e == "prod" {
		if s == "" {
			return nil, fmt.Errorf("%w: JWT_SECRET required in production", errMissingSecret)
		}
	}
	if s == "" {
		s = "dev-secret"
	}
	return []byte(s), nil
}
