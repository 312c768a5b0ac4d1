package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/gmarko-dV/Integrador/internal/logger"
)

// ErrInvalidToken is returned when no verification strategy accepts a token.
var ErrInvalidToken = errors.New("token inválido")

var hmacMethods = []string{"HS256", "HS384", "HS512"}

// VerifierConfig holds the identity provider settings.
type VerifierConfig struct {
	SupabaseURL string
	JwtSecret   string
	AnonKey     string
	HTTPTimeout time.Duration
}

// Verifier turns bearer tokens into principals. HMAC tokens are checked
// against the shared secret (then the anon key), asymmetric ones against
// the provider's JWKS. When every local check fails the provider's
// user-info endpoint gets the final say.
type Verifier struct {
	cfg        VerifierConfig
	httpClient *http.Client
	logger     *zap.Logger

	jwksOnce sync.Once
	jwks     keyfunc.Keyfunc
	jwksErr  error
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewVerifier creates a Verifier. Call Close to stop JWKS refreshing.
func NewVerifier(cfg VerifierConfig, log *zap.Logger) *Verifier {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	cfg.SupabaseURL = strings.TrimSuffix(cfg.SupabaseURL, "/")
	ctx, cancel := context.WithCancel(context.Background())
	return &Verifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		logger:     logger.OrNop(log),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Close releases background resources.
func (v *Verifier) Close() {
	v.cancel()
}

// Verify validates tokenString and returns the caller's principal.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrUnauthenticated
	}

	alg := ""
	if unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{}); err == nil {
		alg, _ = unverified.Header["alg"].(string)
	}

	var claims jwt.MapClaims
	var err error
	switch {
	case strings.HasPrefix(alg, "HS"):
		claims, err = v.verifyHMAC(tokenString)
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "ES"), strings.HasPrefix(alg, "PS"), alg == "EdDSA":
		claims, err = v.verifyJWKS(tokenString)
	default:
		claims, err = v.verifyJWKS(tokenString)
		if err != nil {
			claims, err = v.verifyHMAC(tokenString)
		}
	}
	if err == nil {
		return &TokenPrincipal{Claims: claims}, nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if v.cfg.SupabaseURL != "" {
		principal, uiErr := v.fetchUserInfo(ctx, tokenString)
		if uiErr == nil {
			return principal, nil
		}
		v.logger.Debug("User-info fallback rejected token", zap.Error(uiErr))
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func (v *Verifier) verifyHMAC(tokenString string) (jwt.MapClaims, error) {
	var keys [][]byte
	if v.cfg.JwtSecret != "" {
		keys = append(keys, []byte(v.cfg.JwtSecret))
	}
	if v.cfg.AnonKey != "" {
		keys = append(keys, []byte(v.cfg.AnonKey))
	}
	if len(keys) == 0 {
		return nil, errors.New("no HMAC secret configured")
	}

	var lastErr error
	for _, key := range keys {
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods(hmacMethods))
		if err == nil {
			return claims, nil
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (v *Verifier) verifyJWKS(tokenString string) (jwt.MapClaims, error) {
	kf, err := v.keySet()
	if err != nil {
		return nil, err
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, kf.Keyfunc); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) keySet() (keyfunc.Keyfunc, error) {
	if v.cfg.SupabaseURL == "" {
		return nil, errors.New("no JWKS endpoint configured")
	}
	v.jwksOnce.Do(func() {
		url := v.cfg.SupabaseURL + "/auth/v1/.well-known/jwks.json"
		v.jwks, v.jwksErr = keyfunc.NewDefaultCtx(v.ctx, []string{url})
		if v.jwksErr != nil {
			v.logger.Warn("Failed to initialise JWKS key set", zap.String("url", url), zap.Error(v.jwksErr))
		}
	})
	return v.jwks, v.jwksErr
}

func (v *Verifier) fetchUserInfo(ctx context.Context, tokenString string) (*UserInfoPrincipal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.SupabaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)
	if v.cfg.AnonKey != "" {
		req.Header.Set("apikey", v.cfg.AnonKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user-info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user-info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user-info endpoint returned status %d", resp.StatusCode)
	}

	info := gjson.ParseBytes(body)
	attrs := map[string]string{
		AttrSubject: info.Get("id").String(),
		AttrEmail:   info.Get("email").String(),
		AttrName:    firstNonEmpty(info, "user_metadata.full_name", "user_metadata.name"),
		AttrPicture: firstNonEmpty(info, "user_metadata.avatar_url", "user_metadata.picture"),
	}
	if attrs[AttrSubject] == "" {
		return nil, errors.New("user-info response has no id")
	}
	return &UserInfoPrincipal{Attributes: attrs}, nil
}

func firstNonEmpty(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := r.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}
