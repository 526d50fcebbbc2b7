package ledgerd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"creatorpay/crypto"
	"creatorpay/observability/logging"
)

type contextKey string

const contextKeyCaller contextKey = "ledger_caller"

const minSecretLength = 32

var (
	errMissingCaller = errors.New("missing caller identity")
	errInvalidToken  = errors.New("invalid bearer token")
)

// Authenticator issues and verifies the HMAC bearer tokens that carry a
// caller's ledger address in the subject claim.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthenticator validates the shared secret and returns an authenticator.
func NewAuthenticator(secret, issuer string, ttl time.Duration) (*Authenticator, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}, nil
}

// SetLogger configures where rejected credentials are reported.
func (a *Authenticator) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	a.logger = logger
}

// SetNowFunc overrides the clock used for issuing and validating tokens.
func (a *Authenticator) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	a.now = now
}

// Issue signs a token for the supplied address.
func (a *Authenticator) Issue(addr [20]byte) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   crypto.FormatAddress(addr),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token and returns the caller address it names.
func (a *Authenticator) Verify(raw string) ([20]byte, error) {
	var caller [20]byte
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return caller, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	caller, err = crypto.ParseLedgerAddress(claims.Subject)
	if err != nil {
		return caller, fmt.Errorf("%w: subject: %v", errInvalidToken, err)
	}
	if caller == ([20]byte{}) {
		return caller, fmt.Errorf("%w: zero subject", errInvalidToken)
	}
	return caller, nil
}

// Middleware attaches the caller identity when a bearer token is present.
// Requests without one pass through anonymously; a bad token is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			a.reject(w, r, header, "malformed authorization header")
			return
		}
		caller, err := a.Verify(strings.TrimSpace(token))
		if err != nil {
			a.reject(w, r, token, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, credential, reason string) {
	a.logger.Warn("bearer token rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", reason),
		logging.MaskField("authorization", credential))
	writeError(w, http.StatusUnauthorized, reason)
}

// CallerFromContext returns the authenticated caller.
func CallerFromContext(ctx context.Context) ([20]byte, error) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	if !ok {
		return [20]byte{}, errMissingCaller
	}
	return caller, nil
}
