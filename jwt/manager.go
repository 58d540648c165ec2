package jwt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm used for session-data tokens.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// DefaultTTL matches the session cache tier: a session-data token is never
// trusted for longer than a cached session copy.
const DefaultTTL = 300 * time.Second

var (
	// ErrBindingMismatch is returned when a session-data token was minted
	// for a different session token than the one presented with it.
	ErrBindingMismatch = errors.New("session data bound to another session")
	// ErrSessionExpired is returned when the embedded session lifetime has
	// passed even though the token itself is still fresh.
	ErrSessionExpired = errors.New("session expired")
)

// Config configures a Manager.
//
// HS256 signs and verifies with Secret. Ed25519 signs with PrivateKey and
// verifies with PublicKey. VerifyKeys, keyed by kid, lets old keys keep
// verifying during rotation; when set, tokens must carry a kid.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// SessionData is the read-only snapshot of a session carried by the
// session-data cookie.
type SessionData struct {
	SessionID     string
	UserID        string
	Email         string
	Name          string
	EmailVerified bool
	ExpiresAt     time.Time
}

// SessionClaims is the wire form of SessionData. Binding holds the
// SHA-256 of the session token, so the cookie is worthless on its own.
type SessionClaims struct {
	Binding       string `json:"bnd"`
	SessionID     string `json:"sid"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"ev,omitempty"`
	SessionExp    int64  `json:"sexp"`
	jwt.RegisteredClaims
}

// Manager signs and parses session-data tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager. A zero TTL means
// DefaultTTL.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 secret must be at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			priv, _ := parseEdPrivateKey(cfg.PrivateKey)
			cfg.PublicKey = priv.Public().(ed25519.PublicKey)
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	for kid := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
	}
	if len(cfg.VerifyKeys) > 0 && cfg.KeyID == "" {
		return nil, errors.New("KeyID is required with VerifyKeys")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// SetClock overrides the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// TTL is the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.config.TTL }

// Sign mints a session-data token for sessionToken. The token expires at
// the earlier of now+TTL and the session's own expiry.
func (m *Manager) Sign(sessionToken string, data SessionData) (string, error) {
	if sessionToken == "" {
		return "", errors.New("session token is required")
	}
	now := m.now()
	exp := now.Add(m.config.TTL)
	if !data.ExpiresAt.IsZero() && data.ExpiresAt.Before(exp) {
		exp = data.ExpiresAt
	}
	if !exp.After(now) {
		return "", ErrSessionExpired
	}

	claims := SessionClaims{
		Binding:       bindingOf(sessionToken),
		SessionID:     data.SessionID,
		Email:         data.Email,
		Name:          data.Name,
		EmailVerified: data.EmailVerified,
		SessionExp:    data.ExpiresAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   data.UserID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// Parse verifies tokenStr and checks that it was minted for sessionToken.
func (m *Manager) Parse(tokenStr, sessionToken string) (*SessionData, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	claims := &SessionClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, m.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	want := bindingOf(sessionToken)
	if subtle.ConstantTimeCompare([]byte(claims.Binding), []byte(want)) != 1 {
		return nil, ErrBindingMismatch
	}
	expiresAt := time.Unix(claims.SessionExp, 0)
	if !m.now().Before(expiresAt) {
		return nil, ErrSessionExpired
	}

	return &SessionData{
		SessionID:     claims.SessionID,
		UserID:        claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
		ExpiresAt:     expiresAt,
	}, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != m.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if m.config.KeyID == "" {
		return m.verifyKey(nil)
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	if kid == m.config.KeyID {
		return m.verifyKey(nil)
	}
	key, ok := m.config.VerifyKeys[kid]
	if !ok {
		return nil, errors.New("unknown kid")
	}
	return m.verifyKey(key)
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		return parseEdPrivateKey(m.config.PrivateKey)
	}
	return m.config.Secret, nil
}

// verifyKey returns the verification key for raw, or for the active key
// when raw is nil.
func (m *Manager) verifyKey(raw []byte) (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		if raw == nil {
			raw = m.config.PublicKey
		}
		return parseEdPublicKey(raw)
	}
	if raw == nil {
		raw = m.config.Secret
	}
	return raw, nil
}

func bindingOf(sessionToken string) string {
	sum := sha256.Sum256([]byte(sessionToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
