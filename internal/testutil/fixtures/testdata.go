// Package fixtures provides shared test data for the gatekeeper test
// suite: identities, signing keys, signed tokens and a fake JWKS endpoint.
package fixtures

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Standard identity values used in auth and provisioning tests.
const (
	// TrustedIssuer is the issuer the verifier is configured to trust.
	TrustedIssuer = "https://trusted.example/auth"

	// UntrustedIssuer is any other issuer.
	UntrustedIssuer = "https://evil.example/auth"

	// Subject is the default token subject.
	Subject = "u123"

	// AdminSubject is a subject that tests grant the admin role.
	AdminSubject = "0b7c9f3e-admin"

	// MemberSubject is a subject without roles.
	MemberSubject = "5d2a1c44-member"

	// KeyID is the default signing key id.
	KeyID = "k1"
)

// Now is a fixed verification instant for deterministic tests.
var Now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// NewRSAKey generates a 2048-bit RSA key.
func NewRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// Claims returns valid claims for Subject issued by TrustedIssuer that
// expire one hour after Now.
func Claims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   Subject,
		"iss":   TrustedIssuer,
		"iat":   Now.Add(-time.Minute).Unix(),
		"exp":   Now.Add(time.Hour).Unix(),
		"email": "u123@example.com",
		"role":  "authenticated",
	}
}

// SignRS256 signs claims with key and sets the kid header.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return signed
}

// JWK is one RSA entry of a JWKS document.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// RSAJWK describes the public half of key under kid.
func RSAJWK(kid string, key *rsa.PrivateKey) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
}

// JWKSDocument encodes keys as a JWKS document.
func JWKSDocument(t testing.TB, keys ...JWK) []byte {
	t.Helper()
	doc, err := json.Marshal(map[string]any{"keys": keys})
	require.NoError(t, err)
	return doc
}

// JWKSServer is a fake key set endpoint whose keys and status can change
// during a test.
type JWKSServer struct {
	*httptest.Server

	mu     sync.Mutex
	keys   []JWK
	status int
	hits   atomic.Int64
}

// NewJWKSServer starts a server publishing keys. It is closed on cleanup.
func NewJWKSServer(t testing.TB, keys ...JWK) *JWKSServer {
	t.Helper()
	s := &JWKSServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		status, keys := s.status, s.keys
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(s.Close)
	return s
}

// SetKeys replaces the published keys.
func (s *JWKSServer) SetKeys(keys ...JWK) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

// SetStatus makes the server answer with status and no body.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Hits returns the number of requests served.
func (s *JWKSServer) Hits() int64 {
	return s.hits.Load()
}
