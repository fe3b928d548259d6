package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the JWT payload issued to authenticated partners.
type Claims struct {
	PartnerID string `json:"partner_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService handles JWT creation and validation for the partner API.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

// NewTokenService returns a configured token service.
func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return &TokenService{secret: []byte(secret), expiresIn: expiresIn}
}

// GenerateToken issues a JWT for the given partner.
func (t *TokenService) GenerateToken(partnerID, role string) (string, error) {
	if partnerID == "" {
		return "", errors.New("auth: partner id is required")
	}

	now := time.Now().UTC()
	claims := Claims{
		PartnerID: partnerID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken verifies and decodes a JWT.
func (t *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("auth: invalid claims")
}

// KeyStore holds partner API keys hashed at rest with bcrypt.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]string // partner id -> bcrypt hash
	cost int
}

// NewKeyStore returns an empty key store.
func NewKeyStore(cost int) *KeyStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &KeyStore{keys: make(map[string]string), cost: cost}
}

// Register hashes and stores the API key for a partner.
func (s *KeyStore) Register(partnerID, apiKey string) error {
	if partnerID == "" || apiKey == "" {
		return errors.New("auth: partner id and api key are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.keys[partnerID] = string(hash)
	s.mu.Unlock()
	return nil
}

// Verify checks a presented API key against the stored hash.
func (s *KeyStore) Verify(partnerID, apiKey string) error {
	s.mu.RLock()
	hash, ok := s.keys[partnerID]
	s.mu.RUnlock()
	if !ok {
		return errors.New("auth: unknown partner")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey))
}
