package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "replay-engine"

var (
	// ErrInvalidToken - токен не прошёл проверку подписи или срока
	ErrInvalidToken = errors.New("недействительный токен")
	// ErrWeakSecret - секрет короче 32 байт
	ErrWeakSecret = errors.New("secret key must be at least 32 bytes")
)

// Claims - утверждения токена зрителя записи
type Claims struct {
	Viewer  string `json:"viewer"`
	Control bool   `json:"control"` // право перематывать и перезагружать запись
	jwt.RegisteredClaims
}

// Signer выпускает и проверяет HS256-токены одним секретом
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner создаёт Signer. Пустой secret заменяется случайным:
// такие токены живут только до перезапуска процесса.
func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("не удалось сгенерировать секрет: %w", err)
		}
	}
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: secret, ttl: ttl}, nil
}

// NewSignerFromBase64 декодирует секрет из base64 (см. GenerateSecureSecret)
func NewSignerFromBase64(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return NewSigner(nil, ttl)
	}
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, err
	}
	return NewSigner(decoded, ttl)
}

// Generate creates a signed token for the viewer
func (s *Signer) Generate(viewer string, control bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		Viewer:  viewer,
		Control: control,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   viewer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate checks token validity and returns its claims
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}
