package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

// TokenManager 簽發與解析 HS256 JWT
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret), now: time.Now}
}

// GenerateToken 生成一個在 ttl 後過期的 JWT token
func (m *TokenManager) GenerateToken(userID string, ttl time.Duration) (string, error) {
	nowTime := m.now()
	expireTime := nowTime.Add(ttl)

	claims := Claims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			ExpiresAt: expireTime.Unix(),
			IssuedAt:  nowTime.Unix(),
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenClaims.SignedString(m.secret)
}

// ParseToken 解析和驗證 JWT token
func (m *TokenManager) ParseToken(token string) (*Claims, error) {
	tokenClaims, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := tokenClaims.Claims.(*Claims)
	if !ok || !tokenClaims.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SessionSigner 以 HMAC-SHA256 綁定身分與到期時間，
// 連線上的每則訊息只需驗簽即可，不必重新解析憑證。
type SessionSigner struct {
	key []byte
}

func NewSessionSigner(key string) *SessionSigner {
	return &SessionSigner{key: []byte(key)}
}

func (s *SessionSigner) Sign(identity string, expiry time.Time) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(identity))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(expiry.UnixMilli(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *SessionSigner) Verify(identity string, expiry time.Time, signature string) bool {
	expected := s.Sign(identity, expiry)
	return hmac.Equal([]byte(expected), []byte(signature))
}
