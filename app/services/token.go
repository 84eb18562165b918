package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const accessTokenTTL = 15 * time.Minute

const blacklistPrefix = "blacklist:access_token:"

// jwtSecret is loaded lazily so an empty secret fails loudly instead of
// signing tokens with "".
var (
	jwtSecret     []byte
	secretLoadErr error
	secretOnce    sync.Once
)

func getJWTSecret() ([]byte, error) {
	secretOnce.Do(func() {
		val := os.Getenv("JWT_SECRET")
		if val == "" {
			secretLoadErr = fmt.Errorf("JWT_SECRET is not set")
			return
		}
		jwtSecret = []byte(val)
	})
	if secretLoadErr != nil {
		return nil, secretLoadErr
	}
	return jwtSecret, nil
}

// AccessClaims are the JWT claims carried by session access tokens.
type AccessClaims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a short-lived HS256 session token.
func GenerateAccessToken(userID int64, role string) (string, error) {
	secret, err := getJWTSecret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateAccessToken verifies the signature and expiry, then rejects tokens
// revoked via the logout blacklist.
func ValidateAccessToken(ctx context.Context, rdb *redis.Client, tokenStr string) (*AccessClaims, error) {
	secret, err := getJWTSecret()
	if err != nil {
		return nil, err
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	revoked, err := rdb.Exists(ctx, blacklistKey(tokenStr)).Result()
	if err != nil {
		return nil, fmt.Errorf("blacklist lookup failed: %w", err)
	}
	if revoked > 0 {
		return nil, fmt.Errorf("token revoked")
	}

	return claims, nil
}

// BlacklistAccessToken marks a still-valid token as revoked until it would
// have expired on its own.
func BlacklistAccessToken(ctx context.Context, rdb *redis.Client, tokenStr string) error {
	claims := &AccessClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return fmt.Errorf("parse token for blacklist: %w", err)
	}

	if claims.ExpiresAt == nil {
		return fmt.Errorf("token has no expiry")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}

	return rdb.Set(ctx, blacklistKey(tokenStr), "1", ttl).Err()
}

func blacklistKey(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return blacklistPrefix + hex.EncodeToString(sum[:])
}
