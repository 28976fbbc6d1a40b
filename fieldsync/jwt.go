// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/VuDube/suitewasteos-18dec/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "suitewaste-fieldsync"

var (
	ErrMissingAuthHeader = errors.New("authorization header required")
	ErrNotBearer         = errors.New("bearer token required")
)

// JWTAuth issues and validates operator tokens
type JWTAuth struct {
	secret []byte
	logger *slog.Logger
}

// NewJWTAuth creates a new JWT authenticator
func NewJWTAuth(secret string, logger *slog.Logger) *JWTAuth {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTAuth{
		secret: []byte(secret),
		logger: logger,
	}
}

// JWTClaims identifies a field operator on one capture device
type JWTClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for operatorID on deviceID
func (j *JWTAuth) GenerateToken(operatorID, deviceID string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   operatorID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub (operator ID) in token")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("missing did (device ID) in token")
	}
	return claims, nil
}

// Identify extracts the caller from the bearer token (implements ClientAuthenticator)
func (j *JWTAuth) Identify(r *http.Request) (auth.Identity, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return auth.Identity{}, err
	}
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	return auth.Identity{OperatorID: claims.Subject, DeviceID: claims.DeviceID}, nil
}

// Middleware rejects requests without a valid token and stores the identity in the request context
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := j.Identify(r)
		if err != nil {
			j.logger.Warn("JWT validation failed", "error", err, "path", r.URL.Path)
			writeJSONError(w, http.StatusUnauthorized, CodeAuthFailed, err.Error())
			return
		}
		ctx := auth.WithIdentity(r.Context(), id.OperatorID, id.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrNotBearer
	}
	return strings.TrimSpace(token), nil
}
