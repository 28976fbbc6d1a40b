// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/VuDube/suitewasteos-18dec/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuth_GenerateAndValidate(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", nil)

	token, err := jwtAuth.GenerateToken("op-42", "tablet-9", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtAuth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-42", claims.Subject)
	assert.Equal(t, "tablet-9", claims.DeviceID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestJWTAuth_ValidateToken_Failures(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", nil)

	expired, err := jwtAuth.GenerateToken("op", "dev", -time.Minute)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(expired)
	require.Error(t, err)

	other, err := NewJWTAuth("other-secret", nil).GenerateToken("op", "dev", time.Hour)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(other)
	require.Error(t, err)

	noDevice, err := jwtAuth.GenerateToken("op", "", time.Hour)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(noDevice)
	require.ErrorContains(t, err, "did")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{DeviceID: "dev"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(unsigned)
	require.Error(t, err)
}

func TestJWTAuth_Identify(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", nil)
	token, err := jwtAuth.GenerateToken("op-1", "dev-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = jwtAuth.Identify(req)
	require.ErrorIs(t, err, ErrMissingAuthHeader)

	req.Header.Set("Authorization", "Token "+token)
	_, err = jwtAuth.Identify(req)
	require.ErrorIs(t, err, ErrNotBearer)

	req.Header.Set("Authorization", "Bearer "+token)
	id, err := jwtAuth.Identify(req)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{OperatorID: "op-1", DeviceID: "dev-1"}, id)
}

func TestJWTAuth_Middleware(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", nil)
	var seen auth.Identity
	h := jwtAuth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwtAuth.GenerateToken("op-1", "dev-1", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "op-1", seen.OperatorID)
	assert.Equal(t, "dev-1", seen.DeviceID)
}
