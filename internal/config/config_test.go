// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 24*time.Hour, cfg.RetryRetention)
	assert.True(t, cfg.UsesDefaultSecret())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		EnvDatabaseURL:    "postgres://db/prod",
		EnvJWTSecret:      "s3cret",
		EnvAddr:           ":9090",
		EnvServerURL:      "https://sync.example",
		EnvQueueDB:        "/data/q.db",
		EnvToken:          "tok",
		EnvRetryRetention: "12h",
		EnvMaxBatch:       "50",
		EnvFeeRate:        "0.25",
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/prod", cfg.DatabaseURL)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://sync.example", cfg.ServerURL)
	assert.Equal(t, "/data/q.db", cfg.QueueDB)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 12*time.Hour, cfg.RetryRetention)
	assert.Equal(t, 50, cfg.MaxBatch)
	assert.InDelta(t, 0.25, cfg.FeeRate, 1e-9)
	assert.False(t, cfg.UsesDefaultSecret())
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	for key, val := range map[string]string{
		EnvRetryRetention: "forever",
		EnvMaxBatch:       "-1",
		EnvFeeRate:        "abc",
	} {
		_, err := LoadFrom(lookupFrom(map[string]string{key: val}))
		assert.ErrorContains(t, err, key)
	}
}
