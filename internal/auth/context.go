// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated operator and device through a request context.
package auth

import (
	"context"
)

type contextKey string

const (
	operatorIDKey contextKey = "operator_id"
	deviceIDKey   contextKey = "device_id"
)

// Identity is the caller behind an authenticated request
type Identity struct {
	OperatorID string
	DeviceID   string
}

// WithIdentity stores operator and device in ctx
func WithIdentity(ctx context.Context, operatorID, deviceID string) context.Context {
	ctx = context.WithValue(ctx, operatorIDKey, operatorID)
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// OperatorID retrieves the operator ID from the context
func OperatorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(operatorIDKey).(string)
	return id, ok && id != ""
}

// DeviceID retrieves the device ID from the context
func DeviceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok && id != ""
}

// FromContext returns the identity stored by WithIdentity
func FromContext(ctx context.Context) (Identity, bool) {
	op, ok := OperatorID(ctx)
	if !ok {
		return Identity{}, false
	}
	dev, _ := DeviceID(ctx)
	return Identity{OperatorID: op, DeviceID: dev}, true
}
