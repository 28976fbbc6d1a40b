// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsqlite

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind is the type of a connectivity signal
type EventKind int

const (
	EventOnline EventKind = iota
	EventOffline
	EventForeground
)

func (k EventKind) String() string {
	switch k {
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventForeground:
		return "foreground"
	default:
		return "unknown"
	}
}

// ConnectivityEvent is one signal from the host platform
type ConnectivityEvent struct {
	Kind EventKind
	At   time.Time
}

// ConnectivitySource delivers connectivity signals until its channel is closed
type ConnectivitySource interface {
	Events() <-chan ConnectivityEvent
}

// ChannelSource is a ConnectivitySource fed by the host
type ChannelSource chan ConnectivityEvent

func (c ChannelSource) Events() <-chan ConnectivityEvent { return c }

// ReplayNotifier is woken when connectivity returns
type ReplayNotifier interface {
	Notify()
}

// ConnectivityMonitor turns connectivity signals into sync triggers.
// It owns no queue; passes are coalesced by the coordinator.
type ConnectivityMonitor struct {
	coordinator *SyncCoordinator
	replay      ReplayNotifier
	logger      *slog.Logger

	mu     sync.Mutex
	online bool
	wg     sync.WaitGroup
}

// NewConnectivityMonitor creates a monitor whose initial state is the coordinator's
func NewConnectivityMonitor(coordinator *SyncCoordinator, replay ReplayNotifier, logger *slog.Logger) *ConnectivityMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectivityMonitor{
		coordinator: coordinator,
		replay:      replay,
		logger:      logger,
		online:      coordinator.Online(),
	}
}

// Online reports the last observed state
func (m *ConnectivityMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnConnectivityChange records a transition. Going online triggers a pass
// when records are pending; going offline only records the state.
func (m *ConnectivityMonitor) OnConnectivityChange(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.mu.Unlock()

	m.coordinator.SetOnline(online)
	m.logger.Info("Connectivity changed", "online", online, "pending", m.coordinator.PendingCount())
	if !online {
		return
	}
	if m.replay != nil {
		m.replay.Notify()
	}
	if m.coordinator.PendingCount() > 0 {
		m.trigger(ctx, EventOnline)
	}
}

// OnForeground triggers a pass if online with records pending
func (m *ConnectivityMonitor) OnForeground(ctx context.Context) {
	if !m.Online() || m.coordinator.PendingCount() == 0 {
		return
	}
	m.trigger(ctx, EventForeground)
}

// Run dispatches events from src until ctx ends or the source closes
func (m *ConnectivityMonitor) Run(ctx context.Context, src ConnectivitySource) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case EventOnline:
				m.OnConnectivityChange(ctx, true)
			case EventOffline:
				m.OnConnectivityChange(ctx, false)
			case EventForeground:
				m.OnForeground(ctx)
			}
		}
	}
}

// Wait blocks until every triggered pass has returned
func (m *ConnectivityMonitor) Wait() {
	m.wg.Wait()
}

func (m *ConnectivityMonitor) trigger(ctx context.Context, cause EventKind) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		report, err := m.coordinator.SyncAll(ctx)
		if err != nil {
			m.logger.Warn("Triggered sync pass failed", "cause", cause, "error", err)
			return
		}
		if report.Skipped != "" {
			m.logger.Debug("Triggered sync pass skipped", "cause", cause, "reason", report.Skipped)
		}
	}()
}
