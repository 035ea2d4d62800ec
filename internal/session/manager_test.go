// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/types"
)

func newTestManager(t *testing.T) (*Manager, context.CancelFunc) {
	t.Helper()
	cfg := config.Defaults()
	cfg.TTLMaxDuration = time.Hour
	m := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, cancel
}

func TestManager_AuthorizeThenCreateSessionSucceeds(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	ctx := context.Background()
	key, err := m.AuthorizeSession(ctx, "app1", NewBearerAuthorization("tok"))
	require.NoError(t, err)
	require.NotEmpty(t, key)

	id := m.IDGenerator().Next()
	handle, b, exp, err := m.CreateSession(ctx, "app1", id, types.ProtocolSRT, &key, types.ReasonUnknown())
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, b)
	require.NotNil(t, exp)
}

func TestManager_CreateSessionWithWrongKeyFails(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	ctx := context.Background()
	_, err := m.AuthorizeSession(ctx, "app1", NewBearerAuthorization("tok"))
	require.NoError(t, err)

	bad := "not-the-key"
	id := m.IDGenerator().Next()
	_, _, _, err = m.CreateSession(ctx, "app1", id, types.ProtocolSRT, &bad, types.ReasonUnknown())
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestManager_CreateSessionWithoutKeyNeverChecksKeys(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	ctx := context.Background()
	id := m.IDGenerator().Next()
	handle, b, exp, err := m.CreateSession(ctx, "app1", id, types.ProtocolRTMP, nil, types.ReasonUnknown())
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, b)
	require.Nil(t, exp)
}

func TestManager_DuplicateSessionIdRejected(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	ctx := context.Background()
	id := m.IDGenerator().Next()
	_, _, _, err := m.CreateSession(ctx, "app1", id, types.ProtocolRTMP, nil, types.ReasonUnknown())
	require.NoError(t, err)

	_, _, _, err = m.CreateSession(ctx, "app1", id, types.ProtocolRTMP, nil, types.ReasonUnknown())
	require.ErrorIs(t, err, ErrDuplicatedCreation)
}

func TestManager_AuthorizeSessionTriggerCanReject(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	trig := NewEventTrigger()
	require.NoError(t, m.RegisterTrigger(context.Background(), EventAuthorizeSession, trig))

	go func() {
		envelope := <-trig
		envelope.Message.AuthResponder <- ErrUnauthorized
	}()

	_, err := m.AuthorizeSession(context.Background(), "app1", NewBearerAuthorization("bad"))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestManager_CreateSessionNotifiesRegisteredTrigger(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	trig := NewEventTrigger()
	require.NoError(t, m.RegisterTrigger(context.Background(), EventCreateSession, trig))

	id := m.IDGenerator().Next()
	go func() {
		_, _, _, _ = m.CreateSession(context.Background(), "app1", id, types.ProtocolSRT, nil, types.ReasonUnknown())
	}()

	select {
	case envelope := <-trig:
		require.Equal(t, types.AppName("app1"), envelope.Name)
		require.Equal(t, id, envelope.Message.SessionID)
		require.NotNil(t, envelope.Message.Bus)
	case <-time.After(time.Second):
		t.Fatal("trigger was not notified")
	}
}

func TestManager_ReleaseSessionRemovesFromRegistry(t *testing.T) {
	m, cancel := newTestManager(t)
	defer cancel()

	ctx := context.Background()
	id := m.IDGenerator().Next()
	_, _, _, err := m.CreateSession(ctx, "app1", id, types.ProtocolRTMP, nil, types.ReasonUnknown())
	require.NoError(t, err)

	require.NoError(t, m.ReleaseSession(ctx, "app1", id, types.ReasonUnknown()))

	// A second CreateSession with the same id must now succeed since the
	// first entry was removed from the registry.
	_, _, _, err = m.CreateSession(ctx, "app1", id, types.ProtocolRTMP, nil, types.ReasonUnknown())
	require.NoError(t, err)
}
