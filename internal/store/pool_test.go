// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourbook/tourbook/pkg/errutil"
)

type flakyPinger struct {
	failures int
	pings    int
	closed   bool
}

func (p *flakyPinger) Ping(context.Context) error {
	p.pings++
	if p.pings <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (p *flakyPinger) Close() { p.closed = true }

var fastRetry = ConnectOptions{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestWaitReady(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		p := &flakyPinger{failures: 2}
		require.NoError(t, waitReady(context.Background(), p, fastRetry))
		assert.Equal(t, 3, p.pings)
		assert.False(t, p.closed)
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		p := &flakyPinger{failures: 10}
		err := waitReady(context.Background(), p, fastRetry)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
		errutil.AssertErrorContext(t, err, "attempts", 3)
		assert.Equal(t, 3, p.pings)
		assert.True(t, p.closed)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &flakyPinger{failures: 10}
		err := waitReady(ctx, p, ConnectOptions{Attempts: 5, Backoff: time.Hour})
		require.Error(t, err)
		assert.True(t, p.closed)
		assert.LessOrEqual(t, p.pings, 1)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "://not a url", fastRetry)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}
