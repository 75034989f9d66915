package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketwatch/crawler/internal/market"
)

type fakeSession struct {
	id   int
	fail bool
}

func (f *fakeSession) Navigate(context.Context, string) (string, error) {
	if f.fail {
		return "", errors.New("load failed")
	}
	return "<html></html>", nil
}

func (f *fakeSession) ClickAndCollect(context.Context, string) (string, error) {
	return "<html></html>", nil
}

func newFakePool(t *testing.T, size int) *Pool {
	t.Helper()
	sessions := make([]market.Session, size)
	for i := range sessions {
		sessions[i] = &fakeSession{id: i, fail: i%2 == 1}
	}
	p, err := NewWithSessions(Config{}, nil, sessions, nil)
	require.NoError(t, err)
	return p
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	t.Parallel()

	p := newFakePool(t, 1)
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	require.NoError(t, err)

	blockedCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(blockedCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release(s)
	s2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.Same(t, s, s2)
	p.Release(s2)
}

func TestSessionAccountingAfterMixedOutcomes(t *testing.T) {
	t.Parallel()

	const poolSize = 3
	const tasks = 20

	p := newFakePool(t, poolSize)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := p.Acquire(ctx)
			if err != nil {
				return
			}
			defer p.Release(s)
			// Failed loads still return the session to the pool.
			_, _ = s.Navigate(ctx, "https://www.megamarket.example/product/x-111/")
		}()
	}
	wg.Wait()

	require.Equal(t, poolSize, p.Available())
}

func TestShutdownDrainsAndClosesAcquire(t *testing.T) {
	t.Parallel()

	p := newFakePool(t, 2)
	ctx := context.Background()

	require.NoError(t, p.Shutdown(ctx))
	require.Equal(t, 0, p.Available())

	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, market.ErrPoolClosed)

	// A double shutdown is a no-op.
	require.NoError(t, p.Shutdown(ctx))
}

func TestShutdownWaitsForOutstandingSessions(t *testing.T) {
	t.Parallel()

	p := newFakePool(t, 1)
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	require.NoError(t, err)

	// Shutdown cannot complete while a worker still holds the session.
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = p.Shutdown(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Releasing after shutdown never re-lends the session.
	p.Release(s)
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, market.ErrPoolClosed)
}
