package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	n atomic.Int64
}

func (c *countingNotifier) Notify() {
	c.n.Add(1)
}

func startRelay(t *testing.T, s *miniredis.Miniredis, local Notifier) *Relay {
	r, err := New("redis://"+s.Addr(), "test:reports", local)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	return r
}

func TestNotifyReachesEveryReplica(t *testing.T) {
	s := miniredis.RunT(t)

	var first, second countingNotifier
	r1 := startRelay(t, s, &first)
	defer r1.Close()
	r2 := startRelay(t, s, &second)
	defer r2.Close()

	r1.Notify()

	require.Eventually(t, func() bool {
		return first.n.Load() == 1 && second.n.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyFallsBackToLocal(t *testing.T) {
	s := miniredis.RunT(t)

	var local countingNotifier
	r, err := New("redis://"+s.Addr(), "test:reports", &local)
	require.NoError(t, err)
	defer r.Close()

	s.Close()
	r.Notify()

	assert.Equal(t, int64(1), local.n.Load())
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("not-a-url", "c", &countingNotifier{})
	assert.Error(t, err)
}
