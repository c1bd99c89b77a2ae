package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/wire"
)

func TestProcessSendTransitionsIdleToWaiting(t *testing.T) {
	r := New(1, Login, nil, nil)
	require.Equal(t, Idle, r.Status)

	head := r.ProcessSend()
	require.NotNil(t, head)
	require.Equal(t, WaitingForResponse, r.Status)

	// A second call while waiting produces nothing.
	require.Nil(t, r.ProcessSend())
}

func TestProcessRecvSuccess(t *testing.T) {
	r := New(2, Login, nil, nil)
	r.ProcessSend()

	resp := wire.NewObject().Set("status", int32(1))
	r.ProcessRecv(resp)
	require.Equal(t, Completed, r.Status)
}

func TestProcessRecvFailure(t *testing.T) {
	r := New(3, Login, nil, nil)
	r.ProcessSend()

	resp := wire.NewObject().Set("status", int32(0)).Set("message", "bad pw")
	r.ProcessRecv(resp)
	require.Equal(t, Error, r.Status)
	require.Equal(t, r.Outcome().Error.Message, "bad pw")
}

func TestCheckTimeoutFiresOnce(t *testing.T) {
	r := New(4, Login, nil, nil)
	r.Timeout = 0
	r.StartTime = time.Now().Add(-time.Second)

	require.True(t, r.CheckTimeout(time.Now()))
	require.Equal(t, Timeout, r.Status)
	require.False(t, r.CheckTimeout(time.Now()))
}

func TestCheckTimeoutNeverFiresWhileSending(t *testing.T) {
	r := New(5, Login, nil, nil)
	r.Status = Sending
	r.Timeout = 0
	r.StartTime = time.Now().Add(-time.Second)
	require.False(t, r.CheckTimeout(time.Now()))
}

func TestTrackerProcessSendCollectsIdleRequests(t *testing.T) {
	tr := NewTracker()
	tr.Add(New(1, Dispatch, nil, nil))
	tr.Add(New(2, Config, nil, nil))

	out := tr.ProcessSend()
	require.Len(t, out, 2)
}

func TestTrackerProcessRecvRoutesByRequestID(t *testing.T) {
	tr := NewTracker()
	r := New(7, FindContact, nil, nil)
	tr.Add(r)
	tr.ProcessSend()

	resp := wire.NewObject().Set("requestId", int32(7)).Set("status", int32(1))
	matched, ok := tr.ProcessRecv(resp)
	require.True(t, ok)
	require.Same(t, r, matched)
	require.Equal(t, Completed, matched.Status)
}

func TestTrackerProcessRecvUnknownID(t *testing.T) {
	tr := NewTracker()
	resp := wire.NewObject().Set("requestId", int32(999)).Set("status", int32(1))
	_, ok := tr.ProcessRecv(resp)
	require.False(t, ok)
}

func TestTrackerSweepEmitsTimeoutExactlyOnce(t *testing.T) {
	tr := NewTracker()
	r := New(9, Login, nil, nil)
	r.Timeout = 0
	r.StartTime = time.Now().Add(-time.Minute)
	tr.Add(r)
	tr.ProcessSend()

	require.Equal(t, 1, tr.Sweep(nil))
	require.Equal(t, Timeout, r.Status)
	_, stillTracked := tr.Get(9)
	require.False(t, stillTracked)

	require.Equal(t, 0, tr.Sweep(nil))
}

func TestTrackerInvokeCompletedRunsCallbackAndRemoves(t *testing.T) {
	tr := NewTracker()
	called := false
	r := New(13, Dispatch, nil, func(ev event.RequestEvent) { called = true })
	r.Status = Completed
	tr.Add(r)
	tr.InvokeCompleted(r)

	require.True(t, called)
	_, ok := tr.Get(13)
	require.False(t, ok)
}
