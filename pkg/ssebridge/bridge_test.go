package ssebridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubicler/cubicler/pkg/mcptransport"
)

func TestBridge_RegisterAndDeliver(t *testing.T) {
	b := New()
	done := make(chan struct{})
	ch := b.Register("client-1", done)

	assert.True(t, b.Registered("client-1"))

	ok := b.Deliver("client-1", mcptransport.Response{JSONRPC: "2.0", ID: "1"})
	require.True(t, ok)

	frame := <-ch.Frames()
	assert.Contains(t, string(frame), `"id":"1"`)
	assert.Contains(t, string(frame), "data: ")
}

func TestBridge_Deliver_NoChannelRegistered(t *testing.T) {
	b := New()
	ok := b.Deliver("missing", mcptransport.Response{JSONRPC: "2.0", ID: "1"})
	assert.False(t, ok)
}

func TestBridge_ReRegister_ReplacesPrevious(t *testing.T) {
	b := New()
	done1 := make(chan struct{})
	first := b.Register("client-1", done1)

	done2 := make(chan struct{})
	second := b.Register("client-1", done2)

	b.Deliver("client-1", mcptransport.Response{JSONRPC: "2.0", ID: "only-second"})

	select {
	case _, ok := <-first.Frames():
		assert.False(t, ok, "first channel should be closed, not receive frames")
	default:
	}

	frame := <-second.Frames()
	assert.Contains(t, string(frame), "only-second")
}

func TestBridge_UnregistersOnDone(t *testing.T) {
	b := New()
	done := make(chan struct{})
	b.Register("client-1", done)
	close(done)

	assert.Eventually(t, func() bool {
		return !b.Registered("client-1")
	}, 500*time.Millisecond, 10*time.Millisecond)
}
