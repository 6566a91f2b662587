// Package ssebridge correlates synchronous inbound MCP HTTP POSTs with a
// previously-registered SSE channel, so a client that wants a streamed
// response can receive one without the router itself knowing about SSE
// (spec §4.8).
package ssebridge

import (
	"encoding/json"
	"sync"

	"github.com/cubicler/cubicler/pkg/logger"
	"github.com/cubicler/cubicler/pkg/mcptransport"
)

// Channel is a single registered client's outbound frame sink.
type Channel struct {
	frames chan []byte
	done   <-chan struct{}
}

// Bridge holds at most one Channel per client id; a re-register replaces
// the previous channel (spec §4.8 invariant).
type Bridge struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

// New builds an empty Bridge.
func New() *Bridge {
	return &Bridge{channels: make(map[string]*Channel)}
}

// Register creates (or replaces) the channel for clientID. done should be
// closed when the owning SSE connection ends, so the bridge can drop the
// channel without racing a future Deliver.
func (b *Bridge) Register(clientID string, done <-chan struct{}) *Channel {
	ch := &Channel{frames: make(chan []byte, 8), done: done}

	b.mu.Lock()
	if old, ok := b.channels[clientID]; ok {
		close(old.frames)
	}
	b.channels[clientID] = ch
	b.mu.Unlock()

	go func() {
		<-done
		b.mu.Lock()
		if b.channels[clientID] == ch {
			delete(b.channels, clientID)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Frames returns the channel's outbound frame stream, each already encoded
// as a complete `data: <json>\n\n` SSE frame.
func (c *Channel) Frames() <-chan []byte { return c.frames }

// Registered reports whether clientID currently has a live channel.
func (b *Bridge) Registered(clientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.channels[clientID]
	return ok
}

// Deliver writes resp to clientID's channel as a single SSE frame. It
// reports false if no channel is registered for clientID (the caller
// should then fall back to a synchronous HTTP response).
func (b *Bridge) Deliver(clientID string, resp mcptransport.Response) bool {
	b.mu.Lock()
	ch, ok := b.channels[clientID]
	b.mu.Unlock()
	if !ok {
		return false
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		logger.Warnf("ssebridge: failed to marshal response for %s: %v", clientID, err)
		return false
	}

	frame := append([]byte("data: "), raw...)
	frame = append(frame, '\n', '\n')

	select {
	case ch.frames <- frame:
		return true
	default:
		logger.Warnf("ssebridge: channel for %s is full, dropping frame", clientID)
		return false
	}
}
