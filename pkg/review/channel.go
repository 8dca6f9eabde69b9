// Package review connects a workflow to a human reviewer through a shared
// message channel. The workflow posts drafts and polls for replies; a
// reviewer answers in the same channel. The gateway never blocks on a push
// callback, so any transport that can list messages newer than a marker can
// back it.
package review

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Message is one entry in a review channel.
type Message struct {
	// ID orders messages within a channel. IDs are opaque markers: the only
	// operation the gateway needs is "strictly newer than this ID".
	ID     string
	Author string
	Text   string
	At     time.Time
}

// Channel is a conversation the gateway can post to and poll.
type Channel interface {
	// Post appends a message and returns it with its assigned ID.
	Post(ctx context.Context, author, text string) (Message, error)

	// NewSince lists messages strictly newer than the marker, oldest first.
	// An empty marker lists the whole channel.
	NewSince(ctx context.Context, marker string) ([]Message, error)
}

// InMemoryChannel is a Channel held entirely in memory, used in tests and
// in scripted demos. Message IDs are zero-padded sequence numbers, so marker
// comparison is a plain string compare.
type InMemoryChannel struct {
	mu       sync.Mutex
	seq      int64
	messages []Message
}

var _ Channel = (*InMemoryChannel)(nil)

func NewInMemoryChannel() *InMemoryChannel {
	return &InMemoryChannel{}
}

func (c *InMemoryChannel) Post(ctx context.Context, author, text string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	msg := Message{
		ID:     fmt.Sprintf("%020d", c.seq),
		Author: author,
		Text:   text,
		At:     time.Now(),
	}
	c.messages = append(c.messages, msg)
	return msg, nil
}

func (c *InMemoryChannel) NewSince(ctx context.Context, marker string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Message
	for _, m := range c.messages {
		if marker == "" || m.ID > marker {
			out = append(out, m)
		}
	}
	return out, nil
}
