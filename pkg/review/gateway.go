package review

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultReplyTimeout is how long WaitForReply polls before giving up.
	DefaultReplyTimeout = 180 * time.Second

	// DefaultPollInterval is the pause between channel polls.
	DefaultPollInterval = 3 * time.Second

	// timeoutNotice is posted to the channel exactly once when a wait
	// expires without a reply, so the reviewer knows the workflow moved on.
	timeoutNotice = "No reply received in time; continuing without feedback."
)

// Gateway posts workflow messages to a review channel and waits for human
// replies by bounded polling. It filters out its own messages so the
// workflow can never mistake its own post for a reviewer's answer.
type Gateway struct {
	channel Channel
	self    string
	timeout time.Duration
	poll    time.Duration
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithReplyTimeout overrides the default wait ceiling.
func WithReplyTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithPollInterval overrides the default poll pause.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.poll = d
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a Gateway that posts as selfAuthor. Messages authored
// by selfAuthor are never returned as replies.
func NewGateway(ch Channel, selfAuthor string, opts ...Option) *Gateway {
	g := &Gateway{
		channel: ch,
		self:    selfAuthor,
		timeout: DefaultReplyTimeout,
		poll:    DefaultPollInterval,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Post publishes a message to the channel as the gateway's own author and
// returns it. The returned message's ID serves as the marker for a
// subsequent WaitForReply.
func (g *Gateway) Post(ctx context.Context, text string) (Message, error) {
	msg, err := g.channel.Post(ctx, g.self, text)
	if err != nil {
		return Message{}, err
	}
	g.logger.DebugContext(ctx, "review_post",
		slog.String("marker", msg.ID),
		slog.Int("chars", len(text)),
	)
	return msg, nil
}

// WaitForReply polls the channel for the first message strictly newer than
// afterMarker that was not authored by the gateway itself. It returns that
// message with ok=true as soon as one appears.
//
// When the configured timeout expires first, it posts a single timeout
// notice to the channel and returns ok=false with a nil error: an expired
// wait is an expected outcome, not a failure. Context cancellation is
// returned as an error.
func (g *Gateway) WaitForReply(ctx context.Context, afterMarker string) (Message, bool, error) {
	deadline := time.Now().Add(g.timeout)

	for {
		msgs, err := g.channel.NewSince(ctx, afterMarker)
		if err != nil {
			return Message{}, false, err
		}
		for _, m := range msgs {
			if m.Author == g.self {
				continue
			}
			g.logger.DebugContext(ctx, "review_reply",
				slog.String("marker", afterMarker),
				slog.String("reply_id", m.ID),
				slog.String("author", m.Author),
			)
			return m, true, nil
		}

		if !time.Now().Before(deadline) {
			break
		}

		wait := g.poll
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return Message{}, false, ctx.Err()
		case <-time.After(wait):
		}
	}

	g.logger.InfoContext(ctx, "review_timeout",
		slog.String("marker", afterMarker),
		slog.Duration("timeout", g.timeout),
	)
	if _, err := g.channel.Post(ctx, g.self, timeoutNotice); err != nil {
		// The notice is a courtesy; the timeout outcome stands either way.
		g.logger.WarnContext(ctx, "review_timeout_notice_failed", slog.Any("error", err))
	}
	return Message{}, false, nil
}
