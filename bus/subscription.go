package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tokenism/geobus/errors"
)

const (
	defaultAckWait   = 30 * time.Second
	defaultFetchWait = 5 * time.Second
)

var errNoMessage = stderrors.New("bus: delivery carries no message")

// SubscribeOption configures a Subscription during Subscribe.
type SubscribeOption func(*Subscription) error

// WithStream pins the subscription to a named stream instead of resolving
// the stream from the subject pattern on first pull.
func WithStream(name string) SubscribeOption {
	return func(s *Subscription) error {
		if name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: empty stream name", errors.ErrInvalidConfig),
				"bus", "WithStream", "option check")
		}
		s.stream = name
		return nil
	}
}

// WithDurable overrides the durable consumer name derived from the
// pattern. Two subscribers sharing a durable share one cursor and split
// the messages between them.
func WithDurable(name string) SubscribeOption {
	return func(s *Subscription) error {
		if name == "" || strings.ContainsAny(name, ".*> \t") {
			return errors.WrapInvalid(
				fmt.Errorf("%w: durable name %q", errors.ErrInvalidConfig, name),
				"bus", "WithDurable", "option check")
		}
		s.durable = name
		return nil
	}
}

// WithAckWait sets how long the server waits for an acknowledgment before
// redelivering a message.
func WithAckWait(wait time.Duration) SubscribeOption {
	return func(s *Subscription) error {
		if wait > 0 {
			s.ackWait = wait
		}
		return nil
	}
}

// WithMaxDeliver bounds redelivery attempts per message. Zero, the
// default, means unlimited.
func WithMaxDeliver(n int) SubscribeOption {
	return func(s *Subscription) error {
		if n > 0 {
			s.maxDeliver = n
		}
		return nil
	}
}

// WithFetchWait sets the server-side wait per pull request. Next loops
// pulls of this length until the caller's context ends, so smaller values
// only affect cancellation latency on an idle subject, not throughput.
func WithFetchWait(wait time.Duration) SubscribeOption {
	return func(s *Subscription) error {
		if wait > 0 {
			s.fetchWait = wait
		}
		return nil
	}
}

// Subscription is a durable pull consumer over a subject pattern. It is
// lazy: Subscribe only records the configuration, and the durable
// consumer is created or bound on the first Next. The server keeps the
// cursor, so closing a Subscription and subscribing again with the same
// pattern resumes from the first unacknowledged message.
//
// Delivery is at-least-once: a message not acknowledged within the ack
// wait is redelivered, so processing must be idempotent.
type Subscription struct {
	client  *Client
	pattern string
	durable string

	stream     string
	ackWait    time.Duration
	maxDeliver int
	fetchWait  time.Duration

	mu     sync.Mutex
	cons   jetstream.Consumer
	closed atomic.Bool
}

// Subscribe prepares a durable subscription on a subject pattern.
// Wildcards follow server semantics: "*" is one token, ">" is everything
// below the prefix. No consumer exists until the first Next.
func (c *Client) Subscribe(ctx context.Context, pattern string, opts ...SubscribeOption) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed.Load() {
		return nil, errors.ErrClosed
	}
	if !ValidPattern(pattern) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", nats.ErrBadSubject, pattern),
			"bus", "Subscribe", "pattern check")
	}

	s := &Subscription{
		client:    c,
		pattern:   pattern,
		durable:   DurableName(pattern),
		ackWait:   defaultAckWait,
		fetchWait: defaultFetchWait,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Pattern returns the subject pattern this subscription filters on.
func (s *Subscription) Pattern() string {
	return s.pattern
}

// Durable returns the durable consumer name carrying the cursor.
func (s *Subscription) Durable() string {
	return s.durable
}

// Stream returns the bound stream name, or "" before the first pull
// resolves it.
func (s *Subscription) Stream() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// bind creates or re-binds the durable consumer. Binding an existing
// durable picks up its cursor rather than starting over.
func (s *Subscription) bind(ctx context.Context) (jetstream.Consumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cons != nil {
		return s.cons, nil
	}

	js, err := s.client.jetStream()
	if err != nil {
		return nil, err
	}
	if s.stream == "" {
		stream, err := js.StreamNameBySubject(ctx, s.pattern)
		if err != nil {
			return nil, errors.WrapTransient(
				fmt.Errorf("%w: no stream covers %q", errors.ErrStreamNotFound, s.pattern),
				"bus", "Subscribe", "stream lookup")
		}
		s.stream = stream
	}

	cfg := jetstream.ConsumerConfig{
		Durable:       s.durable,
		FilterSubject: s.pattern,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.ackWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if s.maxDeliver > 0 {
		cfg.MaxDeliver = s.maxDeliver
	}
	cons, err := js.CreateOrUpdateConsumer(ctx, s.stream, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "bus", "Subscribe", "bind durable "+s.durable)
	}
	s.cons = cons
	s.client.logger.Debugf("durable %s bound on stream %s for %s", s.durable, s.stream, s.pattern)
	return cons, nil
}

// Next blocks until a message arrives or ctx ends. The pull is
// server-side: messages a slow consumer has not pulled stay in the
// stream, bounded by its retention, not by process memory.
func (s *Subscription) Next(ctx context.Context) (Delivery, error) {
	if s.closed.Load() {
		return Delivery{}, errors.ErrClosed
	}
	cons, err := s.bind(ctx)
	if err != nil {
		return Delivery{}, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}
		if s.closed.Load() || s.client.closed.Load() {
			return Delivery{}, errors.ErrClosed
		}

		wait := s.fetchWait
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			return Delivery{}, context.DeadlineExceeded
		}

		msg, err := cons.Next(jetstream.FetchMaxWait(wait))
		if err == nil {
			if s.client.metrics != nil {
				s.client.metrics.RecordPacketReceived("bus", s.pattern)
			}
			return Delivery{msg: msg}, nil
		}
		if stderrors.Is(err, nats.ErrTimeout) || stderrors.Is(err, jetstream.ErrNoMessages) {
			continue
		}
		return Delivery{}, errors.WrapTransient(err, "bus", "Next", "pull from "+s.durable)
	}
}

// Pending returns the backlog the stream still holds for this
// subscription: messages delivered but unacknowledged plus messages not
// yet delivered. Callers use it for their own admission control.
func (s *Subscription) Pending(ctx context.Context) (uint64, error) {
	if s.closed.Load() {
		return 0, errors.ErrClosed
	}
	cons, err := s.bind(ctx)
	if err != nil {
		return 0, err
	}
	info, err := cons.Info(ctx)
	if err != nil {
		return 0, errors.WrapTransient(err, "bus", "Pending", "consumer info")
	}
	return uint64(info.NumAckPending) + info.NumPending, nil
}

// Close stops the subscription. The durable cursor stays on the server:
// unacknowledged messages will be redelivered to the next subscription
// binding the same durable.
func (s *Subscription) Close() error {
	s.closed.Store(true)
	return nil
}

// Delivery is one received message. Ack confirms processing; Nak requests
// immediate redelivery; Term drops the message permanently. A message
// neither acknowledged nor terminated redelivers after the ack wait.
type Delivery struct {
	msg jetstream.Msg
}

// Subject returns the literal subject the message was published on.
func (d Delivery) Subject() string {
	if d.msg == nil {
		return ""
	}
	return d.msg.Subject()
}

// Data returns the message payload.
func (d Delivery) Data() []byte {
	if d.msg == nil {
		return nil
	}
	return d.msg.Data()
}

// Ack confirms the message so it is never redelivered.
func (d Delivery) Ack() error {
	if d.msg == nil {
		return errNoMessage
	}
	return d.msg.Ack()
}

// Nak asks the server to redeliver the message immediately.
func (d Delivery) Nak() error {
	if d.msg == nil {
		return errNoMessage
	}
	return d.msg.Nak()
}

// Term tells the server to stop delivering the message. Poison messages
// that can never decode are terminated, not acknowledged.
func (d Delivery) Term() error {
	if d.msg == nil {
		return errNoMessage
	}
	return d.msg.Term()
}

// Deliveries returns how many times the message has been delivered,
// counting this one. Zero means the delivery metadata was unavailable.
func (d Delivery) Deliveries() uint64 {
	if d.msg == nil {
		return 0
	}
	md, err := d.msg.Metadata()
	if err != nil {
		return 0
	}
	return md.NumDelivered
}

// Redelivered reports whether the message was delivered before.
func (d Delivery) Redelivered() bool {
	return d.Deliveries() > 1
}
