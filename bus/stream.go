package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tokenism/geobus/errors"
)

// DefaultMaxAge is the retention window for streams declared without an
// explicit MaxAge. Retention belongs to the transport: messages expire
// after the window whether or not any consumer read them, and no client
// reimplements it.
const DefaultMaxAge = 30 * 24 * time.Hour

// StreamConfig declares a durable stream and its retention.
type StreamConfig struct {
	// Name identifies the stream. No dots, spaces or wildcards.
	Name string `json:"name"`

	// Subjects are the patterns the stream captures.
	Subjects []string `json:"subjects"`

	// MaxAge bounds message retention. Zero applies DefaultMaxAge.
	MaxAge time.Duration `json:"max_age,omitempty"`

	// Replicas is the storage replica count. Zero means one.
	Replicas int `json:"replicas,omitempty"`

	// Description is carried into stream listings.
	Description string `json:"description,omitempty"`
}

// Validate checks the declaration before it reaches the server.
func (cfg StreamConfig) Validate() error {
	if cfg.Name == "" || strings.ContainsAny(cfg.Name, ". *>\t") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream name %q", errors.ErrInvalidConfig, cfg.Name),
			"bus", "Validate", "stream config check")
	}
	if len(cfg.Subjects) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream %s declares no subjects", errors.ErrInvalidConfig, cfg.Name),
			"bus", "Validate", "stream config check")
	}
	for _, subject := range cfg.Subjects {
		if !ValidPattern(subject) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: stream %s subject %q", errors.ErrInvalidConfig, cfg.Name, subject),
				"bus", "Validate", "stream config check")
		}
	}
	if cfg.MaxAge < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream %s has negative max age", errors.ErrInvalidConfig, cfg.Name),
			"bus", "Validate", "stream config check")
	}
	return nil
}

// jetStreamConfig renders the declaration with defaults applied:
// file-backed limits retention, DefaultMaxAge, single replica.
func (cfg StreamConfig) jetStreamConfig() jetstream.StreamConfig {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	replicas := cfg.Replicas
	if replicas <= 0 {
		replicas = 1
	}
	return jetstream.StreamConfig{
		Name:        cfg.Name,
		Description: cfg.Description,
		Subjects:    cfg.Subjects,
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		MaxAge:      maxAge,
		Replicas:    replicas,
	}
}

// EnsureStream declares a stream, creating it or updating an existing one
// to match cfg. Declaring is idempotent; producers and consumers can both
// call it at startup.
func (c *Client) EnsureStream(ctx context.Context, cfg StreamConfig) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	jsCfg := cfg.jetStreamConfig()
	if _, err := js.CreateOrUpdateStream(ctx, jsCfg); err != nil {
		return errors.WrapTransient(err, "bus", "EnsureStream", "declare stream "+cfg.Name)
	}
	c.logger.Printf("stream %s ensured: subjects %v, max age %s", cfg.Name, cfg.Subjects, jsCfg.MaxAge)
	return nil
}

// StreamInfo is the read-side view of a stream: its declaration plus the
// server's current state.
type StreamInfo struct {
	Name      string        `json:"name"`
	Subjects  []string      `json:"subjects"`
	MaxAge    time.Duration `json:"max_age"`
	Messages  uint64        `json:"messages"`
	Bytes     uint64        `json:"bytes"`
	Consumers int           `json:"consumers"`
	Created   time.Time     `json:"created"`
}

// StreamInfo fetches the current state of a named stream. A missing
// stream reports errors.ErrStreamNotFound.
func (c *Client) StreamInfo(ctx context.Context, name string) (*StreamInfo, error) {
	if c.closed.Load() {
		return nil, errors.ErrClosed
	}
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	stream, err := js.Stream(ctx, name)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrStreamNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrStreamNotFound, name),
				"bus", "StreamInfo", "stream lookup")
		}
		return nil, errors.WrapTransient(err, "bus", "StreamInfo", "stream lookup")
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "bus", "StreamInfo", "stream info")
	}
	view := streamInfoFrom(info)
	return &view, nil
}

// ListStreams returns the state of every stream visible on the
// connection.
func (c *Client) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	if c.closed.Load() {
		return nil, errors.ErrClosed
	}
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	var infos []StreamInfo
	lister := js.ListStreams(ctx)
	for info := range lister.Info() {
		infos = append(infos, streamInfoFrom(info))
	}
	if err := lister.Err(); err != nil {
		return nil, errors.WrapTransient(err, "bus", "ListStreams", "stream listing")
	}
	return infos, nil
}

// PurgeStream drops every retained message while keeping the stream and
// its consumers. Durable cursors survive a purge; the entries they point
// at do not.
func (c *Client) PurgeStream(ctx context.Context, name string) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	stream, err := js.Stream(ctx, name)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrStreamNotFound) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrStreamNotFound, name),
				"bus", "PurgeStream", "stream lookup")
		}
		return errors.WrapTransient(err, "bus", "PurgeStream", "stream lookup")
	}
	if err := stream.Purge(ctx); err != nil {
		return errors.WrapTransient(err, "bus", "PurgeStream", "purge stream "+name)
	}
	c.logger.Printf("stream %s purged", name)
	return nil
}

// DeleteStream removes a stream and everything it retains. Administering
// retention is the transport's concern; this exists for the stream admin
// tool, not for producers or consumers.
func (c *Client) DeleteStream(ctx context.Context, name string) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	if err := js.DeleteStream(ctx, name); err != nil {
		if stderrors.Is(err, jetstream.ErrStreamNotFound) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrStreamNotFound, name),
				"bus", "DeleteStream", "stream lookup")
		}
		return errors.WrapTransient(err, "bus", "DeleteStream", "delete stream "+name)
	}
	c.logger.Printf("stream %s deleted", name)
	return nil
}

func streamInfoFrom(info *jetstream.StreamInfo) StreamInfo {
	return StreamInfo{
		Name:      info.Config.Name,
		Subjects:  info.Config.Subjects,
		MaxAge:    info.Config.MaxAge,
		Messages:  info.State.Msgs,
		Bytes:     info.State.Bytes,
		Consumers: info.State.Consumers,
		Created:   info.Created,
	}
}
