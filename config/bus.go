package config

import (
	"github.com/tokenism/geobus/bus"
)

// Options renders the connection settings as bus client options. TLS
// material loads from disk here, so a bad certificate path fails at
// configuration time rather than on the first dial.
func (b BusConfig) Options() ([]bus.Option, error) {
	opts := []bus.Option{
		bus.WithMaxReconnects(b.MaxReconnects),
	}
	if b.URL != "" {
		opts = append(opts, bus.WithURL(b.URL))
	}
	if b.Name != "" {
		opts = append(opts, bus.WithName(b.Name))
	}
	// CredsFile wins when both credentials are configured.
	if b.CredsFile != "" {
		opts = append(opts, bus.WithCredentials(b.CredsFile))
	} else if b.Token != "" {
		opts = append(opts, bus.WithToken(b.Token))
	}
	if b.JetStreamDomain != "" {
		opts = append(opts, bus.WithJetStreamDomain(b.JetStreamDomain))
	}
	if d := b.Timeout.Std(); d > 0 {
		opts = append(opts, bus.WithTimeout(d))
	}
	if d := b.ReconnectWait.Std(); d > 0 {
		opts = append(opts, bus.WithReconnectWait(d))
	}
	if b.CircuitThreshold > 0 {
		opts = append(opts, bus.WithCircuitThreshold(b.CircuitThreshold))
	}
	if d := b.MaxBackoff.Std(); d > 0 {
		opts = append(opts, bus.WithMaxBackoff(d))
	}
	if b.TLS.Enabled {
		tlsCfg, err := b.TLS.Load()
		if err != nil {
			return nil, err
		}
		opts = append(opts, bus.WithTLS(tlsCfg))
	}
	return opts, nil
}

// Stream renders the stream declaration in the transport's terms.
func (s StreamConfig) Stream() bus.StreamConfig {
	return bus.StreamConfig{
		Name:     s.Name,
		Subjects: s.Subjects,
		MaxAge:   s.MaxAge.Std(),
		Replicas: s.Replicas,
	}
}
