package config

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tokenism/geobus/codec"
	"github.com/tokenism/geobus/errors"
	"github.com/tokenism/geobus/manifold"
	"github.com/tokenism/geobus/spectral"
)

// Config is the complete process configuration: one section per concern,
// loadable from JSON or YAML with environment overrides on the connection
// secrets. The zero value is not usable; start from Default.
type Config struct {
	Bus      BusConfig           `json:"bus" yaml:"bus"`
	Stream   StreamConfig        `json:"stream" yaml:"stream"`
	Codec    CodecConfig         `json:"codec" yaml:"codec"`
	Spectral SpectralConfig      `json:"spectral" yaml:"spectral"`
	Manifold manifold.Thresholds `json:"manifold" yaml:"manifold"`
	Producer ProducerConfig      `json:"producer" yaml:"producer"`
	Consumer ConsumerConfig      `json:"consumer" yaml:"consumer"`
	Metrics  MetricsConfig       `json:"metrics" yaml:"metrics"`
	Storage  StorageConfig       `json:"storage" yaml:"storage"`
}

// BusConfig carries the transport connection settings.
type BusConfig struct {
	// URL is the server URL or comma-separated URL list.
	URL string `json:"url" yaml:"url"`

	// Name is the connection name reported to the server.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// CredsFile points at a NATS credentials file. Takes precedence over
	// Token when both are set.
	CredsFile string `json:"creds_file,omitempty" yaml:"creds_file,omitempty"`

	// Token authenticates with a bearer token.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// JetStreamDomain scopes the JetStream context, for leaf-node setups.
	JetStreamDomain string `json:"jetstream_domain,omitempty" yaml:"jetstream_domain,omitempty"`

	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxReconnects    int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait    Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	CircuitThreshold int      `json:"circuit_threshold,omitempty" yaml:"circuit_threshold,omitempty"`
	MaxBackoff       Duration `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`

	TLS TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig secures the bus connection. CAFile adds to the system roots;
// CertFile and KeyFile come as a pair when the server requires client
// certificates.
type TLSConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	CertFile           string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile             string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// Load builds the tls.Config for the connection: system roots plus CAFile,
// client certificate when configured. Returns nil when TLS is disabled.
func (t TLSConfig) Load() (*tls.Config, error) {
	if !t.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read CA file "+t.CAFile)
		}
		if !rootCAs.AppendCertsFromPEM(pem) {
			return nil, errors.WrapFatal(
				fmt.Errorf("no PEM certificates in %s", t.CAFile),
				"config", "Load", "parse CA file")
		}
	}
	cfg.RootCAs = rootCAs

	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "load client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	// Intentional via config; operators own the risk.
	if t.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}

	return cfg, nil
}

// StreamConfig declares the stream the process publishes into or consumes
// from.
type StreamConfig struct {
	Name     string   `json:"name" yaml:"name"`
	Subjects []string `json:"subjects" yaml:"subjects"`

	// MaxAge is the retention window. Accepts day suffixes ("30d").
	MaxAge Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	Replicas int `json:"replicas,omitempty" yaml:"replicas,omitempty"`
}

// CodecConfig sets packet encoding defaults.
type CodecConfig struct {
	// Precision is the coordinate quantization width: half, single or
	// double.
	Precision codec.Precision `json:"precision" yaml:"precision"`
}

// SpectralConfig sets the producer-side smoothing filter defaults.
type SpectralConfig struct {
	S         float64       `json:"s" yaml:"s"`
	Epsilon   float64       `json:"epsilon" yaml:"epsilon"`
	Threshold float64       `json:"threshold" yaml:"threshold"`
	Mode      spectral.Mode `json:"mode" yaml:"mode"`
}

// ToOptions renders the section as filter options with the depth cap
// defaulted.
func (s SpectralConfig) ToOptions() spectral.Options {
	return spectral.Options{
		S:         s.S,
		Epsilon:   s.Epsilon,
		Threshold: s.Threshold,
		Mode:      s.Mode,
		MaxDepth:  spectral.DefaultMaxDepth,
	}
}

// ProducerConfig tunes the packet producer.
type ProducerConfig struct {
	// Source identifies this producer in packet envelopes.
	Source string `json:"source" yaml:"source"`

	// Workload selects the seeded geometry generator: hyperbolic,
	// dirichlet, attribution or mixed.
	Workload string `json:"workload" yaml:"workload"`

	// Rate is the publish rate in packets per second.
	Rate float64 `json:"rate" yaml:"rate"`

	// Burst is the rate limiter burst size.
	Burst int `json:"burst" yaml:"burst"`

	// BufferSize bounds the in-process packet buffer.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// PointsPerPacket is the generated cloud size.
	PointsPerPacket int `json:"points_per_packet" yaml:"points_per_packet"`

	// Filter enables the spectral pre-filter on generated coordinates.
	Filter bool `json:"filter" yaml:"filter"`

	// Seed makes generated workloads reproducible.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ConsumerConfig tunes the packet consumer.
type ConsumerConfig struct {
	// Pattern is the subject pattern the consumer subscribes on.
	Pattern string `json:"pattern" yaml:"pattern"`

	// Workers is the decode/inspect worker count.
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize bounds the worker pool queue.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// DedupeTTL is the packet-hash dedupe window. Zero disables dedupe.
	DedupeTTL Duration `json:"dedupe_ttl,omitempty" yaml:"dedupe_ttl,omitempty"`

	// AckWait bounds server-side redelivery wait per message.
	AckWait Duration `json:"ack_wait,omitempty" yaml:"ack_wait,omitempty"`

	// MaxDeliver caps redeliveries per message. Zero means unlimited.
	MaxDeliver int `json:"max_deliver,omitempty" yaml:"max_deliver,omitempty"`

	// Archive stores processed packets in the geometry object store.
	Archive bool `json:"archive" yaml:"archive"`
}

// MetricsConfig exposes the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// StorageConfig tunes the geometry object store.
type StorageConfig struct {
	// Bucket names the object store bucket.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Compression enables s2 compression of stored payloads.
	Compression bool `json:"compression" yaml:"compression"`

	// CacheSize bounds the read-side LRU cache. Zero disables it.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// MaxBytes caps the bucket size. Zero means unlimited.
	MaxBytes int64 `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty"`
}

// Default returns the configuration every load starts from.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			URL:           "nats://localhost:4222",
			Name:          "geobus",
			Timeout:       Duration(5 * time.Second),
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Stream: StreamConfig{
			Name:     "GEOMETRY",
			Subjects: []string{"geometry.>"},
			MaxAge:   Duration(30 * 24 * time.Hour),
		},
		Codec: CodecConfig{
			Precision: codec.PrecisionDouble,
		},
		Spectral: SpectralConfig{
			S:         2.0,
			Epsilon:   1e-6,
			Threshold: 1e-6,
			Mode:      spectral.ModeAttenuate,
		},
		Manifold: manifold.DefaultThresholds(),
		Producer: ProducerConfig{
			Source:          "geobus-sim",
			Workload:        "mixed",
			Rate:            10,
			Burst:           20,
			BufferSize:      256,
			PointsPerPacket: 32,
		},
		Consumer: ConsumerConfig{
			Pattern:   "geometry.>",
			Workers:   4,
			QueueSize: 256,
			DedupeTTL: Duration(time.Minute),
			AckWait:   Duration(30 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Storage: StorageConfig{
			Bucket:      "geometry-packets",
			Compression: true,
			CacheSize:   512,
		},
	}
}

// Clone returns a deep copy through a JSON round trip.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String renders the configuration as indented JSON with the bearer token
// masked.
func (c *Config) String() string {
	clone := c.Clone()
	if clone.Bus.Token != "" {
		clone.Bus.Token = "***"
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}

// Validate checks every section, returning the first failure as an
// Invalid-class error. Subject pattern grammar is the transport's concern
// and is checked where streams are declared.
func (c *Config) Validate() error {
	if c.Bus.URL == "" {
		return missing("bus.url")
	}
	if c.Bus.CircuitThreshold < 0 {
		return invalid("bus.circuit_threshold must not be negative, got %d", c.Bus.CircuitThreshold)
	}
	if (c.Bus.TLS.CertFile == "") != (c.Bus.TLS.KeyFile == "") {
		return invalid("bus.tls cert_file and key_file must be set together")
	}

	if c.Stream.Name == "" {
		return missing("stream.name")
	}
	if strings.ContainsAny(c.Stream.Name, ". *>\t") {
		return invalid("stream.name %q must stay a single plain token", c.Stream.Name)
	}
	if len(c.Stream.Subjects) == 0 {
		return missing("stream.subjects")
	}
	if c.Stream.MaxAge < 0 {
		return invalid("stream.max_age must not be negative")
	}

	if c.Codec.Precision != "" && !c.Codec.Precision.Valid() {
		return invalid("codec.precision %q is not half, single or double", c.Codec.Precision)
	}

	if err := c.Spectral.ToOptions().Validate(); err != nil {
		return err
	}
	if err := c.Manifold.Validate(); err != nil {
		return err
	}

	if c.Producer.Source == "" {
		return missing("producer.source")
	}
	if c.Producer.Rate <= 0 {
		return invalid("producer.rate must be positive, got %g", c.Producer.Rate)
	}
	if c.Producer.Burst < 1 {
		return invalid("producer.burst must be at least 1, got %d", c.Producer.Burst)
	}
	if c.Producer.BufferSize < 1 {
		return invalid("producer.buffer_size must be at least 1, got %d", c.Producer.BufferSize)
	}
	if c.Producer.PointsPerPacket < 1 {
		return invalid("producer.points_per_packet must be at least 1, got %d", c.Producer.PointsPerPacket)
	}

	if c.Consumer.Pattern == "" {
		return missing("consumer.pattern")
	}
	if c.Consumer.Workers < 1 {
		return invalid("consumer.workers must be at least 1, got %d", c.Consumer.Workers)
	}
	if c.Consumer.QueueSize < 1 {
		return invalid("consumer.queue_size must be at least 1, got %d", c.Consumer.QueueSize)
	}
	if c.Consumer.DedupeTTL < 0 {
		return invalid("consumer.dedupe_ttl must not be negative")
	}
	if c.Consumer.MaxDeliver < 0 {
		return invalid("consumer.max_deliver must not be negative, got %d", c.Consumer.MaxDeliver)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d is not a valid port", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.Storage.Bucket == "" {
		return missing("storage.bucket")
	}
	if strings.ContainsAny(c.Storage.Bucket, ". *>\t") {
		return invalid("storage.bucket %q must stay a single plain token", c.Storage.Bucket)
	}
	if c.Storage.CacheSize < 0 {
		return invalid("storage.cache_size must not be negative, got %d", c.Storage.CacheSize)
	}
	if c.Storage.MaxBytes < 0 {
		return invalid("storage.max_bytes must not be negative, got %d", c.Storage.MaxBytes)
	}

	return nil
}

func missing(field string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrMissingConfig, field),
		"config", "Validate", "required field check")
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"config", "Validate", "field check")
}

// SafeConfig provides thread-safe access to a Config shared between the
// services of one process.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a config. A nil config starts from Default.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration. Callers can
// mutate the copy freely.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validating it. An
// invalid config leaves the current one in place.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nil config", errors.ErrInvalidConfig),
			"config", "Update", "config check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
