// Package config loads and validates the process configuration for
// geometry bus services.
//
// One Config struct covers every section a service reads: bus connection,
// stream declaration, codec defaults, spectral filter, manifold
// thresholds, producer and consumer tuning, metrics endpoint and object
// storage. Files are JSON or YAML, chosen by extension, decoded over the
// defaults so a file only states what it changes.
//
// # Loading
//
//	cfg, err := config.Load("geobus.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// A small set of GEOBUS_* environment variables override the values that
// differ between deployments of the same file, such as GEOBUS_BUS_URL and
// GEOBUS_BUS_TOKEN. Load validates the final result; every validation
// failure is an Invalid-class error naming the field.
//
// # Durations
//
// Duration fields accept Go duration strings plus a whole-day suffix, so
// a retention window reads "30d" instead of "720h".
//
// # Shared access
//
// SafeConfig wraps a Config behind an RWMutex for processes whose
// services reload configuration at runtime. Get hands out deep copies;
// Update validates before swapping.
package config
