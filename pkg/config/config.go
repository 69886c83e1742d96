// Package config holds the Configuration value object shared by the
// publisher, worker, and scheduler: delivery guarantees and the
// serialization registry they all serialise/deserialise task records
// through.
package config

import (
	"fmt"
	"time"

	"github.com/madcok-co/asynctask/pkg/serialization"
)

// Configuration is the immutable set of knobs governing delivery and
// wire encoding for a queue deployment. All participants (publisher,
// worker, scheduler) sharing a broker must agree on SerializationRegistry
// and DefaultBackend.
type Configuration struct {
	// MaxDeliveryAttempts bounds how many times a task is delivered to an
	// executor: a record whose RequeueCount has reached this value is
	// acked and dropped by the worker without being run.
	MaxDeliveryAttempts int

	// HealthcheckInterval is how often a worker refreshes the in-flight
	// timer of tasks it is still executing.
	HealthcheckInterval time.Duration

	// TimeoutInterval is the idle duration after which a broker
	// reclaims an in-flight task for redelivery. Must exceed
	// HealthcheckInterval, or a live task could be reclaimed out from
	// under its own executor.
	TimeoutInterval time.Duration

	// SerializationRegistry resolves argument values to wire backends.
	SerializationRegistry *serialization.Registry

	// DefaultBackend is used when no registered backend claims a given
	// argument value.
	DefaultBackend serialization.Backend
}

// New validates and returns a Configuration. It returns an error rather
// than panicking so callers building configuration from untrusted input
// (a config file, environment variables) can report a clean startup
// failure instead of crashing.
func New(cfg Configuration) (*Configuration, error) {
	if cfg.HealthcheckInterval >= cfg.TimeoutInterval {
		return nil, fmt.Errorf("config: healthcheck interval (%s) must be less than timeout interval (%s)", cfg.HealthcheckInterval, cfg.TimeoutInterval)
	}
	if cfg.MaxDeliveryAttempts <= 0 {
		return nil, fmt.Errorf("config: max delivery attempts must be positive, got %d", cfg.MaxDeliveryAttempts)
	}
	if cfg.SerializationRegistry == nil {
		return nil, fmt.Errorf("config: serialization registry is required")
	}
	if cfg.DefaultBackend == nil {
		return nil, fmt.Errorf("config: default backend is required")
	}
	out := cfg
	return &out, nil
}
