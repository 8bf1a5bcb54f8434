// Package seed loads buyers from a file, registers them against a running
// adroute server and probes the resulting routing.
package seed

import (
	"fmt"
	"strings"
	"time"
)

// Config holds configuration for a seed run.
type Config struct {
	BaseURL     string        // Base URL of the service
	File        string        // YAML or JSON file with buyers
	Concurrency int           // Parallel registrations
	Timeout     time.Duration // HTTP request timeout
	Probes      []Probe       // Route requests issued after seeding
	SkipHealth  bool          // Do not wait for /healthz before seeding
}

// Probe is one GET /route request.
type Probe struct {
	Timestamp string
	Device    string
	State     string
}

// ParseProbe reads "timestamp,device,state".
func ParseProbe(s string) (Probe, error) {
	parts := strings.Split(s, ",")
	if len(parts) != probeFields {
		return Probe{}, fmt.Errorf("%w: %q, want timestamp,device,state", ErrProbe, s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Probe{}, fmt.Errorf("%w: %q has an empty field", ErrProbe, s)
		}
	}
	return Probe{Timestamp: parts[0], Device: parts[1], State: parts[2]}, nil
}

func (p Probe) String() string {
	return p.Timestamp + "," + p.Device + "," + p.State
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Probe    Probe
	Status   int
	Location string
	Err      error
}

// Stats holds run statistics.
type Stats struct {
	BuyersLoaded     int
	BuyersRegistered int
	BuyersRejected   int
	BuyersFailed     int
	Probes           []ProbeResult
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
