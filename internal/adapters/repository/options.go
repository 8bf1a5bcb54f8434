package repository

import "time"

const defaultOpTimeout = 200 * time.Millisecond

type settings struct {
	timeout time.Duration
}

func defaultSettings() settings {
	return settings{timeout: defaultOpTimeout}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithTimeout bounds every store call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}
