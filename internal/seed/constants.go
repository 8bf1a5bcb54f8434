package seed

import (
	"errors"
	"time"
)

// Errors returned by the seed tool.
var (
	ErrProbe     = errors.New("invalid probe")
	ErrLoad      = errors.New("failed to load buyers")
	ErrUnhealthy = errors.New("service not healthy")
	ErrRejected  = errors.New("buyer rejected")
)

const (
	probeFields        = 3
	defaultConcurrency = 8
	defaultTimeout     = 10 * time.Second
)
