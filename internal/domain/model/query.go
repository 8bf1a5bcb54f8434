package model

import (
	"errors"
	"strings"
	"time"
)

// timestampLayouts are tried in order. Zoneless layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a placement timestamp. Fractional seconds are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	const op = "model.parse_timestamp"
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, NewError(op, ErrInvalidRequest, MsgInvalidRequest, errors.New("missing timestamp"))
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewError(op, ErrInvalidRequest, MsgInvalidRequest, errors.New("unparseable timestamp "+s))
}

// Query is a placement request reduced to the four index dimensions.
type Query struct {
	Hour   int
	Day    int
	Device string
	State  string
}

// NewQuery derives day-of-week and hour-of-day of ts in loc.
func NewQuery(ts time.Time, loc *time.Location, device, state string) (Query, error) {
	const op = "model.new_query"
	device = strings.TrimSpace(device)
	state = strings.TrimSpace(state)
	switch {
	case device == "":
		return Query{}, NewError(op, ErrInvalidRequest, MsgInvalidRequest, errors.New("missing device"))
	case state == "":
		return Query{}, NewError(op, ErrInvalidRequest, MsgInvalidRequest, errors.New("missing state"))
	}
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	return Query{
		Hour:   local.Hour(),
		Day:    int(local.Weekday()),
		Device: device,
		State:  state,
	}, nil
}
