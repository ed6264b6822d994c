package timeutil

import "time"

// Now returns the current time in UTC. Timestamps stored or sent to the gateway are
// always in UTC.
func Now() time.Time {
	return time.Now().UTC()
}
