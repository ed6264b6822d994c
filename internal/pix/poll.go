package pix

import "time"

// Policy bounds the polling for asynchronously generated PIX data.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Step         time.Duration
}

var DefaultPolicy = Policy{
	MaxAttempts:  10,
	InitialDelay: 3 * time.Second,
	Step:         2 * time.Second,
}

// Next returns how long to wait before the next attempt, given how many attempts were
// already made and whether data was found. ok is false when polling must stop.
func (p Policy) Next(attempts int, found bool) (delay time.Duration, ok bool) {
	if found || attempts >= p.MaxAttempts {
		return 0, false
	}
	return p.InitialDelay + time.Duration(attempts)*p.Step, true
}

// MaxWait is the cumulative delay when every attempt is used.
func (p Policy) MaxWait() time.Duration {
	var total time.Duration
	for i := 0; i < p.MaxAttempts; i++ {
		d, _ := p.Next(i, false)
		total += d
	}
	return total
}
