// Package ratelimit implements the per-key token-bucket limits of §4.L:
// check-in attempts, notification issuance, and the general API ceiling.
// Grounded on the teacher's internal/net/ratelimit.Limiter (per-host
// golang.org/x/time/rate map), generalized from per-host to per-key and
// from a single rate to Limits' three named rules, with a pluggable
// Backend so the same Rule can run in-process or against Redis.
package ratelimit

import "time"

// Rule describes one of §4.L's token-bucket limits: burst tokens
// replenishing at a steady rate across the window.
type Rule struct {
	Burst  int
	Window time.Duration
}

// Per §4.L: 3 attempts / 5 min, 10 / 1h, 100 / 15 min.
var (
	CheckInRule      = Rule{Burst: 3, Window: 5 * time.Minute}
	NotificationRule = Rule{Burst: 10, Window: time.Hour}
	GeneralAPIRule   = Rule{Burst: 100, Window: 15 * time.Minute}
)

func (r Rule) perSecond() float64 {
	return float64(r.Burst) / r.Window.Seconds()
}
