// Package quota provides pure functions for quota admission and threshold
// evaluation. All functions are deterministic with no side effects.
package quota

import "fmt"

// Default alert thresholds, as fractions of the limit.
const (
	DefaultWarningThreshold  = 0.80
	DefaultCriticalThreshold = 0.95
)

// Config represents the quota limit and alert thresholds (value type).
// It is immutable after startup.
type Config struct {
	Limit             int64   // 0 = tracking only, no enforcement
	WarningThreshold  float64 // fraction in (0,1), below CriticalThreshold
	CriticalThreshold float64 // fraction in (0,1), below 1.0
}

// DefaultConfig returns a tracking-only config with default thresholds.
func DefaultConfig() Config {
	return Config{
		Limit:             0,
		WarningThreshold:  DefaultWarningThreshold,
		CriticalThreshold: DefaultCriticalThreshold,
	}
}

// Enforced reports whether the config carries a real limit.
func (c Config) Enforced() bool {
	return c.Limit > 0
}

// Validate checks limit and threshold constraints.
func (c Config) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("quota limit must be >= 0, got %d", c.Limit)
	}
	if c.WarningThreshold <= 0 || c.WarningThreshold >= 1 {
		return fmt.Errorf("warning threshold must be in (0,1), got %v", c.WarningThreshold)
	}
	if c.CriticalThreshold <= 0 || c.CriticalThreshold >= 1 {
		return fmt.Errorf("critical threshold must be in (0,1), got %v", c.CriticalThreshold)
	}
	if c.WarningThreshold >= c.CriticalThreshold {
		return fmt.Errorf("warning threshold %v must be below critical threshold %v",
			c.WarningThreshold, c.CriticalThreshold)
	}
	return nil
}

// Level indicates how close to or over the limit usage is.
type Level int

const (
	LevelNone     Level = iota // below warning threshold
	LevelWarning               // >= warning threshold
	LevelCritical              // >= critical threshold
	LevelExceeded              // >= 100%
)

// String returns the lowercase level name used in logs and metric dimensions.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelExceeded:
		return "exceeded"
	default:
		return "none"
	}
}

// Decision represents the outcome of an admission check (value type).
// It is advisory: it does not reserve capacity.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int64
}

// Remaining returns how many calls are left before the limit, never negative.
func (d Decision) Remaining() int64 {
	if d.Limit <= 0 {
		return 0
	}
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// Check decides admission from the current counter value.
// This is a PURE function - no side effects.
func Check(count int64, cfg Config) Decision {
	if !cfg.Enforced() {
		return Decision{Allowed: true, Count: count}
	}
	return Decision{
		Allowed: count < cfg.Limit,
		Count:   count,
		Limit:   cfg.Limit,
	}
}

// Assessment describes usage standing after an increment (value type).
type Assessment struct {
	Count   int64
	Limit   int64
	Percent float64
	Level   Level
}

// Assess computes the usage percentage and implied alert level.
// This is a PURE function.
func Assess(count int64, cfg Config) Assessment {
	a := Assessment{Count: count, Limit: cfg.Limit}
	if !cfg.Enforced() {
		return a
	}
	a.Percent = Percent(count, cfg.Limit)
	a.Level = LevelFor(count, cfg)
	return a
}

// LevelFor determines the highest alert level implied by count against cfg.
// Thresholds are compared as ratios so that exactly hitting a threshold
// (e.g. 400/500 at 0.80) registers the level.
func LevelFor(count int64, cfg Config) Level {
	if !cfg.Enforced() {
		return LevelNone
	}
	ratio := float64(count) / float64(cfg.Limit)
	switch {
	case ratio >= 1:
		return LevelExceeded
	case ratio >= cfg.CriticalThreshold:
		return LevelCritical
	case ratio >= cfg.WarningThreshold:
		return LevelWarning
	default:
		return LevelNone
	}
}

// Percent returns usage as a percentage of the limit, 0 when unlimited.
func Percent(count, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(count) / float64(limit) * 100
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ExceededError reports that the locally tracked counter has reached the
// limit. The message carries resource, count and limit so an operator can act
// without further lookups.
type ExceededError struct {
	Resource string
	Count    int64
	Limit    int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d calls used this period", e.Resource, e.Count, e.Limit)
}

// UnavailableError reports that the counter store could not answer an
// admission check while the fail-closed policy is active.
type UnavailableError struct {
	Resource string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("quota state unavailable for %s: %v", e.Resource, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
