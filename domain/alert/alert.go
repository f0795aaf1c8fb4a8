// Package alert composes human-facing quota notifications.
// Composition is pure; delivery lives in adapters/.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/artpar/quotamon/domain/quota"
)

// Alert carries everything a notification needs to say (value type).
type Alert struct {
	Severity quota.Level
	Resource string
	Count    int64
	Limit    int64
	Percent  float64
	Period   string
	At       time.Time
}

// Subject returns the notification subject line, e.g.
// "[WARNING] AdobeAPI quota alert".
func (a Alert) Subject() string {
	return fmt.Sprintf("[%s] %s quota alert", strings.ToUpper(a.Severity.String()), a.Resource)
}

// Body returns the notification body. It always states severity, resource,
// current count, limit, percentage to two decimals and a timestamp.
func (a Alert) Body() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Quota %s: %s\n\n", a.Severity, a.headline())
	fmt.Fprintf(&b, "Resource:  %s\n", a.Resource)
	if a.Limit > 0 {
		fmt.Fprintf(&b, "Usage:     %d / %d calls (%.2f%%)\n", a.Count, a.Limit, a.Percent)
	} else {
		fmt.Fprintf(&b, "Usage:     %d calls this period (no enforced limit)\n", a.Count)
	}
	fmt.Fprintf(&b, "Period:    %s\n", a.Period)
	fmt.Fprintf(&b, "Time:      %s\n", a.At.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "\n%s\n", a.action())

	return b.String()
}

func (a Alert) headline() string {
	switch a.Severity {
	case quota.LevelExceeded:
		return fmt.Sprintf("the %s call quota has been exhausted", a.Resource)
	case quota.LevelCritical:
		return fmt.Sprintf("%s usage has reached the critical threshold", a.Resource)
	default:
		return fmt.Sprintf("%s usage has reached the warning threshold", a.Resource)
	}
}

func (a Alert) action() string {
	switch a.Severity {
	case quota.LevelExceeded:
		return "Action required: further calls will be rejected until the period resets. Raise the limit or stop submitting work."
	case quota.LevelCritical:
		return "Action required: usage will hit the limit imminently at the current pace. Throttle submissions or raise the limit."
	default:
		return "Action recommended: review recent usage and confirm the current pace fits the remaining budget for this period."
	}
}
