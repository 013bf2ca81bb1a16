package health

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Probe reports whether one dependency is usable.
type Probe func(ctx context.Context) error

type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Checks    map[string]string `json:"checks"`
	// Issues carries probe errors for logs; it is never serialized.
	Issues    []string          `json:"-"`
	CheckedAt time.Time         `json:"checked_at"`
}

// DefaultTimeout bounds each probe.
const DefaultTimeout = 2 * time.Second

// Check runs every probe with its own timeout. Probes run in name order so
// the issue list is stable.
func Check(ctx context.Context, probes map[string]Probe, timeout time.Duration) *HealthStatus {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	status := &HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]string, len(probes)),
		Issues:    []string{},
		CheckedAt: time.Now().UTC(),
	}

	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := probes[name](probeCtx)
		cancel()
		if err != nil {
			status.Healthy = false
			status.Checks[name] = "fail"
			status.Issues = append(status.Issues, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		status.Checks[name] = "ok"
	}
	return status
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func PingProbe(p Pinger) Probe {
	return func(ctx context.Context) error {
		return p.PingContext(ctx)
	}
}
