package httpapi

import (
	"context"
	"sort"
	"sync"
	"time"
)

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency,omitempty"`
}

type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
	Uptime     time.Duration     `json:"uptime"`
	Version    string            `json:"version"`
}

// HealthChecker runs the registered checks on every check.
type HealthChecker struct {
	mu       sync.Mutex
	start    time.Time
	version  string
	checkers map[string]func(context.Context) error
}

func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		start:    time.Now(),
		version:  version,
		checkers: make(map[string]func(context.Context) error),
	}
}

func (hc *HealthChecker) Register(name string, check func(context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = check
}

// Check runs every component check. The system is unhealthy when any fails.
func (hc *HealthChecker) Check(ctx context.Context) *SystemHealth {
	hc.mu.Lock()
	names := make([]string, 0, len(hc.checkers))
	checks := make(map[string]func(context.Context) error, len(hc.checkers))
	for name, check := range hc.checkers {
		names = append(names, name)
		checks[name] = check
	}
	hc.mu.Unlock()
	sort.Strings(names)

	health := &SystemHealth{
		Status:    Healthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(hc.start),
		Version:   hc.version,
	}
	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)
		c := ComponentHealth{Name: name, Status: Healthy, Message: "OK", LastCheck: time.Now(), Latency: time.Since(start)}
		if err != nil {
			c.Status, c.Message = Unhealthy, err.Error()
			health.Status = Unhealthy
		}
		health.Components = append(health.Components, c)
	}
	return health
}
