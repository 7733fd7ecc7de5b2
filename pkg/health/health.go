package health

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aerosuite/platform/pkg/log"
)

// Status is the aggregate health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is a single subordinate health check. Critical checks take the
// process to unhealthy when they fail; non-critical ones only degrade it.
type Check interface {
	Name() string
	Critical() bool
	Run(ctx context.Context) error
}

// CheckResult is the outcome of one check run.
type CheckResult struct {
	Name      string        `json:"name"`
	Healthy   bool          `json:"healthy"`
	Critical  bool          `json:"critical"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Report aggregates all check results.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Probe runs the registered checks and aggregates their verdicts.
type Probe struct {
	mu     sync.Mutex
	checks []Check
}

// NewProbe creates a probe with the given checks.
func NewProbe(checks ...Check) *Probe {
	return &Probe{checks: checks}
}

// AddCheck registers an additional check.
func (p *Probe) AddCheck(c Check) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks = append(p.checks, c)
}

// Run executes every check and aggregates: a failing critical check
// yields unhealthy, a failing non-critical one degraded.
func (p *Probe) Run(ctx context.Context) Report {
	p.mu.Lock()
	checks := make([]Check, len(p.checks))
	copy(checks, p.checks)
	p.mu.Unlock()

	report := Report{Status: StatusHealthy, CheckedAt: time.Now().UTC()}
	for _, c := range checks {
		start := time.Now()
		err := c.Run(ctx)
		result := CheckResult{
			Name:      c.Name(),
			Healthy:   err == nil,
			Critical:  c.Critical(),
			Latency:   time.Since(start),
			CheckedAt: time.Now().UTC(),
		}
		if err != nil {
			result.Error = err.Error()
			if c.Critical() {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
			log.WithComponent("health").Warn().
				Str("check", c.Name()).Bool("critical", c.Critical()).Err(err).
				Msg("health check failed")
		}
		report.Checks = append(report.Checks, result)
	}
	return report
}

// Gate runs the probe once at startup and reports whether the process
// may start. In production a failing critical check blocks startup.
func (p *Probe) Gate(ctx context.Context, production bool) bool {
	report := p.Run(ctx)
	if report.Status == StatusUnhealthy && production {
		log.WithComponent("health").Error().Msg("startup gate failed: critical dependency unreachable")
		return false
	}
	return true
}

// funcCheck adapts a function to the Check interface.
type funcCheck struct {
	name     string
	critical bool
	run      func(ctx context.Context) error
}

func (f *funcCheck) Name() string                  { return f.name }
func (f *funcCheck) Critical() bool                { return f.critical }
func (f *funcCheck) Run(ctx context.Context) error { return f.run(ctx) }

// NewCheck wraps a function as a named check.
func NewCheck(name string, critical bool, run func(ctx context.Context) error) Check {
	return &funcCheck{name: name, critical: critical, run: run}
}

// NewDatabaseCheck verifies the primary store responds. The database is
// the one critical dependency.
func NewDatabaseCheck(ping func() error) Check {
	return NewCheck("database", true, func(ctx context.Context) error {
		return ping()
	})
}

// NewCacheCheck verifies the shared cache tier responds. The cache is
// optional: failure degrades but never takes the process unhealthy.
func NewCacheCheck(ping func(ctx context.Context) error) Check {
	return NewCheck("cache", false, ping)
}

// NewBackupCheck verifies the newest file under dir is younger than
// maxAge. A missing directory counts as a stale backup.
func NewBackupCheck(dir string, maxAge time.Duration) Check {
	return NewCheck("backup", false, func(ctx context.Context) error {
		newest, err := newestFileAge(dir)
		if err != nil {
			return err
		}
		if newest > maxAge {
			return &staleBackupError{age: newest, maxAge: maxAge}
		}
		return nil
	})
}

type staleBackupError struct {
	age    time.Duration
	maxAge time.Duration
}

func (e *staleBackupError) Error() string {
	return "newest backup is " + e.age.Truncate(time.Second).String() +
		" old, limit " + e.maxAge.String()
}

func newestFileAge(dir string) (time.Duration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var newest time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	if newest.IsZero() {
		return 0, os.ErrNotExist
	}
	return time.Since(newest), nil
}
