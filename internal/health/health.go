// Package health serves the liveness and readiness probes of the diagnostics
// listener.
//
// /healthz answers 200 with the process uptime whenever HTTP is served.
// /readyz runs every [Checker] concurrently and answers:
//
//   - 200 "ok" when all checks pass,
//   - 200 "degraded" when only [Checker.Optional] checks fail,
//   - 503 "fail" when a required check fails.
//
// A voice changer without its journal still changes voices, so the journal
// ping is optional while the pipeline check is required.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Probe statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is one named readiness check.
type Checker struct {
	Name string
	// Check returns nil when healthy. It must honour ctx.
	Check func(ctx context.Context) error
	// Optional failures degrade readiness instead of failing it.
	Optional bool
}

// CheckResult is the outcome of one [Checker] as reported by /readyz.
type CheckResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report is the JSON body of both probes.
type Report struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime,omitempty"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz.
type Handler struct {
	checkers []Checker
	started  time.Time
	now      func() time.Time
}

// New returns a Handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{
		Status: StatusOK,
		Uptime: h.now().Sub(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Check runs every checker concurrently, each bounded by its own timeout,
// and folds the results into a [Report].
func (h *Handler) Check(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(h.checkers))}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := h.now()
			err := c.Check(cctx)
			res := CheckResult{Status: StatusOK, LatencyMs: h.now().Sub(start).Milliseconds()}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Error = err.Error()
				res.Status = StatusFail
				if c.Optional {
					res.Status = StatusDegraded
				}
				rep.Status = worse(rep.Status, res.Status)
			}
			rep.Checks[c.Name] = res
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func worse(a, b string) string {
	rank := map[string]int{StatusOK: 0, StatusDegraded: 1, StatusFail: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
