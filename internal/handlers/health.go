package handlers

import (
	"net/http"
	"time"

	domain "github.com/piiderlab/api/internal/domain"
	"github.com/piiderlab/api/internal/services"
)

// HealthHandlers serves the /healthz liveness and /readyz readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	now    func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service backing the readiness probe.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets version metadata included in probe responses.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the clock used for uptime calculation.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthzPayload struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

// Healthz reports process liveness; it never touches downstream dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSONResponse(w, http.StatusOK, healthzPayload{
		Status:      string(domain.HealthStatusOK),
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).String(),
		Timestamp:   now.UTC().Format(time.RFC3339),
	})
}

type readyzCheckPayload struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type readyzPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	Checks      map[string]readyzCheckPayload `json:"checks"`
	GeneratedAt string                        `json:"generatedAt,omitempty"`
}

// Readyz probes downstream dependencies through the system service and
// reports 503 while any of them is failing.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzPayload{
			Status: string(domain.HealthStatusOK),
			Checks: map[string]readyzCheckPayload{},
		})
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzPayload{
			Status: string(domain.HealthStatusError),
			Checks: map[string]readyzCheckPayload{
				"system": {Status: string(domain.HealthStatusError), Error: err.Error()},
			},
		})
		return
	}

	payload := readyzPayload{
		Status:      string(report.Status),
		Version:     report.Version,
		Environment: report.Environment,
		Checks:      make(map[string]readyzCheckPayload, len(report.Checks)),
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.String()
	}
	for name, check := range report.Checks {
		entry := readyzCheckPayload{
			Status: string(check.Status),
			Detail: check.Detail,
			Error:  check.Error,
		}
		if check.Latency > 0 {
			entry.Latency = check.Latency.String()
		}
		payload.Checks[name] = entry
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
