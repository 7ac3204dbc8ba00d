package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks. A degraded process (no index, no
// providers) still reports instead of erroring, so probes can see what is
// missing.
type Service struct {
	index     IndexChecker
	embedding ProviderChecker
	chat      ProviderChecker
}

// New creates a Service. Any component can be nil.
func New(index IndexChecker, embedding, chat ProviderChecker) *Service {
	return &Service{index: index, embedding: embedding, chat: chat}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.index != nil && s.index.Size() > 0 {
		checks["index"] = CheckOK
	} else {
		checks["index"] = CheckError
	}

	checks["embedding"] = checkProvider(ctx, s.embedding)
	checks["chat"] = checkProvider(ctx, s.chat)

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func checkProvider(ctx context.Context, p ProviderChecker) CheckResult {
	if p == nil {
		return CheckError
	}
	if err := p.HealthCheck(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
