package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/aurora"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

// InstanceStatus is the outcome of the latest evaluation of one instance
type InstanceStatus struct {
	EvaluationID     string    `json:"evaluation_id,omitempty"`
	CurrentClass     string    `json:"current_class,omitempty"`
	RecommendedClass string    `json:"recommended_class,omitempty"`
	Verdict          string    `json:"verdict,omitempty"`
	SuggestedMinACUs float64   `json:"suggested_min_acus,omitempty"`
	SuggestedMaxACUs float64   `json:"suggested_max_acus,omitempty"`
	Error            string    `json:"error,omitempty"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// CycleStatus summarizes the last completed cycle
type CycleStatus struct {
	Cycles    int                       `json:"cycles"`
	LastCycle time.Time                 `json:"last_cycle,omitempty"`
	Duration  time.Duration             `json:"duration"`
	Instances map[string]InstanceStatus `json:"instances"`
}

// advisoryRunner implements CycleRunner
type advisoryRunner struct {
	advisor Advisor
	config  Config
	metrics MetricsReporter
	log     *logrus.Entry
	now     func() time.Time

	mu     sync.RWMutex
	status CycleStatus
}

// NewAdvisoryRunner creates a new cycle runner
func NewAdvisoryRunner(advisor Advisor, config Config, metrics MetricsReporter, log *logrus.Entry) CycleRunner {
	return &advisoryRunner{
		advisor: advisor,
		config:  config,
		metrics: metrics,
		log:     log.WithField("component", "runner"),
		now:     time.Now,
		status:  CycleStatus{Instances: make(map[string]InstanceStatus)},
	}
}

// RunCycle evaluates every configured instance over the window ending now.
// Instances are independent: one failure is recorded and the rest proceed.
func (r *advisoryRunner) RunCycle(ctx context.Context) (err error) {
	start := r.now()

	defer func() {
		r.metrics.RecordCycleDuration(time.Since(start))
		r.metrics.RecordCycleCompletion()

		if rec := recover(); rec != nil {
			r.metrics.RecordError("panic")
			r.log.Errorf("Recovered from panic in advisory cycle: %v", rec)
			err = NewDaemonError("run_cycle", "running", fmt.Errorf("panic: %v", rec))
		}
	}()

	instances := r.config.GetInstances()
	r.log.WithFields(logrus.Fields{
		"region":    r.config.GetRegion(),
		"instances": len(instances),
	}).Info("Starting advisory cycle")

	statuses := make(map[string]InstanceStatus, len(instances))
	var errs []error
	for _, id := range instances {
		if ctx.Err() != nil {
			return WrapError("run_cycle", ctx.Err())
		}
		status, err := r.evaluate(ctx, id)
		if err != nil {
			r.metrics.RecordError(errorType(err))
			entry := r.log.WithError(err).WithField("instance", id)
			if code := aurora.ErrorCode(err); code != "" {
				entry = entry.WithField("aws_error_code", code)
			}
			entry.Error("Evaluation failed")
			status.Error = err.Error()
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrEvaluationFailed, id, err))
		}
		statuses[id] = status
	}

	r.mu.Lock()
	r.status = CycleStatus{
		Cycles:    r.status.Cycles + 1,
		LastCycle: start,
		Duration:  time.Since(start),
		Instances: statuses,
	}
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"evaluated": len(instances) - len(errs),
		"failed":    len(errs),
	}).Info("Advisory cycle complete")

	if len(errs) > 0 {
		return NewDaemonError("evaluate", "running", errors.Join(errs...))
	}
	return nil
}

// evaluate snapshots one instance and, when enabled, estimates its serverless capacity
func (r *advisoryRunner) evaluate(ctx context.Context, id string) (InstanceStatus, error) {
	eval := r.advisor.NewEvaluation(id, r.now())
	status := InstanceStatus{EvaluationID: eval.ID, EvaluatedAt: r.now()}

	snap, err := r.advisor.Snapshot(ctx, eval)
	if err != nil {
		return status, err
	}
	r.metrics.RecordSnapshot(snap)
	status.CurrentClass = snap.Instance.Class
	status.Verdict = string(snap.Recommendation.Verdict)
	if top := snap.Recommendation.Top(); top != nil {
		status.RecommendedClass = top.Class
	}

	if !r.config.IsServerlessEnabled() {
		return status, nil
	}
	est, err := r.advisor.ServerlessEstimate(ctx, eval)
	if err != nil {
		return status, err
	}
	r.metrics.RecordServerless(est)
	status.SuggestedMinACUs = est.Estimate.SuggestedMinACUs
	status.SuggestedMaxACUs = est.Estimate.SuggestedMaxACUs
	return status, nil
}

// Status returns a copy of the last cycle's status
func (r *advisoryRunner) Status() CycleStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.status
	out.Instances = make(map[string]InstanceStatus, len(r.status.Instances))
	for id, s := range r.status.Instances {
		out.Instances[id] = s
	}
	return out
}

// errorType labels an evaluation error for the errors metric
func errorType(err error) string {
	switch {
	case errors.Is(err, evalerr.ErrCollaboratorUnavailable) && aurora.IsTransient(err):
		return "throttled"
	case errors.Is(err, evalerr.ErrCollaboratorUnavailable):
		return "collaborator_unavailable"
	case errors.Is(err, evalerr.ErrNoWorkloadData):
		return "no_workload_data"
	case errors.Is(err, evalerr.ErrMalformedCatalogEntry):
		return "malformed_catalog_entry"
	default:
		return "evaluation_error"
	}
}
