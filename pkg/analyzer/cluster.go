package analyzer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
)

// ClusterResult contains snapshot results for every member of a cluster
type ClusterResult struct {
	ClusterID         string            `json:"cluster_id"`
	Results           []*SnapshotResult `json:"results"`
	Failures          map[string]string `json:"failures,omitempty"`
	TotalInstances    int               `json:"total_instances"`
	AnalyzedInstances int               `json:"analyzed_instances"`
}

// SnapshotCluster snapshots every provisioned member of a cluster. Each member
// is its own evaluation; a failed member is recorded and the others proceed.
func (a *Advisor) SnapshotCluster(ctx context.Context, clusterID string, now time.Time) (*ClusterResult, error) {
	log := a.log.WithField("cluster", clusterID)

	log.Info("Listing cluster members")
	members, err := a.catalog.ClusterMembers(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster members: %w", err)
	}

	result := &ClusterResult{
		ClusterID:      clusterID,
		Results:        make([]*SnapshotResult, 0, len(members)),
		Failures:       make(map[string]string),
		TotalInstances: len(members),
	}
	for _, m := range members {
		if m.Serverless {
			log.WithField("instance", m.ID).Info("Skipping serverless member")
			continue
		}
		snap, err := a.Snapshot(ctx, a.NewEvaluation(m.ID, now))
		if err != nil {
			log.WithError(err).WithField("instance", m.ID).Error("Snapshot failed")
			result.Failures[m.ID] = err.Error()
			continue
		}
		result.Results = append(result.Results, snap)
	}
	result.AnalyzedInstances = len(result.Results)
	return result, nil
}

// Resizable returns the members whose recommendation is not to keep the current class
func (c *ClusterResult) Resizable() []*SnapshotResult {
	var out []*SnapshotResult
	for _, r := range c.Results {
		if r.Recommendation.Verdict != sizing.VerdictNoChange {
			out = append(out, r)
		}
	}
	return out
}

// PrintSummary prints a summary of all cluster members
func (c *ClusterResult) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n=== Aurora Cluster Summary ===\n")
	fmt.Fprintf(w, "Cluster: %s\n", c.ClusterID)
	fmt.Fprintf(w, "Total Instances: %d\n", c.TotalInstances)
	fmt.Fprintf(w, "Analyzed: %d\n", c.AnalyzedInstances)

	failed := make([]string, 0, len(c.Failures))
	for id := range c.Failures {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "  ✗ %s: %s\n", id, c.Failures[id])
	}

	resizable := c.Resizable()
	fmt.Fprintf(w, "Instances Needing Resize: %d\n\n", len(resizable))
	if len(resizable) == 0 {
		fmt.Fprintln(w, "No instances require resizing at this time.")
		return
	}

	for _, op := range c.ResizePlan().Operations {
		if op.TargetClass == "" {
			fmt.Fprintf(w, "  - %s (%s): %s, no class fits\n", op.Instance, op.Role, op.CurrentClass)
			continue
		}
		fmt.Fprintf(w, "  - %s (%s): %s → %s [%s]\n", op.Instance, op.Role, op.CurrentClass, op.TargetClass, op.Direction)
		if op.PriceDeltaPct != nil {
			fmt.Fprintf(w, "    Price change: %+.1f%%\n", *op.PriceDeltaPct)
		}
	}
}

// ResizeOperation is a single class change in a resize plan
type ResizeOperation struct {
	Instance      string                `json:"instance"`
	Role          config.Role           `json:"role"`
	CurrentClass  string                `json:"current_class"`
	TargetClass   string                `json:"target_class,omitempty"`
	Direction     config.ScaleDirection `json:"direction,omitempty"`
	PriceDeltaPct *float64              `json:"price_delta_pct,omitempty"`
	Reason        string                `json:"reason"`
	Priority      int                   `json:"priority"`
}

// ResizePlan is an ordered plan of class changes
type ResizePlan struct {
	Operations []ResizeOperation `json:"operations"`
}

// ResizePlan orders the cluster's resize operations by priority
func (c *ClusterResult) ResizePlan() *ResizePlan {
	resizable := c.Resizable()
	plan := &ResizePlan{Operations: make([]ResizeOperation, 0, len(resizable))}

	for _, r := range resizable {
		op := ResizeOperation{
			Instance:     r.Instance.ID,
			Role:         r.Instance.Role,
			CurrentClass: r.Instance.Class,
			Reason:       r.Recommendation.Note,
			Priority:     resizePriority(r),
		}
		if top := r.Recommendation.Top(); top != nil {
			op.TargetClass = top.Class
			op.Direction = top.Direction
			op.PriceDeltaPct = top.PriceDeltaPct
		}
		plan.Operations = append(plan.Operations, op)
	}

	sort.SliceStable(plan.Operations, func(i, j int) bool {
		return plan.Operations[i].Priority > plan.Operations[j].Priority
	})
	return plan
}

// resizePriority ranks under-provisioned members first and readers before the writer
func resizePriority(r *SnapshotResult) int {
	priority := 0

	if r.Recommendation.Verdict == sizing.VerdictInsufficientCapacity {
		priority += 50
	}

	if r.NetworkCeiling.PctOfCeiling > 90 || r.Utilization.CPUP95 > 90 {
		priority += 30
	} else if r.NetworkCeiling.PctOfCeiling > 80 || r.Utilization.CPUP95 > 80 {
		priority += 20
	}

	if top := r.Recommendation.Top(); top != nil && top.Direction == config.ScaleUp {
		priority += 20
	}

	if r.Instance.Role == config.RoleReader {
		priority += 10
	}
	return priority
}
