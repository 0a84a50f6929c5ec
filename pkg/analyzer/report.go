package analyzer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
	"github.com/fraser-isbester/aurora-advisor/pkg/waits"
)

// maxStatementWidth truncates SQL text in table output
const maxStatementWidth = 80

// PrintReport prints a formatted snapshot report
func (r *SnapshotResult) PrintReport(w io.Writer) {
	fmt.Fprintf(w, "\n=== Aurora Instance Snapshot ===\n")
	fmt.Fprintf(w, "Instance: %s\n", r.Instance.ID)
	fmt.Fprintf(w, "Cluster: %s\n", r.Instance.ClusterID)
	fmt.Fprintf(w, "Evaluation: %s\n", r.Evaluation.ID)
	fmt.Fprintf(w, "Window: %s to %s (period %v)\n",
		r.Evaluation.Window.Start.Format(time.RFC3339),
		r.Evaluation.Window.End.Format(time.RFC3339),
		r.Evaluation.Window.Period)
	fmt.Fprintf(w, "Analyzed at: %s\n\n", r.AnalyzedAt.Format(time.RFC3339))

	fmt.Fprintf(w, "Current Configuration:\n")
	fmt.Fprintf(w, "  Class: %s\n", r.Instance.Class)
	fmt.Fprintf(w, "  Engine: %s %s\n", r.Instance.Engine, r.Instance.EngineVersion)
	fmt.Fprintf(w, "  Role: %s\n", r.Instance.Role)
	fmt.Fprintf(w, "  Storage: %s\n", r.Instance.StorageType)
	fmt.Fprintf(w, "  Cluster Members: %d (+%d remote clusters)\n", r.Instance.OtherInstances+1, r.Instance.RemoteClusters)

	fmt.Fprintf(w, "\nUtilization:\n")
	fmt.Fprintf(w, "  Data Points: %d\n", r.Utilization.DataPoints)
	fmt.Fprintf(w, "  CPU: avg %.1f%%, p95 %.1f%%, max %.1f%%\n", r.Utilization.CPUAvg, r.Utilization.CPUP95, r.Utilization.CPUMax)
	fmt.Fprintf(w, "  Connections: avg %.1f, max %.0f\n", r.Utilization.ConnectionsAvg, r.Utilization.ConnectionsMax)
	fmt.Fprintf(w, "  Buffer Cache Hit: %.2f%%\n", r.Utilization.CacheHitAvg)

	fmt.Fprintf(w, "\nDatabase Load:\n")
	fmt.Fprintf(w, "  Average Active Sessions: %.2f\n", r.Waits.AAS)
	fmt.Fprintf(w, "  DB Time: %.0fs\n", r.Waits.DBTimeSeconds)
	for _, e := range r.Waits.Events {
		fmt.Fprintf(w, "    %-40s %8.0fs %6.1f%%\n", e.Event, e.Seconds, e.PctDBTime)
	}

	printContributors(w, "Top SQL", r.Breakdown.SQL)
	printContributors(w, "Top Databases", r.Breakdown.Databases)
	printContributors(w, "Top Users", r.Breakdown.Users)
	printContributors(w, "Top Waits", r.Breakdown.Waits)

	fmt.Fprintf(w, "\nNetwork:\n")
	fmt.Fprintf(w, "  Max: %.2f MB/s, Avg: %.2f MB/s, 2σ: %.2f MB/s\n", r.Network.Max, r.Network.Avg, r.Network.TwoSigma)
	fmt.Fprintf(w, "  Ceiling: %.2f MB/s (%.1f%% used, %.2f MB/s headroom)\n",
		r.NetworkCeiling.CeilingMBps, r.NetworkCeiling.PctOfCeiling, r.NetworkCeiling.HeadroomMBps)
	if r.NetworkCeiling.BaselineMBps != nil && r.NetworkCeiling.PctOfBaseline != nil {
		fmt.Fprintf(w, "  Baseline: %.2f MB/s (%.1f%% used)\n", *r.NetworkCeiling.BaselineMBps, *r.NetworkCeiling.PctOfBaseline)
	}
	if r.Limits.EBSMaxMBps > 0 || r.Limits.EBSMaxIOPS > 0 {
		fmt.Fprintf(w, "  EBS: %.2f MB/s, %d IOPS max (baseline %.2f MB/s, %d IOPS)\n",
			r.Limits.EBSMaxMBps, r.Limits.EBSMaxIOPS, r.Limits.EBSBaselineMBps, r.Limits.EBSBaselineIOPS)
	}
	if r.LocalStorage != nil {
		fmt.Fprintf(w, "  Local Storage: max %.2f MB/s, avg %.2f MB/s\n", r.LocalStorage.Max, r.LocalStorage.Avg)
	}

	if r.Correlation != nil && len(r.Correlation.Clusters) > 0 {
		fmt.Fprintf(w, "\nCorrelated Metrics (threshold %.2f):\n", r.Correlation.Threshold)
		for id := 1; id <= len(r.Correlation.Clusters); id++ {
			fmt.Fprintf(w, "  [%d] %s\n", id, strings.Join(r.Correlation.Clusters[id], ", "))
		}
	}

	fmt.Fprintf(w, "\nWorkload Envelope:\n")
	fmt.Fprintf(w, "  vCPUs: %.2f\n", r.Envelope.VCPUs)
	fmt.Fprintf(w, "  Memory: %.2f GB\n", r.Envelope.MemoryGB)
	fmt.Fprintf(w, "  Network: %.2f MB/s\n", r.Envelope.NetworkMBps)
	fmt.Fprintf(w, "  Local Storage: %.2f MB/s, %.2f GB\n", r.Envelope.LocalStorageMBps, r.Envelope.FilesystemGB)
	fmt.Fprintf(w, "  Connections: %.0f\n", r.Envelope.Connections)

	printRecommendation(w, r.Recommendation)

	warnings := append(append([]string{}, r.Warnings...), r.Recommendation.Warnings...)
	if len(warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, warning := range warnings {
			fmt.Fprintf(w, "  ⚠️  %s\n", warning)
		}
	}
}

func printContributors(w io.Writer, title string, contributors []waits.Contributor) {
	if len(contributors) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, c := range contributors {
		name := c.Name
		if len(name) > maxStatementWidth {
			name = name[:maxStatementWidth-3] + "..."
		}
		name = strings.Join(strings.Fields(name), " ")
		fmt.Fprintf(w, "  %6.2f AAS %5.1f%%  %s\n", c.Load, c.Ratio, name)
	}
}

func printRecommendation(w io.Writer, rec *sizing.Recommendation) {
	fmt.Fprintf(w, "\nSizing Recommendation:\n")
	switch rec.Verdict {
	case sizing.VerdictNoChange:
		fmt.Fprintf(w, "  Action: NONE\n")
		fmt.Fprintf(w, "  %s remains the best fit\n", rec.CurrentClass)
	case sizing.VerdictResize:
		top := rec.Top()
		fmt.Fprintf(w, "  Action: RESIZE\n")
		fmt.Fprintf(w, "  Current Class: %s\n", rec.CurrentClass)
		fmt.Fprintf(w, "  Recommended Class: %s (%s)\n", top.Class, top.Direction)
		if top.PriceDeltaPct != nil {
			fmt.Fprintf(w, "  Price Change: %+.1f%%\n", *top.PriceDeltaPct)
		}
	case sizing.VerdictInsufficientCapacity:
		fmt.Fprintf(w, "  Action: NONE FITS\n")
		fmt.Fprintf(w, "  %s\n", rec.Note)
	}

	if len(rec.Candidates) > 0 {
		fmt.Fprintf(w, "\n  %-22s %8s %6s %9s %9s %10s\n", "Class", "Score", "vCPU", "Mem GB", "Net MB/s", "Price Δ")
		for _, c := range rec.Candidates {
			delta := "n/a"
			if c.PriceDeltaPct != nil {
				delta = fmt.Sprintf("%+.1f%%", *c.PriceDeltaPct)
			}
			fmt.Fprintf(w, "  %-22s %8.2f %6d %9.1f %9.1f %10s\n",
				c.Class, c.Score, c.VCPUs, c.MemoryGB, c.NetworkLimitMBps(), delta)
		}
	}
	if len(rec.Rejected) > 0 {
		fmt.Fprintf(w, "\n  Rejected: %d classes\n", len(rec.Rejected))
	}
}

// PrintReport prints a formatted serverless estimate report
func (r *ServerlessResult) PrintReport(w io.Writer) {
	fmt.Fprintf(w, "\n=== Aurora Serverless Estimate ===\n")
	fmt.Fprintf(w, "Instance: %s (%s)\n", r.Instance.ID, r.Instance.Class)
	fmt.Fprintf(w, "Evaluation: %s\n", r.Evaluation.ID)
	fmt.Fprintf(w, "Window: %s to %s\n\n",
		r.Evaluation.Window.Start.Format(time.RFC3339),
		r.Evaluation.Window.End.Format(time.RFC3339))

	fmt.Fprintf(w, "Capacity:\n")
	fmt.Fprintf(w, "  Average: %.2f ACUs (σ %.2f)\n", r.Estimate.Average, r.Estimate.StdDev)
	fmt.Fprintf(w, "  Suggested Min: %.1f ACUs\n", r.Estimate.SuggestedMinACUs)
	fmt.Fprintf(w, "  Suggested Max: %.1f ACUs (avg+σ: %.1f)\n", r.Estimate.SuggestedMaxACUs, r.Estimate.SuggestedMaxAvgStd)

	fmt.Fprintf(w, "\nCost over %.1f hours:\n", r.Cost.Hours)
	fmt.Fprintf(w, "  Serverless: $%s (%s ACU-hours)\n", r.Cost.ServerlessCost.StringFixed(2), r.Cost.ACUHours.StringFixed(2))
	for _, t := range r.Cost.Tiers {
		fmt.Fprintf(w, "  %-28s $%10s  serverless %+.1f%%\n", t.Term, t.ProvisionedCost.StringFixed(2), t.DeltaPct)
	}

	if len(r.Storage) > 0 {
		fmt.Fprintf(w, "\nCluster Storage Configuration:\n")
		fmt.Fprintf(w, "  %-28s %12s %12s %9s\n", "Term", "Standard", "I/O-Opt", "Δ")
		for _, t := range r.Storage {
			fmt.Fprintf(w, "  %-28s %12s %12s %+8.1f%%\n",
				t.Term, "$"+t.TotalStandard.StringFixed(2), "$"+t.TotalIOOpt.StringFixed(2), t.DeltaPct)
		}
	}
}
