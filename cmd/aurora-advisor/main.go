package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fraser-isbester/aurora-advisor/pkg/analyzer"
	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
)

var (
	region        string
	instances     []string
	clusterID     string
	window        time.Duration
	endTime       string
	period        time.Duration
	reservePct    float64
	basis         string
	profile       string
	configFile    string
	output        string
	priceCacheDir string
	priceMaxAge   time.Duration
	logLevel      string
	logFormat     string
)

var rootCmd = &cobra.Command{
	Use:   "aurora-advisor",
	Short: "Workload characterization and sizing for Amazon Aurora instances",
	Long: `aurora-advisor reads Performance Insights and CloudWatch history for Aurora
instances, characterizes the workload, and recommends the instance class that
fits it with the requested headroom.

It can also estimate the serverless capacity a provisioned instance would have
needed over the same window and compare the cost of both configurations.`,
	SilenceUsage: true,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Characterize instances and recommend an instance class",
	RunE:  runSnapshot,
}

var serverlessCmd = &cobra.Command{
	Use:   "serverless",
	Short: "Estimate serverless capacity and cost for provisioned instances",
	RunE:  runServerless,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&region, "region", "", "AWS region (uses the SDK default chain if not specified)")
	flags.StringSliceVar(&instances, "instance", []string{}, "Instance identifier(s) to evaluate")
	flags.DurationVar(&window, "window", 0, "Evaluation window length (default 168h)")
	flags.StringVar(&endTime, "end", "", "Window end as RFC 3339 (default now)")
	flags.DurationVar(&period, "period", 0, "Sample period: 1s, 1m, 5m, 1h or 24h (default 1m)")
	flags.Float64Var(&reservePct, "reserve", 0, "Headroom percentage added to demand (default 15)")
	flags.StringVar(&basis, "basis", "", "Demand basis: max or 2sd (default max)")
	flags.StringVar(&profile, "profile", "default", "Sizing profile (default, conservative, aggressive)")
	flags.StringVar(&configFile, "config", "", "YAML configuration file")
	flags.StringVar(&output, "output", "table", "Output format (table, json)")
	flags.StringVar(&priceCacheDir, "price-cache-dir", "", "Directory for cached price lists")
	flags.DurationVar(&priceMaxAge, "price-max-age", 0, "Age after which cached price lists are refreshed")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	snapshotCmd.Flags().StringVar(&clusterID, "cluster", "", "Evaluate every provisioned member of this cluster")

	rootCmd.AddCommand(snapshotCmd, serverlessCmd, daemonCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes to stderr so stdout carries only results
func newLogger() (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch logFormat {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", logFormat)
	}
	return logrus.NewEntry(logger).WithField("service", "aurora-advisor"), nil
}

// buildConfig layers defaults, the config file, the profile and explicit flags
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyProfile(profile); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("region") {
		cfg.Region = region
	}
	if flags.Changed("instance") {
		cfg.Instances = instances
	}
	if flags.Changed("window") {
		cfg.Window = window
	}
	if flags.Changed("end") {
		end, err := time.Parse(time.RFC3339, endTime)
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		cfg.End = end
	}
	if flags.Changed("period") {
		cfg.Period = period
	}
	if flags.Changed("reserve") {
		cfg.ReservePct = reservePct
	}
	if flags.Changed("basis") {
		cfg.Basis = config.Basis(basis)
	}
	if flags.Changed("price-cache-dir") {
		cfg.PriceCacheDir = priceCacheDir
	}
	if flags.Changed("price-max-age") {
		cfg.PriceMaxAge = priceMaxAge
	}

	if output != "table" && output != "json" {
		return nil, fmt.Errorf("invalid output format: %s (must be 'table' or 'json')", output)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newAdvisor(ctx context.Context, cmd *cobra.Command) (*analyzer.Advisor, *logrus.Entry, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	advisor, err := analyzer.NewAWSAdvisor(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create advisor: %w", err)
	}
	return advisor, log, nil
}

// OutputResult is one row of the multi-instance summary
type OutputResult struct {
	Instance         string         `json:"instance"`
	EvaluationID     string         `json:"evaluation_id,omitempty"`
	CurrentClass     string         `json:"current_class,omitempty"`
	Verdict          sizing.Verdict `json:"verdict,omitempty"`
	RecommendedClass string         `json:"recommended_class,omitempty"`
	PriceDeltaPct    *float64       `json:"price_delta_pct,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// OutputSummary is the JSON document written for snapshot runs
type OutputSummary struct {
	Region            string                     `json:"region"`
	ClusterID         string                     `json:"cluster_id,omitempty"`
	TotalInstances    int                        `json:"total_instances"`
	AnalyzedInstances int                        `json:"analyzed_instances"`
	Results           []OutputResult             `json:"results"`
	Snapshots         []*analyzer.SnapshotResult `json:"snapshots"`
	Plan              *analyzer.ResizePlan       `json:"resize_plan,omitempty"`
	Profile           string                     `json:"profile"`
	Timestamp         time.Time                  `json:"timestamp"`
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	advisor, log, err := newAdvisor(ctx, cmd)
	if err != nil {
		return err
	}
	cfg := advisor.Config()

	var cluster *analyzer.ClusterResult
	if clusterID != "" {
		log.WithField("cluster", clusterID).Info("Evaluating cluster members")
		cluster, err = advisor.SnapshotCluster(ctx, clusterID, time.Now())
		if err != nil {
			return err
		}
	} else {
		if len(cfg.Instances) == 0 {
			return fmt.Errorf("at least one --instance or --cluster is required")
		}
		cluster = snapshotInstances(ctx, advisor, cfg.Instances, log)
	}

	if err := writeSnapshots(os.Stdout, cfg, cluster); err != nil {
		return err
	}
	if len(cluster.Failures) > 0 {
		return fmt.Errorf("%d of %d instances failed", len(cluster.Failures), cluster.TotalInstances)
	}
	return nil
}

// snapshotInstances evaluates each named instance independently
func snapshotInstances(ctx context.Context, advisor *analyzer.Advisor, ids []string, log *logrus.Entry) *analyzer.ClusterResult {
	result := &analyzer.ClusterResult{
		Failures:       make(map[string]string),
		TotalInstances: len(ids),
	}
	for _, id := range ids {
		snap, err := advisor.Snapshot(ctx, advisor.NewEvaluation(id, time.Now()))
		if err != nil {
			log.WithError(err).WithField("instance", id).Error("Snapshot failed")
			result.Failures[id] = err.Error()
			continue
		}
		result.Results = append(result.Results, snap)
		result.AnalyzedInstances++
	}
	return result
}

func writeSnapshots(w io.Writer, cfg *config.Config, cluster *analyzer.ClusterResult) error {
	var rows []OutputResult
	for _, r := range cluster.Results {
		row := OutputResult{
			Instance:     r.Instance.ID,
			EvaluationID: r.Evaluation.ID,
			CurrentClass: r.Instance.Class,
			Verdict:      r.Recommendation.Verdict,
		}
		if top := r.Recommendation.Top(); top != nil {
			row.RecommendedClass = top.Class
			row.PriceDeltaPct = top.PriceDeltaPct
		}
		rows = append(rows, row)
	}
	for _, id := range slices.Sorted(maps.Keys(cluster.Failures)) {
		rows = append(rows, OutputResult{Instance: id, Error: cluster.Failures[id]})
	}

	if output == "json" {
		summary := OutputSummary{
			Region: cfg.Region, ClusterID: cluster.ClusterID,
			TotalInstances: cluster.TotalInstances, AnalyzedInstances: cluster.AnalyzedInstances,
			Results: rows, Snapshots: cluster.Results, Profile: profile, Timestamp: time.Now(),
		}
		if cluster.ClusterID != "" {
			summary.Plan = cluster.ResizePlan()
		}
		return writeJSON(w, summary)
	}

	for _, r := range cluster.Results {
		r.PrintReport(w)
	}
	if cluster.ClusterID != "" {
		cluster.PrintSummary(w)
	}

	fmt.Fprintln(w)
	headers := []string{"Instance", "Current Class", "Verdict", "Recommended", "Price Δ", "Error"}
	var table [][]string
	for _, row := range rows {
		delta := ""
		if row.PriceDeltaPct != nil {
			delta = fmt.Sprintf("%+.1f%%", *row.PriceDeltaPct)
		}
		table = append(table, []string{row.Instance, row.CurrentClass, string(row.Verdict), row.RecommendedClass, delta, row.Error})
	}
	printTable(w, headers, table)
	return nil
}

func runServerless(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	advisor, log, err := newAdvisor(ctx, cmd)
	if err != nil {
		return err
	}
	ids := advisor.Config().Instances
	if len(ids) == 0 {
		return fmt.Errorf("at least one --instance is required")
	}

	var results []*analyzer.ServerlessResult
	failed := 0
	for _, id := range ids {
		est, err := advisor.ServerlessEstimate(ctx, advisor.NewEvaluation(id, time.Now()))
		if err != nil {
			log.WithError(err).WithField("instance", id).Error("Serverless estimate failed")
			failed++
			continue
		}
		results = append(results, est)
	}

	if output == "json" {
		if err := writeJSON(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			r.PrintReport(os.Stdout)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d instances failed", failed, len(ids))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len([]rune(header))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	printRow(w, headers, widths)
	printSeparator(w, widths)
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, data []string, widths []int) {
	row := "| "
	for i, cell := range data {
		if i < len(widths) {
			row += fmt.Sprintf("%-*s | ", widths[i], cell)
		}
	}
	fmt.Fprintln(w, row)
}

func printSeparator(w io.Writer, widths []int) {
	row := "|-"
	for _, width := range widths {
		row += strings.Repeat("-", width) + "-|-"
	}
	fmt.Fprintln(w, row)
}
