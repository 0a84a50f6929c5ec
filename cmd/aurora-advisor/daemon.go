package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fraser-isbester/aurora-advisor/pkg/daemon"
)

var (
	interval          time.Duration
	httpPort          int
	enableMetrics     bool
	serverlessEnabled bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Re-evaluate instances on an interval and export the results",
	Long: `Run continuously, snapshotting every configured instance each interval.
The latest results are served on /status and as Prometheus metrics on /metrics.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between advisory cycles")
	daemonCmd.Flags().IntVar(&httpPort, "port", 8080, "Port for health checks and metrics")
	daemonCmd.Flags().BoolVar(&enableMetrics, "metrics", true, "Enable Prometheus metrics")
	daemonCmd.Flags().BoolVar(&serverlessEnabled, "serverless", false, "Also estimate serverless capacity each cycle")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	advisor, log, err := newAdvisor(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	d, err := daemon.NewDaemon(advisor, advisor.Config(), &daemon.DaemonConfig{
		Interval:      interval,
		HTTPPort:      httpPort,
		EnableMetrics: enableMetrics,
		Serverless:    serverlessEnabled,
	}, log)
	if err != nil {
		return err
	}
	return d.Start()
}
