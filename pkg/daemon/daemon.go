package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
)

// Daemon re-evaluates the configured instances on a fixed interval
type Daemon struct {
	config        Config
	runner        CycleRunner
	httpServer    HTTPServerInterface
	signalHandler SignalHandler
	log           *logrus.Entry
	startTime     time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// DaemonConfig holds daemon-specific configuration
type DaemonConfig struct {
	Interval      time.Duration // How often to evaluate the instances
	HTTPPort      int           // Port for health checks and metrics
	EnableMetrics bool          // Whether to enable Prometheus metrics
	Serverless    bool          // Whether each cycle also estimates serverless capacity
}

// NewDaemon creates a new daemon around advisor
func NewDaemon(advisor Advisor, cfg *config.Config, daemonCfg *DaemonConfig, log *logrus.Entry) (*Daemon, error) {
	if err := validateConfig(cfg, daemonCfg); err != nil {
		return nil, err
	}

	daemonConfig := NewDaemonConfig(cfg, daemonCfg)

	var metricsReporter MetricsReporter
	if daemonCfg.EnableMetrics {
		metricsReporter = NewPrometheusMetricsReporter()
	} else {
		metricsReporter = NewNoopMetricsReporter()
	}

	runner := NewAdvisoryRunner(advisor, daemonConfig, metricsReporter, log)
	d := newDaemon(daemonConfig, runner, NewOSSignalHandler(log), log)
	d.httpServer = NewHTTPServer(daemonCfg.HTTPPort, d, daemonCfg.EnableMetrics)
	return d, nil
}

func newDaemon(cfg Config, runner CycleRunner, signals SignalHandler, log *logrus.Entry) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:        cfg,
		runner:        runner,
		signalHandler: signals,
		log:           log.WithField("component", "daemon"),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start runs the daemon until a shutdown signal arrives
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDaemonStopped
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"interval":  d.config.GetInterval(),
		"region":    d.config.GetRegion(),
		"instances": len(d.config.GetInstances()),
	}).Info("Starting Aurora advisor daemon")

	if d.httpServer != nil && d.config.GetHTTPPort() > 0 {
		d.wg.Add(1)
		go d.startHTTPServer()
	}

	d.wg.Add(1)
	go d.advisoryLoop()

	select {
	case <-d.signalHandler.WaitForShutdown():
		d.Stop()
	case <-d.ctx.Done():
	}

	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.log.Info("Daemon stopped gracefully")
	return nil
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.log.Info("Initiating graceful shutdown...")
	d.stopped = true
	d.cancel()
}

// advisoryLoop runs an advisory cycle at regular intervals
func (d *Daemon) advisoryLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.GetInterval())
	defer ticker.Stop()

	// Run once immediately on startup
	d.runAdvisoryCycle()

	for {
		select {
		case <-ticker.C:
			d.runAdvisoryCycle()
		case <-d.ctx.Done():
			d.log.Info("Advisory loop stopped")
			return
		}
	}
}

// runAdvisoryCycle executes a single cycle and keeps going on failure
func (d *Daemon) runAdvisoryCycle() {
	err := d.runner.RunCycle(d.ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if IsRecoverable(err) {
		d.log.WithError(err).Warn("Advisory cycle finished with errors")
		return
	}
	d.log.WithError(err).Error("Advisory cycle failed with a non-recoverable error")
}

// startHTTPServer serves health checks and metrics until shutdown
func (d *Daemon) startHTTPServer() {
	defer d.wg.Done()

	go func() {
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.WithError(err).Error("HTTP server error")
		}
	}()

	<-d.ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.log.WithError(err).Error("HTTP server shutdown error")
	}
}

// GetStatus returns the current daemon status
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.Lock()
	running, started := d.running, d.startTime
	d.mu.Unlock()

	cycle := d.runner.Status()
	status := &DaemonStatus{
		Region:     d.config.GetRegion(),
		Interval:   d.config.GetInterval().String(),
		Serverless: d.config.IsServerlessEnabled(),
		HTTPPort:   d.config.GetHTTPPort(),
		Running:    running,
		StartTime:  started,
		Cycles:     cycle.Cycles,
		LastCycle:  cycle.LastCycle,
		Instances:  cycle.Instances,
	}
	if !cycle.LastCycle.IsZero() {
		status.NextCycle = cycle.LastCycle.Add(d.config.GetInterval())
	}
	return status
}

// DaemonStatus represents the current status of the daemon
type DaemonStatus struct {
	Region     string                    `json:"region"`
	Interval   string                    `json:"interval"`
	Serverless bool                      `json:"serverless"`
	HTTPPort   int                       `json:"http_port"`
	Running    bool                      `json:"running"`
	StartTime  time.Time                 `json:"start_time"`
	Cycles     int                       `json:"cycles"`
	LastCycle  time.Time                 `json:"last_cycle,omitempty"`
	NextCycle  time.Time                 `json:"next_cycle,omitempty"`
	Instances  map[string]InstanceStatus `json:"instances"`
}
