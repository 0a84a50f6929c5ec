package daemon

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// osSignalHandler closes its channel on SIGINT or SIGTERM
type osSignalHandler struct {
	shutdownCh chan struct{}
	log        *logrus.Entry
}

// NewOSSignalHandler creates a new OS signal handler
func NewOSSignalHandler(log *logrus.Entry) SignalHandler {
	return &osSignalHandler{
		shutdownCh: make(chan struct{}),
		log:        log.WithField("component", "signals"),
	}
}

// WaitForShutdown returns a channel that will be closed when shutdown is requested
func (h *osSignalHandler) WaitForShutdown() <-chan struct{} {
	go h.handleSignals()
	return h.shutdownCh
}

func (h *osSignalHandler) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	h.log.WithField("signal", sig.String()).Info("Received signal, initiating graceful shutdown")
	close(h.shutdownCh)
}
