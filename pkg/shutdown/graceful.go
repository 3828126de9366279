package shutdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/CodeMonkeyCybersecurity/idorenum/internal/logger"
)

// Handler runs cleanup functions once, in reverse registration order.
type Handler struct {
	shutdownFuncs []func() error
	mu            sync.Mutex
	done          bool
	logger        *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		shutdownFuncs: make([]func() error, 0),
		logger:        log.WithComponent("shutdown"),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (h *Handler) RegisterShutdownFunc(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFuncs = append(h.shutdownFuncs, fn)
}

// Shutdown executes all registered shutdown functions. Later calls are no-ops.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		return
	}
	h.done = true

	for i := len(h.shutdownFuncs) - 1; i >= 0; i-- {
		if err := h.shutdownFuncs[i](); err != nil {
			h.logger.Warnw("Error during shutdown", "error", err)
		}
	}
}

// ShutdownWithTimeout executes shutdown with a timeout
func (h *Handler) ShutdownWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})

	go func() {
		defer close(done)
		h.Shutdown()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
