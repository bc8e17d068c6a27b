package websocket

import (
	"time"

	"go.uber.org/zap"
)

const (
	// sessionIdleTimeout bounds how long a connected widget may stay silent
	// before its socket is reaped. The ping/pong keepalive only proves the
	// transport is up, not that anyone is still there.
	sessionIdleTimeout = 30 * time.Minute

	reapInterval = 5 * time.Minute
)

// SessionCleanupService closes widget connections that have gone idle.
type SessionCleanupService struct {
	hub      *Hub
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewSessionCleanupService creates a cleanup service for the hub.
func NewSessionCleanupService(hub *Hub, logger *zap.Logger) *SessionCleanupService {
	return &SessionCleanupService{
		hub:      hub,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process.
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("session cleanup service started")
}

// Stop gracefully stops the cleanup service.
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup closes the connections of clients idle beyond the timeout. The
// read pump's teardown path handles the rest.
func (s *SessionCleanupService) runCleanup() {
	cutoff := time.Now().Add(-sessionIdleTimeout)

	s.hub.mu.RLock()
	var stale []*Client
	for client := range s.hub.clients {
		if client.idleSince().Before(cutoff) {
			stale = append(stale, client)
		}
	}
	s.hub.mu.RUnlock()

	for _, client := range stale {
		s.logger.Info("closing idle widget connection",
			zap.String("remoteAddr", client.conn.RemoteAddr().String()))
		client.conn.Close()
	}
}
