package services

import (
	"context"
)

// Shutdown stops the HTTP server, waits for the background runners until
// ctx expires, then closes pubsub and storage.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.storageFactory != nil {
		defer func() {
			if err := m.storageFactory.Close(); err != nil {
				m.logger.Error("Error closing storage", "error", err)
			}
		}()
	}

	if m.server != nil && m.serverStarted {
		if err := m.server.Stop(ctx); err != nil {
			m.logger.Error("Error stopping HTTP server", "error", err)
		}
	}

	m.logger.Info("Waiting for background tasks to finish...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Background tasks finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
	}

	for _, pub := range m.publishers {
		_ = pub.Close()
	}
	if m.pubsubProvider != nil {
		if err := m.pubsubProvider.Close(); err != nil {
			m.logger.Error("Error closing pubsub provider", "error", err)
		}
	}
}
