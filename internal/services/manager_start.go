package services

import (
	"context"
)

// Start launches the HTTP server and every background runner. They stop
// when bgCtx is canceled; call Shutdown afterwards to wait for them.
func (m *Manager) Start(bgCtx context.Context) {
	if m.server != nil {
		m.serverStarted = true
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.logger.Info("HTTP server listening", "host", m.cfg.Server.Host, "port", m.cfg.Server.HTTPPort)
			if err := m.server.Start(bgCtx); err != nil {
				m.logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	for i, r := range m.runners {
		m.wg.Add(1)
		go func(r runner, name string) {
			defer m.wg.Done()
			m.logger.Info("Starting background service", "service", name)
			if err := r.Run(bgCtx); err != nil {
				m.logger.Error("Background service stopped with error", "service", name, "error", err)
			}
		}(r, m.runnerNames[i])
	}
}
