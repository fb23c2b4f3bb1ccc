package sessionmgr

import (
	"context"
	"time"
)

// StartAutoSave launches the background ticker loop that saves the current
// snapshot every autoSaveInterval, but only when dirty. The loop stops when
// ctx is cancelled or Stop is called.
func (m *Manager) StartAutoSave(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.stopAutoSave = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.autoSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Save(ctx); err != nil {
					m.log.Warn("auto-save failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the auto-save loop and waits for it to exit, performing a
// final save if the current snapshot is dirty. The current-session marker
// is removed afterwards: its absence on the next start-up means this
// process shut down cleanly.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	cancel := m.stopAutoSave
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	if err := m.Save(ctx); err != nil {
		m.log.Warn("final save on stop failed", "error", err)
	}
	if err := m.removeCurrentMarker(); err != nil {
		m.log.Warn("remove current-session marker failed", "error", err)
	}
}
