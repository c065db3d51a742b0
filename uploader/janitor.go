package uploader

import (
	"context"
	"os"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const janitorStartupDelay = 10 * time.Second

// StartJanitor removes expired or corrupt upload sessions: a one-shot
// sweep shortly after startup, then one per interval. Removal is
// best-effort.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		startup := time.NewTimer(janitorStartupDelay)
		defer startup.Stop()
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			m.CleanupExpired(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired sweeps the staging directory once and returns how many
// sessions were removed.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	logger := logutil.GetLogger(ctx)
	ents, err := os.ReadDir(m.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("list upload temp dir failed", zap.Error(err))
		}
		return 0
	}
	now := time.Now().UnixMilli()
	removed := 0
	for _, ent := range ents {
		if !ent.IsDir() {
			continue
		}
		meta, err := m.loadMeta(ent.Name())
		expired := err != nil || now-meta.CreatedAt > m.expiry.Milliseconds()
		if !expired {
			continue
		}
		if err := os.RemoveAll(m.sessionDir(ent.Name())); err != nil {
			logger.Warn("remove expired upload failed", zap.String("upload_id", ent.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("upload janitor swept sessions", zap.Int("removed", removed))
	}
	return removed
}
