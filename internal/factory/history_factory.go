package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/adapters/history"
	"github.com/aali87/sfmc-scripting-sub000/internal/config"
	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// HistoryFactory creates the optional run-history store.
type HistoryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHistoryFactory creates a new history factory.
func NewHistoryFactory(cfg *config.Config, logger *zap.Logger) *HistoryFactory {
	return &HistoryFactory{cfg: cfg, logger: logger}
}

// CreateHistoryStore returns nil when history is disabled.
func (f *HistoryFactory) CreateHistoryStore() (core.HistoryStore, error) {
	h := f.cfg.GetHistory()
	if !h.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(h.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return history.NewSQLiteStore(h.SQLitePath, f.logger)
}
