// Package exclusions filters system and protected data extensions out of
// analysis input before any scanning happens.
package exclusions

import (
	"strings"

	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
)

// Checker matches data-extension keys against protected prefixes
// (e.g. "_" system tables, "QueryStudioResults").
type Checker struct {
	prefixes []string
	logger   *zap.Logger
}

// NewChecker normalizes the configured prefixes.
func NewChecker(prefixes []string, logger *zap.Logger) *Checker {
	normalized := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized exclusion checker", zap.Strings("prefixes", normalized))
	}
	return &Checker{prefixes: normalized, logger: logger}
}

// IsExcluded reports whether the data extension's key or name starts with a
// protected prefix.
func (c *Checker) IsExcluded(de core.DataExtension) bool {
	for _, candidate := range []string{de.CustomerKey, de.Name} {
		if candidate == "" {
			continue
		}
		lower := strings.ToLower(candidate)
		for _, prefix := range c.prefixes {
			if strings.HasPrefix(lower, prefix) {
				if c.logger != nil {
					c.logger.Debug("Data extension excluded from audit",
						zap.String("customer_key", de.CustomerKey),
						zap.String("prefix", prefix))
				}
				return true
			}
		}
	}
	return false
}

// Filter splits the input into audited and excluded data extensions,
// preserving order.
func (c *Checker) Filter(des []core.DataExtension) (kept, excluded []core.DataExtension) {
	for _, de := range des {
		if c.IsExcluded(de) {
			excluded = append(excluded, de)
		} else {
			kept = append(kept, de)
		}
	}
	return kept, excluded
}
