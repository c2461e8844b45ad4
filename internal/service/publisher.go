package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/config"
	"github.com/ifuryst/inkwell/internal/service/publisher"
	"github.com/ifuryst/inkwell/internal/service/publisher/wordpress"
)

// NewPublisherManager registers every enabled platform adapter.
func NewPublisherManager(cfg *config.PublisherConfig, logger *zap.Logger) *publisher.Manager {
	manager := publisher.NewPublishManager(logger)

	if cfg.WordPress.Enabled {
		timeout := config.Duration(cfg.WordPress.Timeout, 60*time.Second)
		if err := manager.RegisterPublisher(wordpress.NewWordPressPublisher(logger, timeout)); err != nil {
			logger.Error("Failed to register WordPress publisher", zap.Error(err))
		} else {
			logger.Info("WordPress publisher registered", zap.Duration("timeout", timeout))
		}
	}

	return manager
}
