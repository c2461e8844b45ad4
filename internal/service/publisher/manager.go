package publisher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/models"
)

// Manager routes publish calls to the publisher of a site's platform.
// Publishers are registered once at startup; the map is read-only afterwards.
type Manager struct {
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewPublishManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

func (m *Manager) RegisterPublisher(publisher Publisher) error {
	platformName := publisher.GetPlatformName()
	if _, exists := m.publishers[platformName]; exists {
		return fmt.Errorf("publisher for platform %s already registered", platformName)
	}

	m.publishers[platformName] = publisher
	m.logger.Info("Publisher registered", zap.String("platform", platformName))
	return nil
}

func (m *Manager) GetPublisher(platformName string) (Publisher, error) {
	publisher, exists := m.publishers[platformName]
	if !exists {
		return nil, fmt.Errorf("publisher for platform %s not found", platformName)
	}
	return publisher, nil
}

func (m *Manager) GetAvailablePublishers() []Publisher {
	var publishers []Publisher
	for _, publisher := range m.publishers {
		publishers = append(publishers, publisher)
	}
	return publishers
}

// ConfigForSite builds the per-call config of a site.
func ConfigForSite(site *models.Site) PublishConfig {
	platform := site.Platform
	if platform == "" {
		platform = models.PlatformWordPress
	}
	return PublishConfig{
		PlatformName: platform,
		Enabled:      site.Enabled,
		Config: map[string]string{
			"base_url":     strings.TrimRight(strings.TrimSpace(site.URL), "/"),
			"username":     site.Username,
			"app_password": site.AppPassword,
		},
	}
}

func (m *Manager) resolve(site *models.Site) (Publisher, PublishConfig, error) {
	config := ConfigForSite(site)
	if !config.Enabled {
		return nil, config, fmt.Errorf("platform %s is disabled for site %d", config.PlatformName, site.ID)
	}

	publisher, err := m.GetPublisher(config.PlatformName)
	if err != nil {
		return nil, config, err
	}
	if err := publisher.ValidateConfig(config); err != nil {
		return nil, config, fmt.Errorf("invalid config for site %d: %w", site.ID, err)
	}
	return publisher, config, nil
}

// UploadImage uploads one media resource to the site.
func (m *Manager) UploadImage(ctx context.Context, site *models.Site, resource Resource) (*Resource, error) {
	publisher, config, err := m.resolve(site)
	if err != nil {
		return nil, err
	}

	uploaded, err := publisher.UploadResource(ctx, resource, config)
	if err != nil {
		m.logger.Warn("Failed to upload resource",
			zap.String("platform", config.PlatformName),
			zap.Uint("site_id", site.ID),
			zap.String("filename", resource.Filename),
			zap.Error(err))
		return nil, err
	}
	return uploaded, nil
}

// Publish sends content to the site's platform.
func (m *Manager) Publish(ctx context.Context, site *models.Site, content PublishContent) (*PublishResult, error) {
	publisher, config, err := m.resolve(site)
	if err != nil {
		return nil, err
	}

	result, err := publisher.PublishDirect(ctx, content, config)
	if err != nil {
		m.logger.Error("Failed to publish content",
			zap.String("platform", config.PlatformName),
			zap.Uint("site_id", site.ID),
			zap.Error(err))
		return nil, err
	}
	if !result.Success {
		if result.Error != nil {
			return nil, result.Error
		}
		return nil, fmt.Errorf("publish to %s was not successful", config.PlatformName)
	}

	m.logger.Info("Publishing completed",
		zap.String("platform", config.PlatformName),
		zap.Uint("site_id", site.ID),
		zap.String("publish_id", result.PublishID),
		zap.String("url", result.URL))
	return result, nil
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
