package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/config"
	"github.com/ifuryst/inkwell/internal/models"
)

func TestNewPublisherManager(t *testing.T) {
	m := NewPublisherManager(&config.PublisherConfig{WordPress: config.WordPressConfig{Enabled: true, Timeout: "5s"}}, zap.NewNop())
	p, err := m.GetPublisher(models.PlatformWordPress)
	assert.NoError(t, err)
	assert.Equal(t, models.PlatformWordPress, p.GetPlatformName())

	m = NewPublisherManager(&config.PublisherConfig{}, zap.NewNop())
	assert.Empty(t, m.GetAvailablePublishers())
}
