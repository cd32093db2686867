package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commerce-core/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := map[string]struct {
		project string
		name    string
		want    string
	}{
		"bare id":         {"acme", "orders", "projects/acme/topics/orders"},
		"qualified":       {"acme", "projects/other/topics/orders", "projects/other/topics/orders"},
		"blank":           {"acme", "  ", ""},
		"missing project": {"", "orders", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, TopicResourceName(tc.project, tc.name))
		})
	}
}

func TestConfiguredTopicsDeduplicates(t *testing.T) {
	topics := configuredTopics("acme", config.PubSubConfig{
		DomainTopic:    "events",
		InventoryTopic: "projects/acme/topics/events",
	})
	assert.Equal(t, []string{"projects/acme/topics/events"}, topics)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{DomainTopic: "events"}, nil)
	require.ErrorIs(t, err, ErrProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "acme"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, ErrNoTopics)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("events"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
