// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	ErrNoTopics          = errors.New("at least one pubsub topic is required")
	ErrTopicMissing      = errors.New("pubsub topic does not exist")
)

// Client caches one publisher per topic. Publishers are created lazily and
// stopped on Close, which flushes anything still buffered.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when a configured topic is missing.
// Topics are provisioned by infrastructure, never created here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	topics := configuredTopics(projectID, cfg)
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		cfg:        cfg,
		topics:     topics,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"topics":     topics,
			"ordered":    cfg.Ordered,
		}), "pubsub client initialized")
	}
	return c, nil
}

func configuredTopics(projectID string, cfg config.PubSubConfig) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range []string{cfg.DomainTopic, cfg.InventoryTopic} {
		full := TopicResourceName(projectID, name)
		if full == "" || seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, full)
	}
	return out
}

// Ping checks every configured topic concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, topic := range c.topics {
		group.Go(func() error {
			_, err := c.client.TopicAdminClient.GetTopic(groupCtx, &pubsubpb.GetTopicRequest{Topic: topic})
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("%w: %s", ErrTopicMissing, topic)
			default:
				return fmt.Errorf("checking topic %s: %w", topic, err)
			}
		})
	}
	return group.Wait()
}

// Publisher returns the cached publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := TopicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.client.Publisher(full)
	pub.EnableMessageOrdering = c.cfg.Ordered
	if c.cfg.DelayThreshold > 0 {
		pub.PublishSettings.DelayThreshold = c.cfg.DelayThreshold
	}
	if c.cfg.CountThreshold > 0 {
		pub.PublishSettings.CountThreshold = c.cfg.CountThreshold
	}
	c.publishers[full] = pub
	return pub
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// TopicResourceName expands a bare topic id into projects/<p>/topics/<id>.
// Names that are already fully qualified pass through.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + n
}
