package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/lensdist-backend/pkg/config"
	"github.com/angelmondragon/lensdist-backend/pkg/gcpauth"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

// Role says which side of the ledger event stream a process sits on, and so
// which resource NewClient and Ping verify.
type Role int

const (
	RolePublisher Role = iota + 1
	RoleSubscriber
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	}
	return "unknown"
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errTopicRequired        = errors.New("pubsub ledger topic is required")
	errSubscriptionRequired = errors.New("pubsub ledger subscription is required")
	errClientNotInitialized = errors.New("pubsub client not initialized")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
}

// NewClient dials Pub/Sub and fails fast if the resource the role depends on
// is missing. Topics and subscriptions are provisioned outside the service.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if err := requiredResource(cfg, role); err != nil {
		return nil, err
	}

	raw, err := pubsub.NewClient(ctx, projectID, gcpauth.Options(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: projectID, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"role": role.String()}), "pubsub client initialized")
	}
	return c, nil
}

func requiredResource(cfg config.PubSubConfig, role Role) error {
	switch role {
	case RolePublisher:
		if strings.TrimSpace(cfg.LedgerTopic) == "" {
			return errTopicRequired
		}
	case RoleSubscriber:
		if strings.TrimSpace(cfg.LedgerSubscription) == "" {
			return errSubscriptionRequired
		}
	default:
		return fmt.Errorf("unknown pubsub role %d", role)
	}
	return nil
}

// Ping checks that the topic (publisher) or subscription (subscriber) exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	var err error
	name := ""
	switch c.role {
	case RolePublisher:
		name = c.resourceName("topics", c.cfg.LedgerTopic)
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	case RoleSubscriber:
		name = c.resourceName("subscriptions", c.cfg.LedgerSubscription)
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	default:
		return fmt.Errorf("unknown pubsub role %d", c.role)
	}
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s does not exist", name)
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", name, err)
	}
	return nil
}

// Publisher returns a handle for a topic ID or full resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.resourceName("topics", topic)
	if name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

// LedgerSubscription returns the subscriber for ledger and order events.
func (c *Client) LedgerSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.resourceName("subscriptions", c.cfg.LedgerSubscription)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName qualifies a bare ID with the client's project. Names that are
// already "projects/<p>/<kind>/<id>" pass through unchanged.
func (c *Client) resourceName(kind, id string) string {
	if c == nil {
		return ""
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + id
}
