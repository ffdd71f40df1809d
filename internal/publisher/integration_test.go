//go:build integration

package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"wp_syncer/internal/domain"
	"wp_syncer/internal/testutil"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "wp-sync-" + name,
		RoutingKey: "post." + name,
		QueueName:  "wp-sync-posts-" + name,
	}
}

func testPost(sourceID int64, slug string) *domain.Post {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Post{
		ID:                 sourceID + 100,
		Title:              "The Haunting",
		Content:            "It began at night.",
		Slug:               slug,
		ThemeCategory:      "supernatural",
		ReadingTimeMinutes: 2,
		MatureContent:      true,
		Metadata: domain.PostMetadata{
			SourceID:    sourceID,
			SourceSlug:  slug,
			Categories:  []int64{3, 5},
			PublishedAt: now,
			ModifiedAt:  now,
			Provenance:  domain.Provenance,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connect"), testutil.DiscardLogger())
	s.NoError(err)
	s.NotNil(pub)

	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishCreated() {
	cfg := s.config("created")
	pub, err := NewRabbitMQ(cfg, testutil.DiscardLogger())
	s.Require().NoError(err)
	defer pub.Close()

	s.NoError(pub.Publish(s.ctx, testPost(42, "the-haunting"), domain.ActionCreated))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal("post.created", msg.Type)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received PostMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(domain.ActionCreated, received.Action)
	s.Equal(int64(42), received.Post.Metadata.SourceID)
	s.Equal("the-haunting", received.Post.Slug)
	s.Equal([]int64{3, 5}, received.Post.Metadata.Categories)
	s.True(received.Post.MatureContent)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishUpdated() {
	cfg := s.config("updated")
	pub, err := NewRabbitMQ(cfg, testutil.DiscardLogger())
	s.Require().NoError(err)
	defer pub.Close()

	s.NoError(pub.Publish(s.ctx, testPost(43, "the-haunting-1"), domain.ActionUpdated))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received PostMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(domain.ActionUpdated, received.Action)
	s.Equal("the-haunting-1", received.Post.Slug)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
