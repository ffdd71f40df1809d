package publisher

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp_syncer/internal/domain"
)

func TestEncodeMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	post := &domain.Post{
		ID:    7,
		Title: "The Haunting",
		Slug:  "the-haunting",
		Metadata: domain.PostMetadata{
			SourceID:   42,
			Provenance: domain.Provenance,
		},
	}

	body, err := encodeMessage(post, domain.ActionCreated, at)
	require.NoError(t, err)

	var received PostMessage
	require.NoError(t, json.Unmarshal(body, &received))
	assert.Equal(t, domain.ActionCreated, received.Action)
	assert.Equal(t, "the-haunting", received.Post.Slug)
	assert.Equal(t, int64(42), received.Post.Metadata.SourceID)
	assert.True(t, received.Timestamp.Equal(at))
	assert.Equal(t, time.UTC, received.Timestamp.Location())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Contains(t, raw, "post")
	assert.Equal(t, "created", raw["action"])
}

func TestEncodeMessage_NilPost(t *testing.T) {
	_, err := encodeMessage(nil, domain.ActionUpdated, time.Now())
	assert.Error(t, err)
}
