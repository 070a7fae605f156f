package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T) (*PubSubPublisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	admin, err := pubsub.NewClient(ctx, "goals-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "goal-status")
	require.NoError(t, err)

	p, err := NewPubSubPublisher(ctx, "goals-test", "goal-status", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() {
		p.topic.Stop()
		_ = conn.Close()
	})
	return p, srv
}

func TestPubSubPublisher_Publish(t *testing.T) {
	p, srv := newTestPublisher(t)

	e := GoalStatusChanged{
		Type:            TypeGoalStatusChanged,
		GoalID:          uuid.New(),
		From:            "ACTIVE",
		To:              "COMPLETED",
		ProgressPercent: decimal.RequireFromString("104.5"),
		ChangedBy:       uuid.New(),
		OccurredAt:      time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), e))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]string{
		"type":    TypeGoalStatusChanged,
		"goal_id": e.GoalID.String(),
		"to":      "COMPLETED",
	}, msgs[0].Attributes)

	var got GoalStatusChanged
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, e.GoalID, got.GoalID)
	assert.Equal(t, "ACTIVE", got.From)
	assert.Equal(t, "COMPLETED", got.To)
	assert.True(t, got.ProgressPercent.Equal(e.ProgressPercent))
	assert.Equal(t, e.ChangedBy, got.ChangedBy)
	assert.True(t, got.OccurredAt.Equal(e.OccurredAt))
}

func TestPubSubPublisher_UnknownTopic(t *testing.T) {
	p, _ := newTestPublisher(t)
	p.topic = p.client.Topic("missing")

	err := p.Publish(context.Background(), GoalStatusChanged{Type: TypeGoalStatusChanged, GoalID: uuid.New()})
	assert.Error(t, err)
}

func TestNewPubSubPublisher_RequiresTopic(t *testing.T) {
	_, err := NewPubSubPublisher(context.Background(), "goals-test", "")
	assert.Error(t, err)
}
