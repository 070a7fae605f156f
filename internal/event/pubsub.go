package event

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher uses Application Default Credentials unless
// PUBSUB_CREDENTIALS_JSON is set. Extra client options are applied last.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string, extra ...option.ClientOption) (*PubSubPublisher, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("pubsub project and topic are required")
	}

	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	opts = append(opts, extra...)

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubPublisher{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, e GoalStatusChanged) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":    e.Type,
			"goal_id": e.GoalID.String(),
			"to":      e.To,
		},
	})
	_, err = result.Get(ctx)
	return err
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
