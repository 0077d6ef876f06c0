package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestQueueReceivesFromSubscription(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: "projects/project-id/topics/jobs"})
	require.NoError(t, err)
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:  "projects/project-id/subscriptions/jobs-sub",
		Topic: "projects/project-id/topics/jobs",
	})
	require.NoError(t, err)

	srv.Publish("projects/project-id/topics/jobs", []byte(`{"jobId":"j1"}`), map[string]string{KeyAttribute: "j1"})

	q := New(client.Subscriber("jobs-sub"), 2, nil)
	q.Start(ctx)

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "j1", d.Key)
	assert.JSONEq(t, `{"jobId":"j1"}`, string(d.Body))
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, d.Ack())

	require.Eventually(t, func() bool {
		msgs := srv.Messages()
		return len(msgs) == 1 && msgs[0].Acks > 0
	}, 5*time.Second, 20*time.Millisecond)
}

type fakeReceiver struct {
	msgs []*pubsub.Message
	err  error
}

func (f *fakeReceiver) Receive(ctx context.Context, fn func(context.Context, *pubsub.Message)) error {
	for _, m := range f.msgs {
		fn(ctx, m)
	}
	return f.err
}

func TestQueueUsesOrderingKeyFallback(t *testing.T) {
	t.Parallel()

	attempt := 3
	recv := &fakeReceiver{msgs: []*pubsub.Message{
		{Data: []byte("x"), OrderingKey: "ord-1", DeliveryAttempt: &attempt},
	}}
	q := newQueue(recv, nil)
	q.Start(context.Background())

	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", d.Key)
	assert.Equal(t, 3, d.Attempt)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestQueueSurfacesReceiveError(t *testing.T) {
	t.Parallel()

	q := newQueue(&fakeReceiver{err: errors.New("permission denied")}, nil)
	q.Start(context.Background())

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorContains(t, err, "permission denied")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newQueue(&fakeReceiver{}, nil).Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueWithoutSubscriber(t *testing.T) {
	t.Parallel()

	q := New(nil, 4, nil)
	q.Start(context.Background())
	_, err := q.Dequeue(context.Background())
	assert.ErrorContains(t, err, "not configured")
}
