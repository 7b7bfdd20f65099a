package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wikidot-crawler/internal/crawler"
)

func TestPublisherRecordsNotifications(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id, err := pub.Publish(ctx, "records", crawler.Notification{RunID: "r1", Kind: crawler.KindItem, Link: "scp-173", Revisions: 4})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	_, err = pub.Publish(ctx, "records", crawler.Notification{RunID: "r2", Kind: crawler.KindHub, Link: "alpha-hub", Fragments: 2})
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "audit", map[string]string{"event": "started"})
	require.NoError(t, err)

	notes, err := pub.Notifications("records")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, 4, notes[0].Revisions)
	require.Equal(t, 2, notes[1].Fragments)

	links, err := pub.Links("records", "r2")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha-hub"}, links)

	msgs := pub.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "audit", msgs[2].Topic)
	require.JSONEq(t, `{"event":"started"}`, string(msgs[2].Data))

	msgs[0].Data[0] = 'x'
	require.Equal(t, byte('{'), pub.Messages()[0].Data[0])

	pub.Reset()
	require.Empty(t, pub.Messages())
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "records", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, pub.Messages())
}

func TestNotificationsReportsUndecodableMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "records", []int{1, 2})
	require.NoError(t, err)
	_, err = pub.Notifications("records")
	require.ErrorContains(t, err, "decode message memory-1")
}
