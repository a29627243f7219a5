package notifynats

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/pkg/models"
)

func TestSubjectIncludesKind(t *testing.T) {
	w := NewWriterWithConn(nil, "")
	assert.Equal(t, "centralrepo.notifications.global_notable",
		w.Subject(&models.Notification{Kind: models.KindGlobalNotable}))
}

func TestWriterPublishes(t *testing.T) {
	nc, err := nats.Connect(nats.DefaultURL)
	if err != nil {
		t.Skipf("Skipping test: NATS not available: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("test.notifications.>")
	require.NoError(t, err)

	w := NewWriterWithConn(nc, "test.notifications")
	require.NoError(t, w.Notify(context.Background(), &models.Notification{ID: "n1", Kind: models.KindCorrelatedNotable}))
	require.NoError(t, w.Close())

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.notifications.correlated_notable", msg.Subject)
	var n models.Notification
	require.NoError(t, json.Unmarshal(msg.Data, &n))
	assert.Equal(t, "n1", n.ID)
}
