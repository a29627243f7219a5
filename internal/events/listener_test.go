package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/internal/metrics"
	"centralrepo/internal/store"
	"centralrepo/internal/store/sqlstore"
	"centralrepo/pkg/models"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "central.db"), []string{"Evidence", "Notable Item"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustEncode(t *testing.T, name Name, v interface{}) Event {
	t.Helper()
	raw, err := Encode(name, v)
	require.NoError(t, err)
	ev, err := Decode(raw)
	require.NoError(t, err)
	return ev
}

func filesArtifact(v string) *models.Artifact {
	return models.NewArtifact(models.DefaultCorrelationTypes()[0], v)
}

func TestContentTagWithBadTagMarksNotable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	l := NewListener(ListenerConfig{Store: s})
	l.Start(ctx)

	require.True(t, l.Handle(mustEncode(t, ContentTagAdded, TagAdded{
		TagName:    "Notable Item",
		Comment:    "seen on desktop",
		Case:       &models.Case{DisplayName: "Tagged Case"},
		DataSource: &models.DataSource{DeviceID: "dev-t"},
		Content:    &ContentRef{ObjectID: 4, Name: "evil.exe", ParentPath: "/Users/x", MD5: "ABCD"},
	})))
	require.True(t, l.Handle(mustEncode(t, ContentTagAdded, TagAdded{
		TagName:    "Follow Up",
		Case:       &models.Case{DisplayName: "Tagged Case"},
		DataSource: &models.DataSource{DeviceID: "dev-t"},
		Content:    &ContentRef{Name: "benign.txt", MD5: "ffff"},
	})))
	l.Close()

	names, err := s.GetListCasesHavingArtifactInstancesKnownBad(ctx, filesArtifact("abcd"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Tagged Case"}, names)

	insts, err := s.GetArtifactInstancesByTypeValue(ctx, filesArtifact("abcd"))
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "/Users/x/evil.exe", insts[0].FilePath)
	assert.Equal(t, "seen on desktop", insts[0].Comment)
	assert.Equal(t, models.Local, insts[0].Global)

	other, err := s.GetArtifactInstancesByTypeValue(ctx, filesArtifact("ffff"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestArtifactTagUsesEnabledTypesOnly(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	l := NewListener(ListenerConfig{Store: s, Workers: 1})
	l.Start(ctx)

	require.True(t, l.Handle(mustEncode(t, BlackboardArtifactTagAdded, TagAdded{
		TagName:    "Evidence",
		Case:       &models.Case{UUID: "case-a", DisplayName: "Artifact Case"},
		DataSource: &models.DataSource{DeviceID: "dev-a"},
		Attributes: []AttributeRef{
			{TypeID: models.FilesTypeID, Value: "1234"},
			{TypeID: models.DomainTypeID, Value: "evil.example"},
			{TypeID: 42, Value: "unknown type"},
		},
	})))
	l.Close()

	n, err := s.GetCountArtifactInstancesKnownBad(ctx, filesArtifact("1234"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	domain := models.NewArtifact(models.DefaultCorrelationTypes()[models.DomainTypeID], "evil.example")
	n, err = s.GetCountArtifactInstancesKnownBad(ctx, domain)
	require.NoError(t, err)
	assert.Zero(t, n, "disabled types are not recorded")
}

func TestCaseAndDataSourceEventsRegister(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	l := NewListener(ListenerConfig{Store: s})
	l.Start(ctx)

	require.True(t, l.Handle(mustEncode(t, CurrentCase, models.Case{UUID: "case-open", DisplayName: "Opened"})))
	require.True(t, l.Handle(Event{Name: CurrentCase, NewValue: []byte("null")}))
	require.True(t, l.Handle(mustEncode(t, DataSourceAdded, DataSourceAddedValue{
		Case:       &models.Case{UUID: "case-ds", DisplayName: "With Image"},
		DataSource: &models.DataSource{DeviceID: "dev-img", Name: "image.E01"},
	})))
	l.Close()

	c, err := s.GetCaseDetails(ctx, "case-open")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Opened", c.DisplayName)

	ds, err := s.GetDataSourceDetails(ctx, "dev-img")
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Equal(t, "case-ds", ds.CaseUUID)
}

func TestFullQueueDropsAfterTimeout(t *testing.T) {
	m := metrics.New()
	l := NewListener(ListenerConfig{Store: store.Disabled{}, Metrics: m, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond})

	assert.True(t, l.Handle(Event{Name: CurrentCase}))
	start := time.Now()
	assert.False(t, l.Handle(Event{Name: CurrentCase}))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TagEventsDropped))

	l.Start(context.Background())
	l.Close()
	assert.False(t, l.Handle(Event{Name: CurrentCase}), "closed listener rejects events")
}

func TestDecodeRejectsBadEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{"new_value":{}}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	l := NewListener(ListenerConfig{})
	assert.Error(t, l.HandleRaw([]byte(`{}`)))
}
