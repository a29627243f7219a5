package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/pkg/models"
)

func TestDisabledStoreIsInert(t *testing.T) {
	ctx := context.Background()
	var s Store = Disabled{}

	assert.False(t, s.Enabled())
	c := models.NewCase("c", "Case")
	got, err := EnsureCase(ctx, s, c)
	require.NoError(t, err)
	assert.Same(t, c, got)

	ds := &models.DataSource{DeviceID: "d"}
	gotDS, err := EnsureDataSource(ctx, s, ds)
	require.NoError(t, err)
	assert.Same(t, ds, gotDS)

	typ, err := s.GetCorrelationTypeByID(ctx, models.FilesTypeID)
	require.NoError(t, err)
	assert.Nil(t, typ)

	a := models.NewArtifact(models.DefaultCorrelationTypes()[0], "abc",
		models.Instance{Case: c, DataSource: ds})
	assert.NoError(t, s.AddArtifact(ctx, a))
	assert.NoError(t, s.BulkInsertArtifacts(ctx, []*models.Artifact{a}))

	names, err := s.GetListCasesHavingArtifactInstancesKnownBad(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NoError(t, s.Close())
}

func TestBadTagsFallback(t *testing.T) {
	assert.Equal(t, DefaultBadTags, NewBadTags(nil).List())
	assert.Equal(t, DefaultBadTags, NewBadTags([]string{" ", ""}).List())

	tags := NewBadTags([]string{"Notable", " Evidence "})
	assert.Equal(t, []string{"Evidence", "Notable"}, tags.List())
	assert.True(t, tags.Contains("Notable"))
	assert.False(t, tags.Contains("Follow Up"))
}

func TestWrapKeepsCause(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))

	err := Wrap("new case", ErrDuplicate)
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "new case", se.Op)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.Same(t, err, Wrap("outer", err))
}
