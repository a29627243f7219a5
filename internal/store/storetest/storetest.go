// Package storetest holds behaviour checks every enabled store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/internal/store"
	"centralrepo/pkg/models"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SeedsDefaultTypes", func(t *testing.T) { testSeedsDefaultTypes(t, newStore(t)) })
	t.Run("CaseLifecycle", func(t *testing.T) { testCaseLifecycle(t, newStore(t)) })
	t.Run("ConcurrentEnsureCase", func(t *testing.T) { testConcurrentEnsureCase(t, newStore(t)) })
	t.Run("DataSourceLifecycle", func(t *testing.T) { testDataSourceLifecycle(t, newStore(t)) })
	t.Run("ArtifactQueries", func(t *testing.T) { testArtifactQueries(t, newStore(t)) })
	t.Run("BulkInsert", func(t *testing.T) { testBulkInsert(t, newStore(t)) })
	t.Run("BulkInsertUnknownCase", func(t *testing.T) { testBulkInsertUnknownCase(t, newStore(t)) })
	t.Run("GlobalSets", func(t *testing.T) { testGlobalSets(t, newStore(t)) })
	t.Run("BadTags", func(t *testing.T) { testBadTags(t, newStore(t)) })
}

// Register creates a case and one data source for it.
func Register(t *testing.T, s store.Store, caseName, deviceID string) (*models.Case, *models.DataSource) {
	t.Helper()
	ctx := context.Background()
	c, err := store.EnsureCase(ctx, s, models.NewCase(models.CaseUUIDFromName(caseName), caseName))
	require.NoError(t, err)
	ds, err := store.EnsureDataSource(ctx, s, &models.DataSource{DeviceID: deviceID, CaseUUID: c.UUID, Name: deviceID + ".E01"})
	require.NoError(t, err)
	return c, ds
}

func filesType(t *testing.T, s store.Store) models.CorrelationType {
	t.Helper()
	typ, err := s.GetCorrelationTypeByID(context.Background(), models.FilesTypeID)
	require.NoError(t, err)
	require.NotNil(t, typ)
	return *typ
}

func testSeedsDefaultTypes(t *testing.T, s store.Store) {
	ctx := context.Background()
	types, err := s.GetCorrelationTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCorrelationTypes(), types)

	typ, err := s.GetCorrelationTypeByName(ctx, "files")
	require.NoError(t, err)
	require.NotNil(t, typ)
	assert.Equal(t, models.FilesTypeID, typ.ID)

	missing, err := s.GetCorrelationTypeByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	email := types[models.EmailTypeID]
	email.Enabled = true
	require.NoError(t, s.UpdateCorrelationType(ctx, email))
	got, err := s.GetCorrelationTypeByID(ctx, models.EmailTypeID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	err = s.UpdateCorrelationType(ctx, models.CorrelationType{ID: 99, Name: "NOPE"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testCaseLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	org := &models.Organization{Name: "Lab", POCName: "Pat"}
	require.NoError(t, s.NewOrganization(ctx, org))
	assert.NotZero(t, org.ID)
	err := s.NewOrganization(ctx, &models.Organization{Name: "Lab"})
	assert.True(t, errors.Is(err, store.ErrDuplicate))

	missing, err := s.GetCaseDetails(ctx, "no-such-case")
	require.NoError(t, err)
	assert.Nil(t, missing)

	c := models.NewCase("case-1", "Burglary")
	c.Org = org
	c.ExaminerName = "Sam"
	require.NoError(t, s.NewCase(ctx, c))
	assert.NotZero(t, c.ID)

	err = s.NewCase(ctx, models.NewCase("case-1", "Other"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicate))

	got, err := s.GetCaseDetails(ctx, "case-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Burglary", got.DisplayName)
	assert.Equal(t, "Sam", got.ExaminerName)
	require.NotNil(t, got.Org)
	assert.Equal(t, "Lab", got.Org.Name)

	got.Notes = "reopened"
	require.NoError(t, s.UpdateCase(ctx, got))
	again, err := s.GetCaseDetails(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "reopened", again.Notes)

	err = s.UpdateCase(ctx, models.NewCase("case-404", "Ghost"))
	assert.True(t, errors.Is(err, store.ErrNotFound))

	cases, err := s.GetCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func testConcurrentEnsureCase(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	ids := make([]int64, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := store.EnsureCase(ctx, s, models.NewCase("shared-case", "Shared"))
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	cases, err := s.GetCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func testDataSourceLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	c, ds := Register(t, s, "Fraud", "dev-1")
	assert.NotZero(t, ds.ID)
	assert.Equal(t, c.UUID, ds.CaseUUID)

	err := s.NewDataSource(ctx, &models.DataSource{DeviceID: "dev-1", Name: "again"})
	assert.True(t, errors.Is(err, store.ErrDuplicate))

	got, err := s.GetDataSourceDetails(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dev-1.E01", got.Name)

	missing, err := s.GetDataSourceDetails(ctx, "dev-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.GetDataSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testArtifactQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	typ := filesType(t, s)
	c1, ds1 := Register(t, s, "Case One", "dev-a")
	c2, ds2 := Register(t, s, "Case Two", "dev-b")

	const hash = "D41D8CD98F00B204E9800998ECF8427E"
	bad := models.NewArtifact(typ, hash, models.Instance{Case: c1, DataSource: ds1, FilePath: "/a/x.exe", Known: models.Bad})
	require.NoError(t, s.AddArtifact(ctx, bad))
	require.NoError(t, s.AddArtifact(ctx, models.NewArtifact(typ, hash,
		models.Instance{Case: c1, DataSource: ds1, FilePath: "/a/y.exe", Known: models.Bad})))
	require.NoError(t, s.AddArtifact(ctx, models.NewArtifact(typ, hash,
		models.Instance{Case: c2, DataSource: ds2, FilePath: "/b/x.exe", Known: models.Unknown})))

	probe := models.NewArtifact(typ, hash)
	insts, err := s.GetArtifactInstancesByTypeValue(ctx, probe)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	assert.Equal(t, "/a/x.exe", insts[0].FilePath)
	assert.Equal(t, models.Bad, insts[0].Known)
	assert.Equal(t, "Case One", insts[0].Case.DisplayName)

	names, err := s.GetListCasesHavingArtifactInstancesKnownBad(ctx, probe)
	require.NoError(t, err)
	assert.Equal(t, []string{"Case One"}, names)

	n, err := s.GetCountArtifactInstancesKnownBad(ctx, probe)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.GetCountArtifactInstancesByCaseDataSource(ctx, c1.UUID, ds1.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	globalBad, err := s.IsArtifactGlobalKnownBad(ctx, probe)
	require.NoError(t, err)
	assert.False(t, globalBad)

	require.NoError(t, s.AddArtifact(ctx, models.NewArtifact(typ, hash,
		models.Instance{Case: c2, DataSource: ds2, FilePath: "/b/z.exe", Known: models.Bad, Global: models.Global})))
	globalBad, err = s.IsArtifactGlobalKnownBad(ctx, probe)
	require.NoError(t, err)
	assert.True(t, globalBad)

	none, err := s.GetListCasesHavingArtifactInstancesKnownBad(ctx, models.NewArtifact(typ, "ffff"))
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Error(t, s.AddArtifact(ctx, models.NewArtifact(typ, "  ")))
}

func testBulkInsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	typ := filesType(t, s)
	c, ds := Register(t, s, "Bulk", "dev-bulk")

	batch := make([]*models.Artifact, 0, 50)
	for i := 0; i < 50; i++ {
		batch = append(batch, models.NewArtifact(typ, fmt.Sprintf("%032x", i),
			models.Instance{Case: c, DataSource: ds, FilePath: fmt.Sprintf("/f/%d", i)}))
	}
	require.NoError(t, s.BulkInsertArtifacts(ctx, batch))
	require.NoError(t, s.BulkInsertArtifacts(ctx, nil))

	n, err := s.GetCountArtifactInstancesByCaseDataSource(ctx, c.UUID, ds.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}

func testBulkInsertUnknownCase(t *testing.T, s store.Store) {
	ctx := context.Background()
	typ := filesType(t, s)
	c, ds := Register(t, s, "Known", "dev-known")

	ghost := &models.Case{UUID: "ghost-case", DisplayName: "Ghost"}
	batch := []*models.Artifact{
		models.NewArtifact(typ, "aaaa", models.Instance{Case: c, DataSource: ds}),
		models.NewArtifact(typ, "bbbb", models.Instance{Case: ghost, DataSource: ds}),
	}
	err := s.BulkInsertArtifacts(ctx, batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	n, err := s.GetCountArtifactInstancesByCaseDataSource(ctx, c.UUID, ds.DeviceID)
	require.NoError(t, err)
	assert.Zero(t, n, "failed batch must not be partially applied")
}

func testGlobalSets(t *testing.T, s store.Store) {
	ctx := context.Background()
	typ := filesType(t, s)

	err := s.NewGlobalSet(ctx, &models.GlobalSet{OrgID: 404, Name: "orphan", Version: "1"})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	org := &models.Organization{Name: "NSRL Lab"}
	require.NoError(t, s.NewOrganization(ctx, org))
	set := &models.GlobalSet{OrgID: org.ID, Name: "malware", Version: "2024.1"}
	require.NoError(t, s.NewGlobalSet(ctx, set))
	assert.NotZero(t, set.ID)

	require.NoError(t, s.BulkInsertGlobalFileInstances(ctx, []models.GlobalFileInstance{
		{SetID: set.ID, Value: "ABCDEF", Known: models.Bad, Comment: "dropper"},
		{SetID: set.ID, Value: "123456", Known: models.Known},
	}))

	bad, err := s.IsArtifactGlobalKnownBad(ctx, models.NewArtifact(typ, "abcdef"))
	require.NoError(t, err)
	assert.True(t, bad)

	known, err := s.IsArtifactGlobalKnownBad(ctx, models.NewArtifact(typ, "123456"))
	require.NoError(t, err)
	assert.False(t, known)

	domain, err := s.GetCorrelationTypeByID(ctx, models.DomainTypeID)
	require.NoError(t, err)
	other, err := s.IsArtifactGlobalKnownBad(ctx, models.NewArtifact(*domain, "abcdef"))
	require.NoError(t, err)
	assert.False(t, other, "reference sets only hold file hashes")
}

func testBadTags(t *testing.T, s store.Store) {
	assert.True(t, s.Enabled())
	assert.NotEmpty(t, s.GetBadTags())
	for _, tag := range s.GetBadTags() {
		assert.True(t, s.IsBadTag(tag))
	}
	assert.False(t, s.IsBadTag("Follow Up"))
}
