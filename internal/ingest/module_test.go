package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/internal/store"
	"centralrepo/internal/store/sqlstore"
	"centralrepo/pkg/models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

func (r *recordingNotifier) kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "central.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func jobFor(id int64, caseName, deviceID string) JobContext {
	c := models.NewCase(models.CaseUUIDFromName(caseName), caseName)
	return JobContext{
		JobID:      id,
		Case:       c,
		DataSource: &models.DataSource{DeviceID: deviceID, CaseUUID: c.UUID, Name: deviceID + ".E01"},
	}
}

func TestNewCaseNoPriorNotable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	notes := &recordingNotifier{}
	f := NewFactory(FactoryConfig{Store: s, Notifier: notes, Settings: DefaultSettings()})

	jc := jobFor(1, "CaseX", "dev-123")
	m := f.NewModule()
	require.NoError(t, m.StartUp(ctx, jc))

	registered, err := s.GetCaseDetails(ctx, jc.Case.UUID)
	require.NoError(t, err)
	require.NotNil(t, registered)

	file := &models.File{ObjectID: 10, FileName: "a.txt", Parent: "/", Hash: "abc123"}
	assert.Equal(t, OK, m.Process(ctx, file))
	assert.Empty(t, notes.kinds())
	assert.Equal(t, 1, f.Registry().Get(1).Buffer.Len())

	m.ShutDown(ctx)
	assert.Zero(t, f.Registry().Len())

	insts, err := s.GetArtifactInstancesByTypeValue(ctx,
		models.NewArtifact(models.DefaultCorrelationTypes()[0], "abc123"))
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "CaseX", insts[0].Case.DisplayName)
	assert.Equal(t, "dev-123", insts[0].DataSource.DeviceID)
	assert.Equal(t, "/a.txt", insts[0].FilePath)
	assert.Equal(t, models.Unknown, insts[0].Known)
}

func TestPriorNotableCaseTriggersNotification(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	prior := jobFor(0, "CaseY", "dev-y")
	c, err := store.EnsureCase(ctx, s, prior.Case)
	require.NoError(t, err)
	ds, err := store.EnsureDataSource(ctx, s, prior.DataSource)
	require.NoError(t, err)
	require.NoError(t, s.AddArtifact(ctx, models.NewArtifact(models.DefaultCorrelationTypes()[0], "ABC123",
		models.Instance{Case: c, DataSource: ds, FilePath: "/evil.exe", Known: models.Bad})))

	notes := &recordingNotifier{}
	f := NewFactory(FactoryConfig{Store: s, Notifier: notes, Settings: DefaultSettings()})
	m := f.NewModule()
	require.NoError(t, m.StartUp(ctx, jobFor(2, "CaseX", "dev-123")))

	file := &models.File{ObjectID: 11, FileName: "a.txt", Parent: "/docs", Hash: "abc123"}
	assert.Equal(t, OK, m.Process(ctx, file))

	require.Len(t, notes.sent, 1)
	n := notes.sent[0]
	assert.Equal(t, models.KindCorrelatedNotable, n.Kind)
	assert.Equal(t, []string{"CaseY"}, n.PreviousCases)
	assert.Equal(t, "/docs/a.txt", n.FilePath)
	assert.Equal(t, "CaseX", n.CaseName)
	assert.NotEmpty(t, n.ID)

	// same file again is not reported twice
	assert.Equal(t, OK, m.Process(ctx, file))
	assert.Len(t, notes.sent, 1)
	m.ShutDown(ctx)

	names, err := s.GetListCasesHavingArtifactInstancesKnownBad(ctx,
		models.NewArtifact(models.DefaultCorrelationTypes()[0], "abc123"))
	require.NoError(t, err)
	assert.Equal(t, []string{"CaseY"}, names, "new instances are not notable")
}

func TestGlobalNotableFromReferenceSet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	org := &models.Organization{Name: "Lab"}
	require.NoError(t, s.NewOrganization(ctx, org))
	set := &models.GlobalSet{OrgID: org.ID, Name: "bad hashes", Version: "1"}
	require.NoError(t, s.NewGlobalSet(ctx, set))
	require.NoError(t, s.BulkInsertGlobalFileInstances(ctx, []models.GlobalFileInstance{
		{SetID: set.ID, Value: "deadbeef", Known: models.Bad},
	}))

	notes := &recordingNotifier{}
	f := NewFactory(FactoryConfig{Store: s, Notifier: notes, Settings: DefaultSettings()})
	m := f.NewModule()
	require.NoError(t, m.StartUp(ctx, jobFor(3, "CaseZ", "dev-z")))
	assert.Equal(t, OK, m.Process(ctx, &models.File{ObjectID: 1, FileName: "x.bin", Hash: "DEADBEEF"}))
	m.ShutDown(ctx)

	assert.Equal(t, []models.NotificationKind{models.KindGlobalNotable}, notes.kinds())
}

func TestSkippedFiles(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := NewFactory(FactoryConfig{Store: s, Settings: DefaultSettings()})
	m := f.NewModule()
	require.NoError(t, m.StartUp(ctx, jobFor(4, "CaseS", "dev-s")))

	files := []*models.File{
		{ObjectID: 1, FileName: "dir", Hash: "aa", Kind: models.FileDirectory},
		{ObjectID: 2, FileName: "unalloc", Hash: "bb", Kind: models.FileUnallocated},
		{ObjectID: 3, FileName: "slack", Hash: "cc", Kind: models.FileSlack},
		{ObjectID: 4, FileName: "known.dll", Hash: "dd", KnownState: models.Known},
		{ObjectID: 5, FileName: "nohash.txt"},
		{ObjectID: 6, FileName: "blank.txt", Hash: "   "},
	}
	for _, file := range files {
		assert.Equal(t, OK, m.Process(ctx, file), file.FileName)
	}
	assert.Zero(t, f.Registry().Get(4).Buffer.Len())
	m.ShutDown(ctx)
}

func TestDisabledTypeSkipsFiles(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	files := models.DefaultCorrelationTypes()[0]
	files.Enabled = false
	require.NoError(t, s.UpdateCorrelationType(ctx, files))

	f := NewFactory(FactoryConfig{Store: s, Settings: DefaultSettings()})
	m := f.NewModule()
	require.NoError(t, m.StartUp(ctx, jobFor(5, "CaseD", "dev-d")))
	assert.Equal(t, OK, m.Process(ctx, &models.File{ObjectID: 1, FileName: "a", Hash: "aa"}))
	assert.Zero(t, f.Registry().Get(5).Buffer.Len())
	m.ShutDown(ctx)
}

func TestConcurrentModulesRegisterOnceAndFlushOnce(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := NewFactory(FactoryConfig{Store: s, Settings: DefaultSettings(), BulkThreshold: 7})
	jc := jobFor(6, "Parallel", "dev-p")

	const workers, perWorker = 6, 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			m := f.NewModule()
			if err := m.StartUp(ctx, jc); err != nil {
				errs <- err
				return
			}
			defer m.ShutDown(ctx)
			for i := 0; i < perWorker; i++ {
				file := &models.File{ObjectID: int64(w*1000 + i), FileName: fmt.Sprintf("f%d", i), Hash: fmt.Sprintf("%08x%04x", w, i)}
				if r := m.Process(ctx, file); r != OK {
					errs <- fmt.Errorf("process returned %s", r)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	cases, err := s.GetCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	n, err := s.GetCountArtifactInstancesByCaseDataSource(ctx, jc.Case.UUID, jc.DataSource.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), n)
	assert.Zero(t, f.Registry().Len())
}

func TestDisabledStoreWarnsOncePerJob(t *testing.T) {
	ctx := context.Background()
	notes := &recordingNotifier{}
	f := NewFactory(FactoryConfig{Notifier: notes, Settings: DefaultSettings()})

	jc := jobFor(7, "Offline", "dev-o")
	a, b := f.NewModule(), f.NewModule()
	require.NoError(t, a.StartUp(ctx, jc))
	require.NoError(t, b.StartUp(ctx, jc))
	assert.Equal(t, OK, a.Process(ctx, &models.File{ObjectID: 1, FileName: "a", Hash: "aa"}))
	a.ShutDown(ctx)
	b.ShutDown(ctx)

	assert.Equal(t, []models.NotificationKind{models.KindWarning}, notes.kinds())
}

// missingTypeStore has no FILES correlation type.
type missingTypeStore struct {
	*sqlstore.Store
}

func (missingTypeStore) GetCorrelationTypeByID(context.Context, int) (*models.CorrelationType, error) {
	return nil, nil
}

func TestMissingFilesTypeFailsStartup(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(FactoryConfig{Store: missingTypeStore{openStore(t)}, Settings: DefaultSettings()})
	m := f.NewModule()

	err := m.StartUp(ctx, jobFor(8, "NoType", "dev-n"))
	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(8), se.JobID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Zero(t, f.Registry().Len(), "a failed startup leaves the job")

	m.ShutDown(ctx)
	assert.Equal(t, OK, m.Process(ctx, &models.File{ObjectID: 1, FileName: "a", Hash: "aa"}))
}

func TestMissingDeviceIDIsInert(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	f := NewFactory(FactoryConfig{Store: s, Settings: DefaultSettings()})
	m := f.NewModule()
	jc := jobFor(9, "NoDevice", "")
	require.NoError(t, m.StartUp(ctx, jc))
	assert.Equal(t, OK, m.Process(ctx, &models.File{ObjectID: 1, FileName: "a", Hash: "aa"}))
	m.ShutDown(ctx)

	c, err := s.GetCaseDetails(ctx, jc.Case.UUID)
	require.NoError(t, err)
	assert.Nil(t, c)
}

// gatedTypeStore holds the second FILES type lookup until release is closed,
// then fails it.
type gatedTypeStore struct {
	*sqlstore.Store
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTypeStore) GetCorrelationTypeByID(ctx context.Context, id int) (*models.CorrelationType, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if n == 1 {
		return g.Store.GetCorrelationTypeByID(ctx, id)
	}
	close(g.entered)
	<-g.release
	return nil, errors.New("correlation types unavailable")
}

func TestLastInstanceFailingStartupFlushesJob(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	gated := &gatedTypeStore{Store: s, entered: make(chan struct{}), release: make(chan struct{})}
	f := NewFactory(FactoryConfig{Store: gated, Settings: DefaultSettings()})
	jc := jobFor(10, "LateFailure", "dev-late")

	a := f.NewModule()
	require.NoError(t, a.StartUp(ctx, jc))

	b := f.NewModule()
	errCh := make(chan error, 1)
	go func() { errCh <- b.StartUp(ctx, jc) }()
	<-gated.entered

	assert.Equal(t, OK, a.Process(ctx, &models.File{ObjectID: 1, FileName: "a.txt", Parent: "/", Hash: "abc123"}))
	a.ShutDown(ctx)
	n, err := s.GetCountArtifactInstancesByCaseDataSource(ctx, jc.Case.UUID, jc.DataSource.DeviceID)
	require.NoError(t, err)
	assert.Zero(t, n, "an instance that is not last leaves the buffer alone")

	close(gated.release)
	var se *StartupError
	require.True(t, errors.As(<-errCh, &se))

	n, err = s.GetCountArtifactInstancesByCaseDataSource(ctx, jc.Case.UUID, jc.DataSource.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, f.Registry().Len())
}
