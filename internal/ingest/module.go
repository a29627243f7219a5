// Package ingest connects the host ingest framework to the correlation store:
// one Module runs per ingest worker, and all Modules of a job share the job's
// coordination state and bulk buffer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"centralrepo/internal/bulk"
	"centralrepo/internal/jobs"
	"centralrepo/internal/logger"
	"centralrepo/internal/metrics"
	"centralrepo/internal/rules"
	"centralrepo/internal/store"
	"centralrepo/pkg/models"
)

// ProcessResult is the per-file outcome reported to the host framework.
type ProcessResult int

const (
	OK ProcessResult = iota
	Error
)

func (r ProcessResult) String() string {
	if r == Error {
		return "ERROR"
	}
	return "OK"
}

// File is the host file model accessor. *models.File satisfies it.
type File interface {
	ID() int64
	Name() string
	ParentPath() string
	MD5() string
	Size() int64
	MIMEType() string
	Known() models.KnownStatus
	Type() models.FileType
}

// JobContext identifies the job a module instance runs for.
type JobContext struct {
	JobID      int64
	Case       *models.Case
	DataSource *models.DataSource
}

// StartupError fails module startup. It is fatal for the module instance only.
type StartupError struct {
	JobID int64
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("central repository module startup for job %d: %v", e.JobID, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Settings are the per-run options of the file module.
type Settings struct {
	FlagTaggedNotableItems      bool
	FlagGlobalKnownBad          bool
	CreateCorrelationProperties bool
}

// DefaultSettings enables every option.
func DefaultSettings() Settings {
	return Settings{FlagTaggedNotableItems: true, FlagGlobalKnownBad: true, CreateCorrelationProperties: true}
}

// FactoryConfig holds the collaborators shared by every module instance.
type FactoryConfig struct {
	Store         store.Store
	Notifier      Notifier
	Rules         rules.Engine
	Metrics       *metrics.Metrics
	Settings      Settings
	BulkThreshold int
	// NotificationCacheSize bounds the notification dedup cache.
	NotificationCacheSize int
}

// Factory creates module instances and owns the job registry.
type Factory struct {
	store    store.Store
	notifier Notifier
	rules    rules.Engine
	metrics  *metrics.Metrics
	settings Settings
	registry *jobs.Registry
	posted   *lru.Cache[string, struct{}]
}

// NewFactory builds a factory. A nil Store means the disabled store.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Store == nil {
		cfg.Store = store.Disabled{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}
	if cfg.Rules == nil {
		cfg.Rules = &rules.NoopEngine{}
	}
	size := cfg.NotificationCacheSize
	if size <= 0 {
		size = 10000
	}
	posted, _ := lru.New[string, struct{}](size)

	s := cfg.Store
	m := cfg.Metrics
	threshold := cfg.BulkThreshold
	return &Factory{
		store:    s,
		notifier: cfg.Notifier,
		rules:    cfg.Rules,
		metrics:  m,
		settings: cfg.Settings,
		registry: jobs.NewRegistry(func() *bulk.Buffer { return bulk.NewBuffer(s, threshold, m) }),
		posted:   posted,
	}
}

// Registry returns the job registry shared by the factory's modules.
func (f *Factory) Registry() *jobs.Registry { return f.registry }

// NewModule creates one module instance for one ingest worker.
func (f *Factory) NewModule() *Module {
	return &Module{f: f}
}

// Module is the per-worker file ingest module. It is not safe for concurrent
// use; the host runs one instance per worker.
type Module struct {
	f         *Factory
	jc        JobContext
	job       *jobs.Job
	filesType models.CorrelationType
	started   bool
	inert     bool
}

// StartUp joins the job. The first instance of a job registers its case and
// data source; the others wait for that registration to finish.
func (m *Module) StartUp(ctx context.Context, jc JobContext) error {
	f := m.f
	job, count := f.registry.IncrementAndGet(jc.JobID)
	m.jc = jc
	m.job = job
	m.started = true
	elected := count == 1

	if !f.store.Enabled() {
		if elected {
			job.FinishRegistration(nil)
		}
		if f.registry.IncrementWarnings(jc.JobID) == 1 {
			m.warn(ctx, "Central repository disabled",
				"Correlation with other cases is disabled because no central repository is configured.")
		}
		m.inert = true
		return nil
	}

	if jc.Case == nil || strings.TrimSpace(jc.Case.UUID) == "" ||
		jc.DataSource == nil || strings.TrimSpace(jc.DataSource.DeviceID) == "" {
		if elected {
			job.FinishRegistration(nil)
		}
		logger.Warnf("Job %d has no case or device ID, nothing to correlate", jc.JobID)
		m.inert = true
		return nil
	}

	if elected {
		err := m.register(ctx)
		job.FinishRegistration(err)
		if err != nil {
			return m.fail(ctx, err)
		}
	} else if err := job.WaitRegistered(ctx); err != nil {
		return m.fail(ctx, fmt.Errorf("wait for job registration: %w", err))
	}

	typ, err := f.store.GetCorrelationTypeByID(ctx, models.FilesTypeID)
	if err != nil {
		return m.fail(ctx, fmt.Errorf("resolve %s correlation type: %w", models.FilesTypeName, err))
	}
	if typ == nil {
		return m.fail(ctx, fmt.Errorf("resolve %s correlation type: %w", models.FilesTypeName, store.ErrNotFound))
	}
	m.filesType = *typ
	return nil
}

func (m *Module) register(ctx context.Context) error {
	c, err := store.EnsureCase(ctx, m.f.store, m.jc.Case)
	if err != nil {
		return fmt.Errorf("register case %s: %w", m.jc.Case.UUID, err)
	}
	ds := *m.jc.DataSource
	if ds.CaseUUID == "" {
		ds.CaseUUID = c.UUID
	}
	if _, err := store.EnsureDataSource(ctx, m.f.store, &ds); err != nil {
		return fmt.Errorf("register data source %s: %w", ds.DeviceID, err)
	}
	logger.Infof("Job %d registered case %q and data source %s", m.jc.JobID, c.DisplayName, ds.DeviceID)
	return nil
}

// fail leaves the job so that no ShutDown is needed for a failed startup.
// When it is the last instance out, artifacts queued by instances that
// already left are still flushed.
func (m *Module) fail(ctx context.Context, err error) error {
	m.started = false
	job, count := m.f.registry.DecrementAndGet(m.jc.JobID)
	logger.Errorf("Central repository module startup failed for job %d: %v", m.jc.JobID, err)
	if count == 0 && job != nil && job.Buffer != nil && job.Buffer.Len() > 0 {
		m.finishJob(context.WithoutCancel(ctx), job)
	}
	return &StartupError{JobID: m.jc.JobID, Err: err}
}

// Process correlates one file. Errors are contained to the file: the result
// is Error and the job continues.
func (m *Module) Process(ctx context.Context, file File) ProcessResult {
	f := m.f
	if !m.started || m.inert || file == nil {
		return OK
	}
	if reason := skipReason(file); reason != "" {
		f.metrics.IncFilesSkipped(reason)
		return OK
	}
	if !m.filesType.Enabled {
		f.metrics.IncFilesSkipped("type_disabled")
		return OK
	}
	md5 := strings.TrimSpace(file.MD5())
	if md5 == "" {
		f.metrics.IncFilesSkipped("no_hash")
		return OK
	}

	artifact := models.NewArtifact(m.filesType, md5, models.Instance{
		Case:       m.jc.Case,
		DataSource: m.jc.DataSource,
		FilePath:   file.ParentPath() + file.Name(),
		Known:      models.Unknown,
		Global:     models.Local,
	})

	if f.settings.FlagTaggedNotableItems && file.Known() == models.Unknown {
		cases, err := f.store.GetListCasesHavingArtifactInstancesKnownBad(ctx, artifact)
		if err != nil {
			return m.fileError(file, "look up notable cases", err)
		}
		if len(cases) > 0 {
			f.metrics.IncCorrelationHits()
			m.post(ctx, file, artifact.Value, &models.Notification{
				Kind:          models.KindCorrelatedNotable,
				PreviousCases: cases,
				Title:         "Notable item in previous case",
				Message:       "Previous case(s): " + strings.Join(cases, ", "),
				Severity:      "high",
			})
		}
	}

	if f.settings.FlagGlobalKnownBad {
		bad, err := f.store.IsArtifactGlobalKnownBad(ctx, artifact)
		if err != nil {
			return m.fileError(file, "check global notable status", err)
		}
		if bad {
			f.metrics.IncGlobalBadHits()
			m.post(ctx, file, artifact.Value, &models.Notification{
				Kind:     models.KindGlobalNotable,
				Title:    "Globally notable item",
				Message:  "Hash is marked notable in the central repository",
				Severity: "high",
			})
		}
	}

	for _, match := range f.rules.Apply(file) {
		f.metrics.IncRuleMatches()
		m.post(ctx, file, artifact.Value, &models.Notification{
			Kind:     models.KindInterestingFile,
			Rule:     match.ID,
			Title:    match.Title,
			Severity: match.Severity,
			Message:  "Interesting file rule matched",
		})
	}

	if f.settings.CreateCorrelationProperties {
		if err := m.job.Buffer.Prepare(ctx, artifact); err != nil {
			return m.fileError(file, "buffer artifact", err)
		}
	}
	f.metrics.IncFilesProcessed()
	return OK
}

func skipReason(file File) string {
	switch file.Type() {
	case models.FileDirectory, models.FileVirtualDir, models.FileLocalDir:
		return "directory"
	case models.FileUnallocated, models.FileUnused:
		return "unallocated"
	case models.FileSlack:
		return "slack"
	}
	if file.Known() == models.Known {
		return "known"
	}
	return ""
}

func (m *Module) fileError(file File, op string, err error) ProcessResult {
	m.f.metrics.IncFileErrors()
	logger.Errorf("Job %d: failed to %s for %s (id %d): %v", m.jc.JobID, op, file.Name(), file.ID(), err)
	return Error
}

// post sends n once per (job, file, kind, rule).
func (m *Module) post(ctx context.Context, file File, md5 string, n *models.Notification) {
	key := strings.Join([]string{
		strconv.FormatInt(m.jc.JobID, 10), strconv.FormatInt(file.ID(), 10), string(n.Kind), n.Rule,
	}, "|")
	if ok, _ := m.f.posted.ContainsOrAdd(key, struct{}{}); ok {
		return
	}

	n.ID = uuid.NewString()
	n.JobID = m.jc.JobID
	n.CaseUUID = m.jc.Case.UUID
	n.CaseName = m.jc.Case.DisplayName
	n.DeviceID = m.jc.DataSource.DeviceID
	n.FileID = file.ID()
	n.FileName = file.Name()
	n.FilePath = file.ParentPath() + file.Name()
	n.MD5 = md5
	n.CreatedAt = time.Now().UTC()

	m.f.metrics.IncNotifications(string(n.Kind))
	if err := m.f.notifier.Notify(ctx, n); err != nil {
		logger.Warnf("Failed to post %s notification for %s: %v", n.Kind, n.FilePath, err)
	}
}

func (m *Module) warn(ctx context.Context, title, message string) {
	n := &models.Notification{
		ID:        uuid.NewString(),
		Kind:      models.KindWarning,
		JobID:     m.jc.JobID,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	m.f.metrics.IncNotifications(string(n.Kind))
	if err := m.f.notifier.Notify(ctx, n); err != nil {
		logger.Warnf("Failed to post warning: %v", err)
	}
}

// ShutDown leaves the job. The last instance flushes the job buffer and logs
// the job's instance count; failures are logged and swallowed.
func (m *Module) ShutDown(ctx context.Context) {
	if !m.started {
		return
	}
	m.started = false

	job, count := m.f.registry.DecrementAndGet(m.jc.JobID)
	if count != 0 || job == nil || m.inert || job.Buffer == nil {
		return
	}
	m.finishJob(ctx, job)
}

// finishJob runs the last-instance work for job. Entries that fail to flush
// are dropped after logging.
func (m *Module) finishJob(ctx context.Context, job *jobs.Job) {
	n, err := job.Buffer.Flush(ctx)
	if err != nil {
		logger.Errorf("Job %d: final flush of %d artifacts failed: %v", m.jc.JobID, job.Buffer.Len(), err)
		return
	}
	logger.Debugf("Job %d: final flush wrote %d artifacts", m.jc.JobID, n)

	total, err := m.f.store.GetCountArtifactInstancesByCaseDataSource(ctx, m.jc.Case.UUID, m.jc.DataSource.DeviceID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warnf("Job %d: failed to count correlation instances: %v", m.jc.JobID, err)
		}
		return
	}
	logger.Infof("Job %d: %d correlation instances for case %q data source %s (%d written by this job)",
		m.jc.JobID, total, m.jc.Case.DisplayName, m.jc.DataSource.DeviceID, job.Buffer.Written())
}
