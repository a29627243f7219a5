package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"centralrepo/internal/logger"
	"centralrepo/internal/metrics"
	"centralrepo/internal/store"
	"centralrepo/pkg/models"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Store          store.Store
	Metrics        *metrics.Metrics
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
}

// Listener applies case events to the store on a bounded worker pool.
// Handle never performs store I/O on the caller's goroutine.
type Listener struct {
	store          store.Store
	metrics        *metrics.Metrics
	workers        int
	enqueueTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

// NewListener creates a listener. Call Start before Handle.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Store == nil {
		cfg.Store = store.Disabled{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 2 * time.Second
	}
	return &Listener{
		store:          cfg.Store,
		metrics:        cfg.Metrics,
		workers:        cfg.Workers,
		enqueueTimeout: cfg.EnqueueTimeout,
		queue:          make(chan Event, cfg.QueueSize),
	}
}

// Start launches the workers. They run until Close drains the queue.
func (l *Listener) Start(ctx context.Context) {
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for ev := range l.queue {
				if err := l.dispatch(ctx, ev); err != nil {
					logger.Errorf("Failed to handle %s event: %v", ev.Name, err)
					continue
				}
				l.metrics.IncTagEventsHandled(string(ev.Name))
			}
		}()
	}
}

// Handle queues ev. When the queue stays full for the enqueue timeout the
// event is dropped and false is returned.
func (l *Listener) Handle(ev Event) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}

	select {
	case l.queue <- ev:
		return true
	default:
	}

	timer := time.NewTimer(l.enqueueTimeout)
	defer timer.Stop()
	select {
	case l.queue <- ev:
		return true
	case <-timer.C:
		l.metrics.IncTagEventsDropped()
		logger.Warnf("Case event queue full, dropped %s event", ev.Name)
		return false
	}
}

// HandleRaw decodes and queues an event envelope.
func (l *Listener) HandleRaw(raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		return err
	}
	if !l.Handle(ev) {
		return fmt.Errorf("%s event not queued", ev.Name)
	}
	return nil
}

// Close stops accepting events and waits until queued ones are handled.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) dispatch(ctx context.Context, ev Event) error {
	if !l.store.Enabled() {
		return nil
	}
	switch ev.Name {
	case ContentTagAdded:
		return l.onContentTagAdded(ctx, ev)
	case BlackboardArtifactTagAdded:
		return l.onArtifactTagAdded(ctx, ev)
	case DataSourceAdded:
		return l.onDataSourceAdded(ctx, ev)
	case CurrentCase:
		return l.onCurrentCase(ctx, ev)
	default:
		logger.Debugf("Ignoring case event %s", ev.Name)
		return nil
	}
}

func (l *Listener) decodeTag(ev Event) (*TagAdded, bool, error) {
	var tag TagAdded
	if err := json.Unmarshal(ev.NewValue, &tag); err != nil {
		return nil, false, fmt.Errorf("decode tag: %w", err)
	}
	if !l.store.IsBadTag(tag.TagName) {
		return nil, false, nil
	}
	tag.Case = normalizeCase(tag.Case)
	if tag.Case == nil || tag.DataSource == nil || strings.TrimSpace(tag.DataSource.DeviceID) == "" {
		logger.Debugf("Tag %q event without case or device ID, skipped", tag.TagName)
		return nil, false, nil
	}
	return &tag, true, nil
}

func (l *Listener) registered(ctx context.Context, c *models.Case, ds *models.DataSource) (*models.Case, *models.DataSource, error) {
	rc, err := store.EnsureCase(ctx, l.store, c)
	if err != nil {
		return nil, nil, err
	}
	d := *ds
	if d.CaseUUID == "" {
		d.CaseUUID = rc.UUID
	}
	if d.Name == "" {
		d.Name = d.DeviceID
	}
	rds, err := store.EnsureDataSource(ctx, l.store, &d)
	if err != nil {
		return nil, nil, err
	}
	return rc, rds, nil
}

func (l *Listener) onContentTagAdded(ctx context.Context, ev Event) error {
	tag, ok, err := l.decodeTag(ev)
	if err != nil || !ok {
		return err
	}
	if tag.Content == nil || strings.TrimSpace(tag.Content.MD5) == "" {
		return nil
	}
	typ, err := l.store.GetCorrelationTypeByID(ctx, models.FilesTypeID)
	if err != nil {
		return err
	}
	if typ == nil || !typ.Enabled {
		return nil
	}
	c, ds, err := l.registered(ctx, tag.Case, tag.DataSource)
	if err != nil {
		return err
	}

	parent := tag.Content.ParentPath
	if !strings.HasSuffix(parent, "/") {
		parent += "/"
	}
	a := models.NewArtifact(*typ, tag.Content.MD5, models.Instance{
		Case:       c,
		DataSource: ds,
		FilePath:   parent + tag.Content.Name,
		Comment:    tag.Comment,
		Known:      models.Bad,
		Global:     models.Local,
	})
	if err := l.store.AddArtifact(ctx, a); err != nil {
		return err
	}
	logger.Infof("Marked %s notable in case %q after tag %q", a.Value, c.DisplayName, tag.TagName)
	return nil
}

func (l *Listener) onArtifactTagAdded(ctx context.Context, ev Event) error {
	tag, ok, err := l.decodeTag(ev)
	if err != nil || !ok {
		return err
	}
	if len(tag.Attributes) == 0 {
		return nil
	}
	c, ds, err := l.registered(ctx, tag.Case, tag.DataSource)
	if err != nil {
		return err
	}

	var errs []error
	for _, attr := range tag.Attributes {
		typ, err := l.store.GetCorrelationTypeByID(ctx, attr.TypeID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if typ == nil || !typ.Enabled {
			continue
		}
		a := models.NewArtifact(*typ, attr.Value, models.Instance{
			Case:       c,
			DataSource: ds,
			Comment:    tag.Comment,
			Known:      models.Bad,
			Global:     models.Local,
		})
		if a.Value == "" {
			continue
		}
		if err := l.store.AddArtifact(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Listener) onDataSourceAdded(ctx context.Context, ev Event) error {
	var v DataSourceAddedValue
	if err := json.Unmarshal(ev.NewValue, &v); err != nil {
		return fmt.Errorf("decode data source: %w", err)
	}
	c := normalizeCase(v.Case)
	if c == nil || v.DataSource == nil || strings.TrimSpace(v.DataSource.DeviceID) == "" {
		return nil
	}
	_, _, err := l.registered(ctx, c, v.DataSource)
	return err
}

func (l *Listener) onCurrentCase(ctx context.Context, ev Event) error {
	if len(ev.NewValue) == 0 || string(ev.NewValue) == "null" {
		return nil
	}
	var c models.Case
	if err := json.Unmarshal(ev.NewValue, &c); err != nil {
		return fmt.Errorf("decode case: %w", err)
	}
	nc := normalizeCase(&c)
	if nc == nil {
		return nil
	}
	if nc.CreationDate.IsZero() {
		nc.CreationDate = time.Now().UTC()
	}
	_, err := store.EnsureCase(ctx, l.store, nc)
	return err
}
