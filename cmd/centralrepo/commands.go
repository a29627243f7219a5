package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"centralrepo/config"
	"centralrepo/internal/events"
	"centralrepo/internal/ingest"
	"centralrepo/internal/input/manifest"
	inputnats "centralrepo/internal/input/nats"
	inputredis "centralrepo/internal/input/redis"
	"centralrepo/internal/logger"
	"centralrepo/internal/metrics"
	"centralrepo/internal/pipeline"
	"centralrepo/internal/store"
	"centralrepo/pkg/models"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c := &cfg.CentralRepo

	caseName, _ := cmd.Flags().GetString("case")
	caseUUID, _ := cmd.Flags().GetString("case-uuid")
	device, _ := cmd.Flags().GetString("device")
	dsName, _ := cmd.Flags().GetString("data-source")
	jobID, _ := cmd.Flags().GetInt64("job-id")
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		c.Ingest.Workers = workers
	}
	if caseUUID == "" {
		caseUUID = models.CaseUUIDFromName(caseName)
	}
	if dsName == "" {
		dsName = filepath.Base(args[0])
	}
	if jobID == 0 {
		jobID = time.Now().UnixNano()
	}

	s, err := openStore(c.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	notifier, err := newNotifier(c.Notifications)
	if err != nil {
		return err
	}
	defer notifier.Close()

	engine, err := loadRules(c.Ingest.Rules)
	if err != nil {
		return err
	}

	factory := ingest.NewFactory(ingest.FactoryConfig{
		Store:                 s,
		Notifier:              notifier,
		Rules:                 engine,
		Metrics:               metrics.New(),
		Settings:              ingestSettings(c.Ingest),
		BulkThreshold:         c.Store.BulkThreshold,
		NotificationCacheSize: c.Ingest.NotificationCacheSize,
	})

	r, err := manifest.Open(args[0])
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer r.Close()

	ctx, stop := signalContext()
	defer stop()

	jc := ingest.JobContext{
		JobID:      jobID,
		Case:       models.NewCase(caseUUID, caseName),
		DataSource: &models.DataSource{DeviceID: device, CaseUUID: caseUUID, Name: dsName},
	}
	source := func(ctx context.Context, emit func(ingest.File) error) error {
		_, err := manifest.ReadFiles(ctx, r, func(f *models.File) error { return emit(f) })
		return err
	}
	stats, err := pipeline.NewRunner(factory, c.Ingest.Workers).Run(ctx, jc, source)
	fmt.Fprintf(cmd.OutOrStdout(), "ingested job=%d files=%d errors=%d duration=%s\n",
		jobID, stats.Files, stats.Errors, stats.Duration.Round(time.Millisecond))
	return err
}

func newRouter(m *metrics.Metrics, s store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.Enabled() {
			w.Write([]byte("ok (central repository disabled)"))
			return
		}
		w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	return r
}

func runListen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c := &cfg.CentralRepo

	s, err := openStore(c.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext()
	defer stop()

	m := metrics.New()
	listener := events.NewListener(events.ListenerConfig{
		Store:          s,
		Metrics:        m,
		Workers:        c.Events.Workers,
		QueueSize:      c.Events.QueueSize,
		EnqueueTimeout: c.Events.EnqueueTimeout,
	})
	// Queued events are still applied after a signal.
	listener.Start(context.WithoutCancel(ctx))
	defer listener.Close()

	if c.Metrics.Enabled {
		srv := &http.Server{Addr: c.Metrics.Listen, Handler: newRouter(m, s), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
		logger.Infof("Serving /metrics and /healthz on %s", c.Metrics.Listen)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = runEventSource(ctx, c.Events, listener.HandleRaw)
	logger.Infof("Case-event listener stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runEventSource(ctx context.Context, cfg config.EventsConfig, handle func([]byte) error) error {
	switch strings.ToLower(cfg.Mode) {
	case "redis":
		consumer, err := inputredis.NewConsumer(inputredis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Key:          cfg.Redis.Key,
			BlockTimeout: cfg.Redis.BlockTimeout,
		})
		if err != nil {
			return fmt.Errorf("create redis consumer: %w", err)
		}
		defer consumer.Close()
		return consumer.Run(ctx, handle)
	case "nats":
		sub, err := inputnats.NewSubscriber(inputnats.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject, Queue: cfg.NATS.Queue})
		if err != nil {
			return fmt.Errorf("create nats subscriber: %w", err)
		}
		defer sub.Close()
		return sub.Run(ctx, handle)
	case "none":
		logger.Infof("No case-event source configured; serving metrics only")
		<-ctx.Done()
		return ctx.Err()
	default:
		return fmt.Errorf("unknown events mode: %s", cfg.Mode)
	}
}

func publishEvent(ctx context.Context, cfg config.EventsConfig, payload []byte) error {
	switch strings.ToLower(cfg.Mode) {
	case "redis":
		consumer, err := inputredis.NewConsumer(inputredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err != nil {
			return err
		}
		defer consumer.Close()
		return consumer.Push(ctx, payload)
	case "nats":
		sub, err := inputnats.NewSubscriber(inputnats.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject})
		if err != nil {
			return err
		}
		defer sub.Close()
		return sub.Publish(payload)
	default:
		return fmt.Errorf("events mode %q cannot publish", cfg.Mode)
	}
}

func runImportHashSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	orgName, _ := cmd.Flags().GetString("org")
	setName, _ := cmd.Flags().GetString("set")
	version, _ := cmd.Flags().GetString("version")
	knownArg, _ := cmd.Flags().GetString("known")
	batch, _ := cmd.Flags().GetInt("batch")
	if setName == "" {
		setName = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	known, err := models.ParseKnownStatus(knownArg)
	if err != nil {
		return err
	}
	if batch <= 0 {
		batch = 1000
	}

	s, err := openStore(cfg.CentralRepo.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	if !s.Enabled() {
		return errors.New("central repository is disabled")
	}

	ctx, stop := signalContext()
	defer stop()

	set, n, err := importHashSet(ctx, s, args[0], orgName, &models.GlobalSet{Name: setName, Version: version}, known, batch)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported set=%q id=%d hashes=%d\n", set.Name, set.ID, n)
	return nil
}

// importHashSet registers set under orgName and loads the hashes of path in
// batches.
func importHashSet(ctx context.Context, s store.Store, path, orgName string, set *models.GlobalSet, known models.KnownStatus, batch int) (*models.GlobalSet, int, error) {
	org, err := ensureOrganization(ctx, s, orgName)
	if err != nil {
		return nil, 0, err
	}
	set.OrgID = org.ID
	if err := s.NewGlobalSet(ctx, set); err != nil {
		return nil, 0, err
	}

	r, err := manifest.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open hash set: %w", err)
	}
	defer r.Close()

	pending := make([]models.GlobalFileInstance, 0, batch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := s.BulkInsertGlobalFileInstances(ctx, pending)
		pending = pending[:0]
		return err
	}
	n, err := manifest.ReadHashSet(r, func(e manifest.HashEntry) error {
		pending = append(pending, models.GlobalFileInstance{SetID: set.ID, Value: e.MD5, Known: known, Comment: e.Comment})
		if len(pending) >= batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return set, n, err
	}
	if err := flush(); err != nil {
		return set, n, err
	}
	logger.Infof("Imported %d hashes into global set %q (%d)", n, set.Name, set.ID)
	return set, n, nil
}

func ensureOrganization(ctx context.Context, s store.Store, name string) (*models.Organization, error) {
	orgs, err := s.GetOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orgs {
		if strings.EqualFold(orgs[i].Name, name) {
			return &orgs[i], nil
		}
	}
	org := &models.Organization{Name: name}
	if err := s.NewOrganization(ctx, org); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ensureOrganization(ctx, s, name)
		}
		return nil, err
	}
	return org, nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	typeName, _ := cmd.Flags().GetString("type")

	s, err := openStore(cfg.CentralRepo.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	if !s.Enabled() {
		return errors.New("central repository is disabled")
	}

	ctx, stop := signalContext()
	defer stop()
	return lookup(ctx, cmd, s, typeName, args[0])
}

func lookup(ctx context.Context, cmd *cobra.Command, s store.Store, typeName, value string) error {
	typ, err := s.GetCorrelationTypeByName(ctx, typeName)
	if err != nil {
		return err
	}
	if typ == nil {
		return fmt.Errorf("unknown correlation type %q", typeName)
	}
	artifact := models.NewArtifact(*typ, value)

	instances, err := s.GetArtifactInstancesByTypeValue(ctx, artifact)
	if err != nil {
		return err
	}
	badCases, err := s.GetListCasesHavingArtifactInstancesKnownBad(ctx, artifact)
	if err != nil {
		return err
	}
	global, err := s.IsArtifactGlobalKnownBad(ctx, artifact)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s: %d occurrence(s), notable in %d case(s), global notable=%t\n",
		typ.Name, artifact.Value, len(instances), len(badCases), global)
	if len(instances) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tDATA SOURCE\tPATH\tKNOWN\tCOMMENT")
	for _, inst := range instances {
		caseName, device := "", ""
		if inst.Case != nil {
			caseName = inst.Case.DisplayName
		}
		if inst.DataSource != nil {
			device = inst.DataSource.DeviceID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", caseName, device, inst.FilePath, inst.Known, inst.Comment)
	}
	return tw.Flush()
}

func runTag(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c := &cfg.CentralRepo

	caseName, _ := cmd.Flags().GetString("case")
	caseUUID, _ := cmd.Flags().GetString("case-uuid")
	device, _ := cmd.Flags().GetString("device")
	dsName, _ := cmd.Flags().GetString("data-source")
	tagName, _ := cmd.Flags().GetString("tag")
	comment, _ := cmd.Flags().GetString("comment")
	md5, _ := cmd.Flags().GetString("md5")
	path, _ := cmd.Flags().GetString("path")
	publish, _ := cmd.Flags().GetBool("publish")

	kase := models.NewCase(caseUUID, caseName)
	if kase.UUID == "" {
		kase.UUID = models.CaseUUIDFromName(caseName)
	}
	if dsName == "" {
		dsName = device
	}
	dir, name := filepath.Split(path)
	payload, err := events.Encode(events.ContentTagAdded, events.TagAdded{
		TagName:    tagName,
		Comment:    comment,
		Case:       kase,
		DataSource: &models.DataSource{DeviceID: device, CaseUUID: kase.UUID, Name: dsName},
		Content:    &events.ContentRef{Name: name, ParentPath: dir, MD5: md5},
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if publish {
		if err := publishEvent(ctx, c.Events, payload); err != nil {
			return fmt.Errorf("publish tag event: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s event for %s\n", events.ContentTagAdded, md5)
		return nil
	}

	s, err := openStore(c.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	if !s.IsBadTag(tagName) {
		fmt.Fprintf(cmd.OutOrStdout(), "tag %q is not a notable tag (%s); nothing recorded\n",
			tagName, strings.Join(s.GetBadTags(), ", "))
		return nil
	}

	listener := events.NewListener(events.ListenerConfig{Store: s})
	listener.Start(ctx)
	if err := listener.HandleRaw(payload); err != nil {
		listener.Close()
		return err
	}
	listener.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "recorded %s tag for %s in case %q\n", tagName, md5, kase.DisplayName)
	return nil
}
