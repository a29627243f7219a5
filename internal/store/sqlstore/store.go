// Package sqlstore is the relational correlation store, backed by an embedded
// SQLite file for single-examiner setups or PostgreSQL for shared labs.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"centralrepo/internal/store"
	"centralrepo/pkg/models"
)

const defaultCacheSize = 1024

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config configures a SQL store.
type Config struct {
	Driver       string
	DSN          string
	BadTags      []string
	CacheSize    int
	MaxOpenConns int
	ConnLifetime time.Duration
}

// Store implements store.Store over database/sql.
type Store struct {
	db          *sqlx.DB
	dialect     dialect
	badTags     store.BadTags
	types       *lru.Cache[int, models.CorrelationType]
	cases       *lru.Cache[string, models.Case]
	dataSources *lru.Cache[string, models.DataSource]
}

var _ store.Store = (*Store)(nil)

// SQLiteDSN builds a DSN for a SQLite database file.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

// PostgresDSN builds a lib/pq connection string.
func PostgresDSN(host string, port int, user, password, dbname, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// OpenSQLite opens or creates a SQLite store at path.
func OpenSQLite(path string, badTags []string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	return Open(Config{Driver: DriverSQLite, DSN: SQLiteDSN(path), BadTags: badTags})
}

// Open connects, creates the schema and seeds the correlation type catalog.
func Open(cfg Config) (*Store, error) {
	var d dialect
	switch cfg.Driver {
	case DriverSQLite:
		d = sqliteDialect
	case DriverPostgres:
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if d.name == "sqlite" {
		// SQLite allows one writer; a single connection serializes access.
		db.SetMaxOpenConns(1)
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
		lifetime := cfg.ConnLifetime
		if lifetime <= 0 {
			lifetime = 5 * time.Minute
		}
		db.SetConnMaxLifetime(lifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	types, _ := lru.New[int, models.CorrelationType](64)
	cases, _ := lru.New[string, models.Case](size)
	dataSources, _ := lru.New[string, models.DataSource](size)

	s := &Store{
		db:          db,
		dialect:     d,
		badTags:     store.NewBadTags(cfg.BadTags),
		types:       types,
		cases:       cases,
		dataSources: dataSources,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, t := range models.DefaultCorrelationTypes() {
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(insertTypeSQL), t.ID, t.Name, boolInt(t.Supported), boolInt(t.Enabled)); err != nil {
			return fmt.Errorf("seed correlation types: %w", err)
		}
	}
	return nil
}

// Enabled reports true for a connected store.
func (s *Store) Enabled() bool { return true }

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetBadTags returns the configured notable tag names.
func (s *Store) GetBadTags() []string { return s.badTags.List() }

// IsBadTag reports whether name is a notable tag.
func (s *Store) IsBadTag(name string) bool { return s.badTags.Contains(name) }

// NewOrganization inserts org and sets its ID.
func (s *Store) NewOrganization(ctx context.Context, org *models.Organization) error {
	if org == nil || strings.TrimSpace(org.Name) == "" {
		return store.Wrap("new organization", errors.New("organization name is empty"))
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(insertOrganizationSQL), org.Name, org.POCName, org.POCEmail, org.POCPhone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Wrap("new organization", fmt.Errorf("organization %q: %w", org.Name, store.ErrDuplicate))
	}
	if err != nil {
		return store.Wrap("new organization", err)
	}
	org.ID = id
	return nil
}

// GetOrganizationByID returns nil, nil when the organization does not exist.
func (s *Store) GetOrganizationByID(ctx context.Context, id int64) (*models.Organization, error) {
	var row orgRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT id, org_name, poc_name, poc_email, poc_phone FROM organizations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get organization", err)
	}
	org := row.model()
	return &org, nil
}

// GetOrganizations lists organizations by name.
func (s *Store) GetOrganizations(ctx context.Context) ([]models.Organization, error) {
	var rows []orgRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, org_name, poc_name, poc_email, poc_phone FROM organizations ORDER BY org_name`); err != nil {
		return nil, store.Wrap("get organizations", err)
	}
	out := make([]models.Organization, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// NewCase registers c and sets its ID.
func (s *Store) NewCase(ctx context.Context, c *models.Case) error {
	if c == nil || strings.TrimSpace(c.UUID) == "" {
		return store.Wrap("new case", errors.New("case uuid is empty"))
	}
	created := c.CreationDate
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(insertCaseSQL),
		c.UUID, orgID(c.Org), c.DisplayName, created.Format(time.RFC3339Nano), c.CaseNumber,
		c.ExaminerName, c.ExaminerEmail, c.ExaminerPhone, c.Notes,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Wrap("new case", fmt.Errorf("case %s: %w", c.UUID, store.ErrDuplicate))
	}
	if err != nil {
		return store.Wrap("new case", err)
	}
	c.ID = id
	c.CreationDate = created
	return nil
}

// UpdateCase rewrites the mutable fields of a registered case.
func (s *Store) UpdateCase(ctx context.Context, c *models.Case) error {
	if c == nil {
		return store.Wrap("update case", errors.New("case is nil"))
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(updateCaseSQL),
		orgID(c.Org), c.DisplayName, c.CaseNumber, c.ExaminerName, c.ExaminerEmail, c.ExaminerPhone, c.Notes, c.UUID)
	if err != nil {
		return store.Wrap("update case", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.Wrap("update case", fmt.Errorf("case %s: %w", c.UUID, store.ErrNotFound))
	}
	s.cases.Remove(c.UUID)
	return nil
}

// GetCaseDetails returns nil, nil for an unregistered case.
func (s *Store) GetCaseDetails(ctx context.Context, caseUUID string) (*models.Case, error) {
	c, err := s.lookupCase(ctx, s.db, caseUUID)
	if err != nil {
		return nil, store.Wrap("get case", err)
	}
	return c, nil
}

func (s *Store) lookupCase(ctx context.Context, q sqlx.QueryerContext, caseUUID string) (*models.Case, error) {
	if c, ok := s.cases.Get(caseUUID); ok {
		return &c, nil
	}
	var row caseRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(selectCaseSQL+` WHERE case_uid = ?`), caseUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c := row.model()
	s.cases.Add(caseUUID, c)
	return &c, nil
}

// GetCases lists every registered case.
func (s *Store) GetCases(ctx context.Context) ([]models.Case, error) {
	var rows []caseRow
	if err := s.db.SelectContext(ctx, &rows, selectCaseSQL+` ORDER BY case_name`); err != nil {
		return nil, store.Wrap("get cases", err)
	}
	out := make([]models.Case, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// NewDataSource registers ds and sets its ID.
func (s *Store) NewDataSource(ctx context.Context, ds *models.DataSource) error {
	if ds == nil || strings.TrimSpace(ds.DeviceID) == "" {
		return store.Wrap("new data source", errors.New("device id is empty"))
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(insertDataSourceSQL), ds.DeviceID, ds.CaseUUID, ds.Name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Wrap("new data source", fmt.Errorf("device %s: %w", ds.DeviceID, store.ErrDuplicate))
	}
	if err != nil {
		return store.Wrap("new data source", err)
	}
	ds.ID = id
	return nil
}

// GetDataSourceDetails returns nil, nil for an unregistered device.
func (s *Store) GetDataSourceDetails(ctx context.Context, deviceID string) (*models.DataSource, error) {
	ds, err := s.lookupDataSource(ctx, s.db, deviceID)
	if err != nil {
		return nil, store.Wrap("get data source", err)
	}
	return ds, nil
}

func (s *Store) lookupDataSource(ctx context.Context, q sqlx.QueryerContext, deviceID string) (*models.DataSource, error) {
	if ds, ok := s.dataSources.Get(deviceID); ok {
		return &ds, nil
	}
	var row dataSourceRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(selectDataSourceSQL+` WHERE device_id = ?`), deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ds := row.model()
	s.dataSources.Add(deviceID, ds)
	return &ds, nil
}

// GetDataSources lists every registered data source.
func (s *Store) GetDataSources(ctx context.Context) ([]models.DataSource, error) {
	var rows []dataSourceRow
	if err := s.db.SelectContext(ctx, &rows, selectDataSourceSQL+` ORDER BY name`); err != nil {
		return nil, store.Wrap("get data sources", err)
	}
	out := make([]models.DataSource, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// GetCorrelationTypes returns the full type catalog.
func (s *Store) GetCorrelationTypes(ctx context.Context) ([]models.CorrelationType, error) {
	var rows []typeRow
	if err := s.db.SelectContext(ctx, &rows, selectTypeSQL+` ORDER BY id`); err != nil {
		return nil, store.Wrap("get correlation types", err)
	}
	out := make([]models.CorrelationType, 0, len(rows))
	for _, r := range rows {
		t := r.model()
		s.types.Add(t.ID, t)
		out = append(out, t)
	}
	return out, nil
}

// GetCorrelationTypeByID returns nil, nil for an unknown type ID.
func (s *Store) GetCorrelationTypeByID(ctx context.Context, id int) (*models.CorrelationType, error) {
	if t, ok := s.types.Get(id); ok {
		return &t, nil
	}
	var row typeRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectTypeSQL+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get correlation type", err)
	}
	t := row.model()
	s.types.Add(t.ID, t)
	return &t, nil
}

// GetCorrelationTypeByName returns nil, nil for an unknown type name.
func (s *Store) GetCorrelationTypeByName(ctx context.Context, name string) (*models.CorrelationType, error) {
	var row typeRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectTypeSQL+` WHERE display_name = ?`), strings.ToUpper(strings.TrimSpace(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get correlation type", err)
	}
	t := row.model()
	return &t, nil
}

// UpdateCorrelationType changes the supported and enabled flags of a type.
func (s *Store) UpdateCorrelationType(ctx context.Context, t models.CorrelationType) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE correlation_types SET supported = ?, enabled = ? WHERE id = ?`),
		boolInt(t.Supported), boolInt(t.Enabled), t.ID)
	if err != nil {
		return store.Wrap("update correlation type", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.Wrap("update correlation type", fmt.Errorf("type %d: %w", t.ID, store.ErrNotFound))
	}
	s.types.Remove(t.ID)
	return nil
}

// AddArtifact inserts the instances of a in one transaction.
func (s *Store) AddArtifact(ctx context.Context, a *models.Artifact) error {
	if err := a.Validate(); err != nil {
		return store.Wrap("add artifact", err)
	}
	return store.Wrap("add artifact", s.insertArtifacts(ctx, []*models.Artifact{a}))
}

// BulkInsertArtifacts inserts all instances in one transaction.
func (s *Store) BulkInsertArtifacts(ctx context.Context, artifacts []*models.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	for _, a := range artifacts {
		if err := a.Validate(); err != nil {
			return store.Wrap("bulk insert artifacts", err)
		}
	}
	return store.Wrap("bulk insert artifacts", s.insertArtifacts(ctx, artifacts))
}

func (s *Store) insertArtifacts(ctx context.Context, artifacts []*models.Artifact) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertInstanceSQL))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, a := range artifacts {
		for _, inst := range a.Instances {
			c, err := s.lookupCase(ctx, tx, inst.Case.UUID)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("case %s: %w", inst.Case.UUID, store.ErrNotFound)
			}
			ds, err := s.lookupDataSource(ctx, tx, inst.DataSource.DeviceID)
			if err != nil {
				return err
			}
			if ds == nil {
				return fmt.Errorf("data source %s: %w", inst.DataSource.DeviceID, store.ErrNotFound)
			}
			if _, err := stmt.ExecContext(ctx, a.Type.ID, c.ID, ds.ID, a.Value, inst.FilePath,
				inst.Known.String(), inst.Global.String(), inst.Comment); err != nil {
				return fmt.Errorf("insert instance: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetArtifactInstancesByTypeValue returns every recorded occurrence of a's value.
func (s *Store) GetArtifactInstancesByTypeValue(ctx context.Context, a *models.Artifact) ([]models.Instance, error) {
	var rows []instanceRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectInstancesSQL), a.Type.ID, a.Value); err != nil {
		return nil, store.Wrap("get artifact instances", err)
	}
	out := make([]models.Instance, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// IsArtifactGlobalKnownBad reports whether a's value is notable across cases.
func (s *Store) IsArtifactGlobalKnownBad(ctx context.Context, a *models.Artifact) (bool, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(countGlobalInstancesSQL), a.Type.ID, a.Value, models.Global.String()); err != nil {
		return false, store.Wrap("is artifact global known bad", err)
	}
	if n > 0 {
		return true, nil
	}
	if a.Type.ID != models.FilesTypeID {
		return false, nil
	}
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(countGlobalFilesSQL), a.Value, models.Bad.String()); err != nil {
		return false, store.Wrap("is artifact global known bad", err)
	}
	return n > 0, nil
}

// GetListCasesHavingArtifactInstancesKnownBad lists the display names of
// cases holding a notable instance of a's value.
func (s *Store) GetListCasesHavingArtifactInstancesKnownBad(ctx context.Context, a *models.Artifact) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, s.db.Rebind(selectKnownBadCasesSQL), a.Type.ID, a.Value, models.Bad.String()); err != nil {
		return nil, store.Wrap("get cases having known bad", err)
	}
	return names, nil
}

// GetCountArtifactInstancesKnownBad counts notable instances of a's value.
func (s *Store) GetCountArtifactInstancesKnownBad(ctx context.Context, a *models.Artifact) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(countKnownBadSQL), a.Type.ID, a.Value, models.Bad.String()); err != nil {
		return 0, store.Wrap("count known bad", err)
	}
	return n, nil
}

// GetCountArtifactInstancesByCaseDataSource counts instances recorded for one
// case and data source.
func (s *Store) GetCountArtifactInstancesByCaseDataSource(ctx context.Context, caseUUID, deviceID string) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(countByCaseDataSourceSQL), caseUUID, deviceID); err != nil {
		return 0, store.Wrap("count instances by case data source", err)
	}
	return n, nil
}

// NewGlobalSet registers a reference set and sets its ID.
func (s *Store) NewGlobalSet(ctx context.Context, set *models.GlobalSet) error {
	org, err := s.GetOrganizationByID(ctx, set.OrgID)
	if err != nil {
		return err
	}
	if org == nil {
		return store.Wrap("new global set", fmt.Errorf("organization %d: %w", set.OrgID, store.ErrNotFound))
	}
	imported := set.ImportDate
	if imported.IsZero() {
		imported = time.Now().UTC()
	}
	var id int64
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(insertGlobalSetSQL), set.OrgID, set.Name, set.Version, imported.Format(time.RFC3339)).Scan(&id); err != nil {
		return store.Wrap("new global set", err)
	}
	set.ID = id
	set.ImportDate = imported
	return nil
}

// BulkInsertGlobalFileInstances inserts reference-set entries in one transaction.
func (s *Store) BulkInsertGlobalFileInstances(ctx context.Context, instances []models.GlobalFileInstance) (err error) {
	if len(instances) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Wrap("bulk insert global files", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertGlobalFileSQL))
	if err != nil {
		return store.Wrap("bulk insert global files", err)
	}
	defer stmt.Close()

	for _, gi := range instances {
		value := models.NormalizeValue(models.FilesTypeID, gi.Value)
		if value == "" {
			continue
		}
		if _, err = stmt.ExecContext(ctx, gi.SetID, value, gi.Known.String(), gi.Comment); err != nil {
			return store.Wrap("bulk insert global files", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return store.Wrap("bulk insert global files", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orgID(org *models.Organization) interface{} {
	if org == nil || org.ID == 0 {
		return nil
	}
	return org.ID
}
