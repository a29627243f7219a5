// Package redisstore keeps the correlation repository in Redis so that
// several ingest hosts can share it without a relational database.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"

	"centralrepo/internal/store"
	"centralrepo/pkg/models"
)

// Config configures Redis access for the correlation store.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	BadTags   []string
}

// Store implements store.Store over Redis keys.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	badTags store.BadTags
}

var _ store.Store = (*Store)(nil)

const maxCreateAttempts = 5

// instanceRecord is the list entry written per artifact instance.
type instanceRecord struct {
	CaseUUID string              `json:"case_uid"`
	DeviceID string              `json:"device_id"`
	FilePath string              `json:"file_path"`
	Known    models.KnownStatus  `json:"known_status"`
	Global   models.GlobalStatus `json:"global_status"`
	Comment  string              `json:"comment,omitempty"`
}

// New connects to Redis and seeds the correlation type catalog.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis central repository: %w", err)
	}
	return NewWithClient(ctx, client, cfg.KeyPrefix, cfg.BadTags)
}

// NewWithClient builds a store over an existing client.
func NewWithClient(ctx context.Context, client redis.UniversalClient, prefix string, badTags []string) (*Store, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = "centralrepo"
	}
	s := &Store{client: client, prefix: strings.TrimSpace(prefix), badTags: store.NewBadTags(badTags)}

	pipe := s.client.Pipeline()
	for _, t := range models.DefaultCorrelationTypes() {
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		pipe.HSetNX(ctx, s.typesKey(), strconv.Itoa(t.ID), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("seed correlation types: %w", err)
	}
	return s, nil
}

// Enabled reports true for a connected store.
func (s *Store) Enabled() bool { return true }

// Close closes Redis resources.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// GetBadTags returns the configured notable tag names.
func (s *Store) GetBadTags() []string { return s.badTags.List() }

// IsBadTag reports whether name is a notable tag.
func (s *Store) IsBadTag(name string) bool { return s.badTags.Contains(name) }

// NewOrganization inserts org and sets its ID. The name reservation and the
// record are written in one transaction.
func (s *Store) NewOrganization(ctx context.Context, org *models.Organization) error {
	if org == nil || strings.TrimSpace(org.Name) == "" {
		return store.Wrap("new organization", errors.New("organization name is empty"))
	}
	var id int64
	err := s.createOnce(ctx, s.orgNamesKey(), func(tx *redis.Tx) error {
		taken, err := tx.HExists(ctx, s.orgNamesKey(), org.Name).Result()
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("organization %q: %w", org.Name, store.ErrDuplicate)
		}
		if id, err = tx.Incr(ctx, s.seqKey("org")).Result(); err != nil {
			return err
		}
		rec := *org
		rec.ID = id
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.orgNamesKey(), org.Name, id)
			pipe.HSet(ctx, s.orgsKey(), strconv.FormatInt(id, 10), raw)
			return nil
		})
		return err
	})
	if err != nil {
		return store.Wrap("new organization", err)
	}
	org.ID = id
	return nil
}

// GetOrganizationByID returns nil, nil when the organization does not exist.
func (s *Store) GetOrganizationByID(ctx context.Context, id int64) (*models.Organization, error) {
	raw, err := s.client.HGet(ctx, s.orgsKey(), strconv.FormatInt(id, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get organization", err)
	}
	var org models.Organization
	if err := json.Unmarshal(raw, &org); err != nil {
		return nil, store.Wrap("get organization", err)
	}
	return &org, nil
}

// GetOrganizations lists organizations by name.
func (s *Store) GetOrganizations(ctx context.Context) ([]models.Organization, error) {
	all, err := s.client.HGetAll(ctx, s.orgsKey()).Result()
	if err != nil {
		return nil, store.Wrap("get organizations", err)
	}
	out := make([]models.Organization, 0, len(all))
	for _, raw := range all {
		var org models.Organization
		if err := json.Unmarshal([]byte(raw), &org); err != nil {
			continue
		}
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// NewCase registers c and sets its ID. IDs are only drawn for UUIDs that are
// not registered yet.
func (s *Store) NewCase(ctx context.Context, c *models.Case) error {
	if c == nil || strings.TrimSpace(c.UUID) == "" {
		return store.Wrap("new case", errors.New("case uuid is empty"))
	}
	rec := *c
	if rec.CreationDate.IsZero() {
		rec.CreationDate = time.Now().UTC()
	}
	key := s.caseKey(c.UUID)
	err := s.createOnce(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("case %s: %w", c.UUID, store.ErrDuplicate)
		}
		if rec.ID, err = tx.Incr(ctx, s.seqKey("case")).Result(); err != nil {
			return err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, s.casesKey(), c.UUID)
			return nil
		})
		return err
	})
	if err != nil {
		return store.Wrap("new case", err)
	}
	c.ID = rec.ID
	c.CreationDate = rec.CreationDate
	return nil
}

// UpdateCase rewrites the mutable fields of a registered case.
func (s *Store) UpdateCase(ctx context.Context, c *models.Case) error {
	if c == nil {
		return store.Wrap("update case", errors.New("case is nil"))
	}
	existing, err := s.GetCaseDetails(ctx, c.UUID)
	if err != nil {
		return err
	}
	if existing == nil {
		return store.Wrap("update case", fmt.Errorf("case %s: %w", c.UUID, store.ErrNotFound))
	}
	rec := *c
	rec.ID = existing.ID
	rec.CreationDate = existing.CreationDate
	raw, err := json.Marshal(rec)
	if err != nil {
		return store.Wrap("update case", err)
	}
	if err := s.client.SetXX(ctx, s.caseKey(c.UUID), raw, 0).Err(); err != nil {
		return store.Wrap("update case", err)
	}
	return nil
}

// GetCaseDetails returns nil, nil for an unregistered case.
func (s *Store) GetCaseDetails(ctx context.Context, caseUUID string) (*models.Case, error) {
	raw, err := s.client.Get(ctx, s.caseKey(caseUUID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get case", err)
	}
	var c models.Case
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, store.Wrap("get case", err)
	}
	return &c, nil
}

// GetCases lists every registered case by name.
func (s *Store) GetCases(ctx context.Context) ([]models.Case, error) {
	uuids, err := s.client.SMembers(ctx, s.casesKey()).Result()
	if err != nil {
		return nil, store.Wrap("get cases", err)
	}
	byUUID, err := s.loadCases(ctx, uuids)
	if err != nil {
		return nil, store.Wrap("get cases", err)
	}
	out := make([]models.Case, 0, len(byUUID))
	for _, c := range byUUID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (s *Store) loadCases(ctx context.Context, uuids []string) (map[string]models.Case, error) {
	out := make(map[string]models.Case, len(uuids))
	if len(uuids) == 0 {
		return out, nil
	}
	keys := make([]string, len(uuids))
	for i, u := range uuids {
		keys[i] = s.caseKey(u)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var c models.Case
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		out[uuids[i]] = c
	}
	return out, nil
}

// NewDataSource registers ds and sets its ID.
func (s *Store) NewDataSource(ctx context.Context, ds *models.DataSource) error {
	if ds == nil || strings.TrimSpace(ds.DeviceID) == "" {
		return store.Wrap("new data source", errors.New("device id is empty"))
	}
	rec := *ds
	key := s.dataSourceKey(ds.DeviceID)
	err := s.createOnce(ctx, key, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("device %s: %w", ds.DeviceID, store.ErrDuplicate)
		}
		if rec.ID, err = tx.Incr(ctx, s.seqKey("data_source")).Result(); err != nil {
			return err
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, s.dataSourcesKey(), ds.DeviceID)
			return nil
		})
		return err
	})
	if err != nil {
		return store.Wrap("new data source", err)
	}
	ds.ID = rec.ID
	return nil
}

// createOnce runs create under WATCH on key. A concurrent write to key aborts
// the transaction and create runs again, so a lost race ends in ErrDuplicate.
func (s *Store) createOnce(ctx context.Context, key string, create func(tx *redis.Tx) error) error {
	for i := 0; i < maxCreateAttempts; i++ {
		err := s.client.Watch(ctx, create, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("create %s: %w", key, redis.TxFailedErr)
}

// GetDataSourceDetails returns nil, nil for an unregistered device.
func (s *Store) GetDataSourceDetails(ctx context.Context, deviceID string) (*models.DataSource, error) {
	raw, err := s.client.Get(ctx, s.dataSourceKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get data source", err)
	}
	var ds models.DataSource
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, store.Wrap("get data source", err)
	}
	return &ds, nil
}

// GetDataSources lists every registered data source by name.
func (s *Store) GetDataSources(ctx context.Context) ([]models.DataSource, error) {
	devices, err := s.client.SMembers(ctx, s.dataSourcesKey()).Result()
	if err != nil {
		return nil, store.Wrap("get data sources", err)
	}
	byDevice, err := s.loadDataSources(ctx, devices)
	if err != nil {
		return nil, store.Wrap("get data sources", err)
	}
	out := make([]models.DataSource, 0, len(byDevice))
	for _, ds := range byDevice {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) loadDataSources(ctx context.Context, devices []string) (map[string]models.DataSource, error) {
	out := make(map[string]models.DataSource, len(devices))
	if len(devices) == 0 {
		return out, nil
	}
	keys := make([]string, len(devices))
	for i, d := range devices {
		keys[i] = s.dataSourceKey(d)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ds models.DataSource
		if err := json.Unmarshal([]byte(raw), &ds); err != nil {
			continue
		}
		out[devices[i]] = ds
	}
	return out, nil
}

// GetCorrelationTypes returns the full type catalog ordered by ID.
func (s *Store) GetCorrelationTypes(ctx context.Context) ([]models.CorrelationType, error) {
	all, err := s.client.HGetAll(ctx, s.typesKey()).Result()
	if err != nil {
		return nil, store.Wrap("get correlation types", err)
	}
	out := make([]models.CorrelationType, 0, len(all))
	for _, raw := range all {
		var t models.CorrelationType
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCorrelationTypeByID returns nil, nil for an unknown type ID.
func (s *Store) GetCorrelationTypeByID(ctx context.Context, id int) (*models.CorrelationType, error) {
	raw, err := s.client.HGet(ctx, s.typesKey(), strconv.Itoa(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Wrap("get correlation type", err)
	}
	var t models.CorrelationType
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, store.Wrap("get correlation type", err)
	}
	return &t, nil
}

// GetCorrelationTypeByName returns nil, nil for an unknown type name.
func (s *Store) GetCorrelationTypeByName(ctx context.Context, name string) (*models.CorrelationType, error) {
	types, err := s.GetCorrelationTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

// UpdateCorrelationType changes the supported and enabled flags of a type.
func (s *Store) UpdateCorrelationType(ctx context.Context, t models.CorrelationType) error {
	existing, err := s.GetCorrelationTypeByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return store.Wrap("update correlation type", fmt.Errorf("type %d: %w", t.ID, store.ErrNotFound))
	}
	existing.Supported = t.Supported
	existing.Enabled = t.Enabled
	raw, err := json.Marshal(existing)
	if err != nil {
		return store.Wrap("update correlation type", err)
	}
	return store.Wrap("update correlation type", s.client.HSet(ctx, s.typesKey(), strconv.Itoa(t.ID), raw).Err())
}

// AddArtifact records the instances of a.
func (s *Store) AddArtifact(ctx context.Context, a *models.Artifact) error {
	if err := a.Validate(); err != nil {
		return store.Wrap("add artifact", err)
	}
	return store.Wrap("add artifact", s.writeArtifacts(ctx, []*models.Artifact{a}))
}

// BulkInsertArtifacts records all instances in one MULTI/EXEC transaction.
func (s *Store) BulkInsertArtifacts(ctx context.Context, artifacts []*models.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	for _, a := range artifacts {
		if err := a.Validate(); err != nil {
			return store.Wrap("bulk insert artifacts", err)
		}
	}
	return store.Wrap("bulk insert artifacts", s.writeArtifacts(ctx, artifacts))
}

func (s *Store) writeArtifacts(ctx context.Context, artifacts []*models.Artifact) error {
	if err := s.checkParents(ctx, artifacts); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, a := range artifacts {
		for _, inst := range a.Instances {
			raw, err := json.Marshal(instanceRecord{
				CaseUUID: inst.Case.UUID,
				DeviceID: inst.DataSource.DeviceID,
				FilePath: inst.FilePath,
				Known:    inst.Known,
				Global:   inst.Global,
				Comment:  inst.Comment,
			})
			if err != nil {
				return err
			}
			pipe.RPush(ctx, s.instancesKey(a.Type.ID, a.Value), raw)
			pipe.Incr(ctx, s.countKey(inst.Case.UUID, inst.DataSource.DeviceID))
			if inst.Known == models.Bad {
				pipe.SAdd(ctx, s.badCasesKey(a.Type.ID, a.Value), inst.Case.UUID)
				pipe.Incr(ctx, s.badCountKey(a.Type.ID, a.Value))
			}
			if inst.Global == models.Global {
				pipe.Set(ctx, s.globalKey(a.Type.ID, a.Value), 1, 0)
			}
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write instance keys: %w", err)
	}
	return nil
}

// checkParents fails with ErrNotFound before anything is written when an
// instance references an unregistered case or data source.
func (s *Store) checkParents(ctx context.Context, artifacts []*models.Artifact) error {
	cases := map[string]struct{}{}
	devices := map[string]struct{}{}
	for _, a := range artifacts {
		for _, inst := range a.Instances {
			cases[inst.Case.UUID] = struct{}{}
			devices[inst.DataSource.DeviceID] = struct{}{}
		}
	}
	for u := range cases {
		n, err := s.client.Exists(ctx, s.caseKey(u)).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("case %s: %w", u, store.ErrNotFound)
		}
	}
	for d := range devices {
		n, err := s.client.Exists(ctx, s.dataSourceKey(d)).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("data source %s: %w", d, store.ErrNotFound)
		}
	}
	return nil
}

// GetArtifactInstancesByTypeValue returns every recorded occurrence of a's value.
func (s *Store) GetArtifactInstancesByTypeValue(ctx context.Context, a *models.Artifact) ([]models.Instance, error) {
	raws, err := s.client.LRange(ctx, s.instancesKey(a.Type.ID, a.Value), 0, -1).Result()
	if err != nil {
		return nil, store.Wrap("get artifact instances", err)
	}
	recs := make([]instanceRecord, 0, len(raws))
	caseSet := map[string]struct{}{}
	deviceSet := map[string]struct{}{}
	for _, raw := range raws {
		var rec instanceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
		caseSet[rec.CaseUUID] = struct{}{}
		deviceSet[rec.DeviceID] = struct{}{}
	}

	cases, err := s.loadCases(ctx, keysOf(caseSet))
	if err != nil {
		return nil, store.Wrap("get artifact instances", err)
	}
	dataSources, err := s.loadDataSources(ctx, keysOf(deviceSet))
	if err != nil {
		return nil, store.Wrap("get artifact instances", err)
	}

	out := make([]models.Instance, 0, len(recs))
	for _, rec := range recs {
		c := cases[rec.CaseUUID]
		c.UUID = rec.CaseUUID
		ds := dataSources[rec.DeviceID]
		ds.DeviceID = rec.DeviceID
		out = append(out, models.Instance{
			Case:       &c,
			DataSource: &ds,
			FilePath:   rec.FilePath,
			Comment:    rec.Comment,
			Known:      rec.Known,
			Global:     rec.Global,
		})
	}
	return out, nil
}

// IsArtifactGlobalKnownBad reports whether a's value is notable across cases.
func (s *Store) IsArtifactGlobalKnownBad(ctx context.Context, a *models.Artifact) (bool, error) {
	n, err := s.client.Exists(ctx, s.globalKey(a.Type.ID, a.Value)).Result()
	if err != nil {
		return false, store.Wrap("is artifact global known bad", err)
	}
	if n > 0 {
		return true, nil
	}
	if a.Type.ID != models.FilesTypeID {
		return false, nil
	}
	bad, err := s.client.SIsMember(ctx, s.globalBadFilesKey(), a.Value).Result()
	if err != nil {
		return false, store.Wrap("is artifact global known bad", err)
	}
	return bad, nil
}

// GetListCasesHavingArtifactInstancesKnownBad lists the display names of
// cases holding a notable instance of a's value.
func (s *Store) GetListCasesHavingArtifactInstancesKnownBad(ctx context.Context, a *models.Artifact) ([]string, error) {
	uuids, err := s.client.SMembers(ctx, s.badCasesKey(a.Type.ID, a.Value)).Result()
	if err != nil {
		return nil, store.Wrap("get cases having known bad", err)
	}
	cases, err := s.loadCases(ctx, uuids)
	if err != nil {
		return nil, store.Wrap("get cases having known bad", err)
	}
	seen := make(map[string]struct{}, len(cases))
	names := make([]string, 0, len(cases))
	for _, c := range cases {
		if _, dup := seen[c.DisplayName]; dup {
			continue
		}
		seen[c.DisplayName] = struct{}{}
		names = append(names, c.DisplayName)
	}
	sort.Strings(names)
	return names, nil
}

// GetCountArtifactInstancesKnownBad counts notable instances of a's value.
func (s *Store) GetCountArtifactInstancesKnownBad(ctx context.Context, a *models.Artifact) (int64, error) {
	n, err := s.client.Get(ctx, s.badCountKey(a.Type.ID, a.Value)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, store.Wrap("count known bad", err)
}

// GetCountArtifactInstancesByCaseDataSource counts instances recorded for one
// case and data source.
func (s *Store) GetCountArtifactInstancesByCaseDataSource(ctx context.Context, caseUUID, deviceID string) (int64, error) {
	n, err := s.client.Get(ctx, s.countKey(caseUUID, deviceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, store.Wrap("count instances by case data source", err)
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
	id, err := s.client.Incr(ctx, s.seqKey("global_set")).Result()
	if err != nil {
		return store.Wrap("new global set", err)
	}
	rec := *set
	rec.ID = id
	if rec.ImportDate.IsZero() {
		rec.ImportDate = time.Now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return store.Wrap("new global set", err)
	}
	if err := s.client.HSet(ctx, s.globalSetsKey(), strconv.FormatInt(id, 10), raw).Err(); err != nil {
		return store.Wrap("new global set", err)
	}
	set.ID = id
	set.ImportDate = rec.ImportDate
	return nil
}

// BulkInsertGlobalFileInstances records reference-set entries in one transaction.
func (s *Store) BulkInsertGlobalFileInstances(ctx context.Context, instances []models.GlobalFileInstance) error {
	if len(instances) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, gi := range instances {
		value := models.NormalizeValue(models.FilesTypeID, gi.Value)
		if value == "" {
			continue
		}
		pipe.SAdd(ctx, s.globalSetFilesKey(gi.SetID), value)
		if gi.Known == models.Bad {
			pipe.SAdd(ctx, s.globalBadFilesKey(), value)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return store.Wrap("bulk insert global files", err)
	}
	return nil
}

func (s *Store) seqKey(entity string) string {
	return s.prefix + ":seq:" + entity
}

func (s *Store) orgsKey() string {
	return s.prefix + ":orgs"
}

func (s *Store) orgNamesKey() string {
	return s.prefix + ":org_names"
}

func (s *Store) caseKey(caseUUID string) string {
	return s.prefix + ":case:" + caseUUID
}

func (s *Store) casesKey() string {
	return s.prefix + ":cases"
}

func (s *Store) dataSourceKey(deviceID string) string {
	return s.prefix + ":data_source:" + deviceID
}

func (s *Store) dataSourcesKey() string {
	return s.prefix + ":data_sources"
}

func (s *Store) typesKey() string {
	return s.prefix + ":types"
}

func (s *Store) instancesKey(typeID int, value string) string {
	return s.prefix + ":inst:" + strconv.Itoa(typeID) + ":" + value
}

func (s *Store) badCasesKey(typeID int, value string) string {
	return s.prefix + ":bad_cases:" + strconv.Itoa(typeID) + ":" + value
}

func (s *Store) badCountKey(typeID int, value string) string {
	return s.prefix + ":bad_count:" + strconv.Itoa(typeID) + ":" + value
}

func (s *Store) globalKey(typeID int, value string) string {
	return s.prefix + ":global:" + strconv.Itoa(typeID) + ":" + value
}

// countKey quotes both parts so that a ':' inside either cannot collide with
// another case and device pair.
func (s *Store) countKey(caseUUID, deviceID string) string {
	return s.prefix + ":count:" + strconv.Quote(caseUUID) + ":" + strconv.Quote(deviceID)
}

func (s *Store) globalSetsKey() string {
	return s.prefix + ":global_sets"
}

func (s *Store) globalSetFilesKey(setID int64) string {
	return s.prefix + ":global_set_files:" + strconv.FormatInt(setID, 10)
}

func (s *Store) globalBadFilesKey() string {
	return s.prefix + ":global_files:bad"
}

func keysOf(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
