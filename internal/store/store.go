// Package store defines the correlation store contract shared by every
// backend, plus the disabled variant used when no database is configured.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"centralrepo/pkg/models"
)

// DefaultBadTags are the tag names treated as notable when none are configured.
var DefaultBadTags = []string{"Evidence"}

var (
	// ErrDuplicate reports that a unique key is already registered.
	ErrDuplicate = errors.New("already exists")
	// ErrNotFound reports that a referenced parent row does not exist.
	ErrNotFound = errors.New("not found")
)

// Error wraps a backend failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("central repository %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise an *Error for op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Store is the durable repository of cases, data sources, correlation types
// and artifact instances. Implementations are safe for concurrent use.
type Store interface {
	// Enabled is false for the disabled store; every other call is then a no-op.
	Enabled() bool

	NewOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByID(ctx context.Context, id int64) (*models.Organization, error)
	GetOrganizations(ctx context.Context) ([]models.Organization, error)

	// NewCase fails with ErrDuplicate when the case UUID is already registered.
	NewCase(ctx context.Context, c *models.Case) error
	UpdateCase(ctx context.Context, c *models.Case) error
	// GetCaseDetails returns nil, nil when the case is not registered.
	GetCaseDetails(ctx context.Context, caseUUID string) (*models.Case, error)
	GetCases(ctx context.Context) ([]models.Case, error)

	// NewDataSource fails with ErrDuplicate when the device ID is already registered.
	NewDataSource(ctx context.Context, ds *models.DataSource) error
	// GetDataSourceDetails returns nil, nil when the device is not registered.
	GetDataSourceDetails(ctx context.Context, deviceID string) (*models.DataSource, error)
	GetDataSources(ctx context.Context) ([]models.DataSource, error)

	GetCorrelationTypes(ctx context.Context) ([]models.CorrelationType, error)
	GetCorrelationTypeByID(ctx context.Context, id int) (*models.CorrelationType, error)
	GetCorrelationTypeByName(ctx context.Context, name string) (*models.CorrelationType, error)
	UpdateCorrelationType(ctx context.Context, t models.CorrelationType) error

	// AddArtifact inserts every instance of a immediately.
	AddArtifact(ctx context.Context, a *models.Artifact) error
	// BulkInsertArtifacts writes all instances of all artifacts atomically.
	BulkInsertArtifacts(ctx context.Context, artifacts []*models.Artifact) error

	GetArtifactInstancesByTypeValue(ctx context.Context, a *models.Artifact) ([]models.Instance, error)
	IsArtifactGlobalKnownBad(ctx context.Context, a *models.Artifact) (bool, error)
	GetListCasesHavingArtifactInstancesKnownBad(ctx context.Context, a *models.Artifact) ([]string, error)
	GetCountArtifactInstancesKnownBad(ctx context.Context, a *models.Artifact) (int64, error)
	GetCountArtifactInstancesByCaseDataSource(ctx context.Context, caseUUID, deviceID string) (int64, error)

	NewGlobalSet(ctx context.Context, set *models.GlobalSet) error
	BulkInsertGlobalFileInstances(ctx context.Context, instances []models.GlobalFileInstance) error

	// GetBadTags returns the tag names that mark content as notable.
	GetBadTags() []string
	IsBadTag(name string) bool

	Close() error
}

// BadTags is an immutable set of tag display names.
type BadTags struct {
	names map[string]struct{}
}

// NewBadTags builds a tag set, falling back to DefaultBadTags when empty.
func NewBadTags(names []string) BadTags {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}
	if len(set) == 0 {
		for _, n := range DefaultBadTags {
			set[n] = struct{}{}
		}
	}
	return BadTags{names: set}
}

// List returns the tag names in sorted order.
func (b BadTags) List() []string {
	out := make([]string, 0, len(b.names))
	for n := range b.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether name is a bad tag.
func (b BadTags) Contains(name string) bool {
	_, ok := b.names[strings.TrimSpace(name)]
	return ok
}
