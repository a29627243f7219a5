package store

import (
	"context"

	"centralrepo/pkg/models"
)

// Disabled is the store used when no backing database is configured.
// Queries return empty results and writes are dropped.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) Enabled() bool { return false }

func (Disabled) NewOrganization(context.Context, *models.Organization) error { return nil }

func (Disabled) GetOrganizationByID(context.Context, int64) (*models.Organization, error) {
	return nil, nil
}

func (Disabled) GetOrganizations(context.Context) ([]models.Organization, error) { return nil, nil }

func (Disabled) NewCase(context.Context, *models.Case) error { return nil }

func (Disabled) UpdateCase(context.Context, *models.Case) error { return nil }

func (Disabled) GetCaseDetails(context.Context, string) (*models.Case, error) { return nil, nil }

func (Disabled) GetCases(context.Context) ([]models.Case, error) { return nil, nil }

func (Disabled) NewDataSource(context.Context, *models.DataSource) error { return nil }

func (Disabled) GetDataSourceDetails(context.Context, string) (*models.DataSource, error) {
	return nil, nil
}

func (Disabled) GetDataSources(context.Context) ([]models.DataSource, error) { return nil, nil }

func (Disabled) GetCorrelationTypes(context.Context) ([]models.CorrelationType, error) {
	return nil, nil
}

func (Disabled) GetCorrelationTypeByID(context.Context, int) (*models.CorrelationType, error) {
	return nil, nil
}

func (Disabled) GetCorrelationTypeByName(context.Context, string) (*models.CorrelationType, error) {
	return nil, nil
}

func (Disabled) UpdateCorrelationType(context.Context, models.CorrelationType) error { return nil }

func (Disabled) AddArtifact(context.Context, *models.Artifact) error { return nil }

func (Disabled) BulkInsertArtifacts(context.Context, []*models.Artifact) error { return nil }

func (Disabled) GetArtifactInstancesByTypeValue(context.Context, *models.Artifact) ([]models.Instance, error) {
	return nil, nil
}

func (Disabled) IsArtifactGlobalKnownBad(context.Context, *models.Artifact) (bool, error) {
	return false, nil
}

func (Disabled) GetListCasesHavingArtifactInstancesKnownBad(context.Context, *models.Artifact) ([]string, error) {
	return nil, nil
}

func (Disabled) GetCountArtifactInstancesKnownBad(context.Context, *models.Artifact) (int64, error) {
	return 0, nil
}

func (Disabled) GetCountArtifactInstancesByCaseDataSource(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (Disabled) NewGlobalSet(context.Context, *models.GlobalSet) error { return nil }

func (Disabled) BulkInsertGlobalFileInstances(context.Context, []models.GlobalFileInstance) error {
	return nil
}

func (Disabled) GetBadTags() []string { return nil }

func (Disabled) IsBadTag(string) bool { return false }

func (Disabled) Close() error { return nil }
