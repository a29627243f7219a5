package store

import (
	"context"
	"errors"
	"fmt"

	"centralrepo/internal/logger"
	"centralrepo/pkg/models"
)

// EnsureCase returns the registered record for c, registering it first when
// absent. A concurrent registration of the same UUID is not an error.
func EnsureCase(ctx context.Context, s Store, c *models.Case) (*models.Case, error) {
	if !s.Enabled() {
		return c, nil
	}
	existing, err := s.GetCaseDetails(ctx, c.UUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.NewCase(ctx, c); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		logger.Infof("Case %s registered concurrently by another module instance", c.UUID)
	}

	registered, err := s.GetCaseDetails(ctx, c.UUID)
	if err != nil {
		return nil, err
	}
	if registered == nil {
		return nil, Wrap("ensure case", fmt.Errorf("case %s: %w", c.UUID, ErrNotFound))
	}
	return registered, nil
}

// EnsureDataSource returns the registered record for ds, registering it first
// when absent. A concurrent registration of the same device is not an error.
func EnsureDataSource(ctx context.Context, s Store, ds *models.DataSource) (*models.DataSource, error) {
	if !s.Enabled() {
		return ds, nil
	}
	existing, err := s.GetDataSourceDetails(ctx, ds.DeviceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.NewDataSource(ctx, ds); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		logger.Infof("Data source %s registered concurrently by another module instance", ds.DeviceID)
	}

	registered, err := s.GetDataSourceDetails(ctx, ds.DeviceID)
	if err != nil {
		return nil, err
	}
	if registered == nil {
		return nil, Wrap("ensure data source", fmt.Errorf("device %s: %w", ds.DeviceID, ErrNotFound))
	}
	return registered, nil
}
