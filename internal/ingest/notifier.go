package ingest

import (
	"context"
	"strings"

	"centralrepo/internal/logger"
	"centralrepo/pkg/models"
)

// Notifier posts found-artifact notifications and operator warnings.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
	Close() error
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct{}

// Notify logs n.
func (LogNotifier) Notify(_ context.Context, n *models.Notification) error {
	if n.Kind == models.KindWarning {
		logger.Warnf("%s: %s", n.Title, n.Message)
		return nil
	}
	logger.Infof("[%s] %s file=%s md5=%s previous_cases=%s",
		n.Kind, n.Title, n.FilePath, n.MD5, strings.Join(n.PreviousCases, ","))
	return nil
}

// Close is a no-op.
func (LogNotifier) Close() error { return nil }
