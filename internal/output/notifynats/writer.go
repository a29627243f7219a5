package notifynats

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"centralrepo/pkg/models"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "centralrepo.notifications"

// Writer publishes notifications to a NATS subject, suffixed with the kind.
type Writer struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// NewWriter connects to url.
func NewWriter(url, subject string) (*Writer, error) {
	nc, err := nats.Connect(url, nats.Name("centralrepo-notifier"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	w := NewWriterWithConn(nc, subject)
	w.owned = true
	return w, nil
}

// NewWriterWithConn publishes over an existing connection.
func NewWriterWithConn(nc *nats.Conn, subject string) *Writer {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Writer{nc: nc, subject: subject}
}

// Subject returns the subject n is published on.
func (w *Writer) Subject(n *models.Notification) string {
	return w.subject + "." + string(n.Kind)
}

// Notify publishes n.
func (w *Writer) Notify(_ context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := w.nc.Publish(w.Subject(n), data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes an owned connection.
func (w *Writer) Close() error {
	if w.nc == nil {
		return nil
	}
	err := w.nc.Flush()
	if w.owned {
		w.nc.Close()
	}
	return err
}
