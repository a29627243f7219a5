package notifyclickhouse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"centralrepo/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts notifications into a ClickHouse table via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the table layout; previous cases are joined for a String column.
type row struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	JobID         int64  `json:"job_id"`
	CaseUUID      string `json:"case_uid"`
	CaseName      string `json:"case_name"`
	DeviceID      string `json:"device_id"`
	FilePath      string `json:"file_path"`
	MD5           string `json:"md5"`
	PreviousCases string `json:"previous_cases"`
	Rule          string `json:"rule"`
	Severity      string `json:"severity"`
	Title         string `json:"title"`
	CreatedAt     string `json:"created_at"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "centralrepo_notifications"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(q)

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{endpoint: endpoint, headers: headers, client: &http.Client{Timeout: timeout}}, nil
}

// Notify inserts n as one row.
func (w *Writer) Notify(ctx context.Context, n *models.Notification) error {
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(row{
		ID:            n.ID,
		Kind:          string(n.Kind),
		JobID:         n.JobID,
		CaseUUID:      n.CaseUUID,
		CaseName:      n.CaseName,
		DeviceID:      n.DeviceID,
		FilePath:      n.FilePath,
		MD5:           n.MD5,
		PreviousCases: strings.Join(n.PreviousCases, ","),
		Rule:          n.Rule,
		Severity:      n.Severity,
		Title:         n.Title,
		CreatedAt:     created.UTC().Format("2006-01-02 15:04:05.000"),
	}); err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func quoteIdent(v string) string {
	return "`" + strings.ReplaceAll(v, "`", "") + "`"
}
