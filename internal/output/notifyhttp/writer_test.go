package notifyhttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/pkg/models"
)

func TestWriterPostsNotification(t *testing.T) {
	var got []models.Notification
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Notify(context.Background(), &models.Notification{ID: "1", Kind: models.KindGlobalNotable, MD5: "ff"}))
	require.Len(t, got, 1)
	assert.Equal(t, "ff", got[0].MD5)
	assert.Equal(t, "Bearer t", auth)
}

func TestWriterReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	assert.Error(t, w.Notify(context.Background(), &models.Notification{ID: "1"}))

	_, err = NewWriter(Config{})
	assert.Error(t, err)
}
