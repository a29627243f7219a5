package notifyjson

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/pkg/models"
)

func TestWriterAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "notifications.jsonl")

	for i, kind := range []models.NotificationKind{models.KindCorrelatedNotable, models.KindGlobalNotable} {
		w, err := NewWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Notify(context.Background(), &models.Notification{
			ID:            "n" + string(rune('0'+i)),
			Kind:          kind,
			MD5:           "abc123",
			PreviousCases: []string{"CaseY"},
		}))
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []models.Notification
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var n models.Notification
		require.NoError(t, json.Unmarshal(sc.Bytes(), &n))
		got = append(got, n)
	}
	require.Len(t, got, 2)
	assert.Equal(t, models.KindCorrelatedNotable, got[0].Kind)
	assert.Equal(t, models.KindGlobalNotable, got[1].Kind)
	assert.Equal(t, []string{"CaseY"}, got[0].PreviousCases)
}
