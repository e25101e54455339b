package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/sogretobot/pkg/models"
)

var completed = time.Date(2026, 4, 2, 7, 0, 0, 0, time.UTC)

func entries() []models.HistoryEntry {
	return []models.HistoryEntry{
		{ID: 1, UserID: 42, StageID: 1, StepID: 1, Action: "start_practice", CompletedAt: completed},
		{ID: 2, UserID: 42, StageID: 1, StepID: 2, Action: "next_step", CompletedAt: completed.Add(time.Minute)},
		{ID: 3, UserID: 7, StageID: 3, StepID: 9, Day: 2, Action: "daily_choice_A", Response: "A", CompletedAt: completed.Add(time.Hour)},
	}
}

type fakeSource struct {
	since time.Time
	user  int64
}

func (s *fakeSource) ListAll(_ context.Context, since time.Time) ([]models.HistoryEntry, error) {
	s.since = since
	return entries(), nil
}

func (s *fakeSource) ListByUser(_ context.Context, userID int64) ([]models.HistoryEntry, error) {
	s.user = userID
	var out []models.HistoryEntry
	for _, e := range entries() {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "История", entries()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("История")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"3", "7", "3", "9", "2", "daily_choice_A", "A", "2026-04-02T08:00:00Z"}, rows[3])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"2", "42", "1", "2", "0", "next_step", "", "2026-04-02T07:01:00Z"}, records[2])
}

func TestExportHistoryPicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	since := completed.Add(-24 * time.Hour)

	res, err := ExportHistory(context.Background(), src, ExportConfig{FilePath: filepath.Join(dir, "h.csv"), Since: since})
	require.NoError(t, err)
	assert.Equal(t, &ExportResult{Rows: 3, Users: 2}, res)
	assert.Equal(t, since, src.since)

	data, err := os.ReadFile(filepath.Join(dir, "h.csv"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("id,user_id,")))

	cfg := DefaultExportConfig()
	cfg.FilePath = filepath.Join(dir, "h.xlsx")
	_, err = ExportHistory(context.Background(), src, cfg)
	require.NoError(t, err)

	f, err := excelize.OpenFile(cfg.FilePath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestExportHistoryOfOneUser(t *testing.T) {
	src := &fakeSource{}
	path := filepath.Join(t.TempDir(), "user.csv")

	res, err := ExportHistory(context.Background(), src, ExportConfig{
		FilePath: path,
		UserID:   42,
		Since:    completed.Add(30 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), src.user)
	assert.Equal(t, &ExportResult{Rows: 1, Users: 1}, res)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "next_step", records[1][5])
}
