package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/gateway"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/notify"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

type memoryHistory struct {
	records []service.DownloadRecord
	mu      sync.Mutex
}

func (h *memoryHistory) SaveDownload(_ context.Context, r service.DownloadRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *memoryHistory) GetDownloads(_ context.Context, projectID int64) ([]service.DownloadRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []service.DownloadRecord
	for _, r := range h.records {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestFileName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"results/task-1/report.pdf", "report.pdf"},
		{"report.xlsx", "report.xlsx"},
		{"results/task-1/", "download"},
		{"", "download"},
		{"results/..", "download"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.key))
		})
	}
}

func sampleFiles() model.ResultFiles {
	return model.ResultFiles{
		TaskID:     "task-1",
		PdfS3Key:   "results/task-1/report.pdf",
		ExcelS3Key: "results/task-1/report.xlsx",
	}
}

func TestDownloader_FetchAll(t *testing.T) {
	gw := gateway.NewMockClient()
	gw.DownloadResultFn = func(_ context.Context, _, fileName string, dst io.Writer) (int64, error) {
		n, err := io.Copy(dst, strings.NewReader("content of "+fileName))
		return n, err
	}
	history := &memoryHistory{}
	rec := &notify.Recorder{}
	dir := t.TempDir()

	d := NewDownloader(NewGatewaySource(gw), WithHistory(history), WithNotifier(rec))
	results, err := d.Fetch(context.Background(), 42, sampleFiles(), nil, dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, model.ExportPDF, results[0].Kind)
	assert.Equal(t, model.ExportExcel, results[1].Kind)

	data, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "content of report.pdf", string(data))
	assert.Equal(t, int64(len(data)), results[0].Bytes)

	records, err := history.GetDownloads(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	assert.Contains(t, rec.Messages(model.NotificationInfo), "Initiating download for report.pdf...")
	assert.Contains(t, rec.Messages(model.NotificationSuccess), "Download of report.xlsx complete!")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must be cleaned up")
}

func TestDownloader_FetchSelectedKind(t *testing.T) {
	gw := gateway.NewMockClient()
	d := NewDownloader(NewGatewaySource(gw))

	results, err := d.Fetch(context.Background(), 1, sampleFiles(), []model.ExportKind{model.ExportExcel}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, gw.DownloadCalls, 1)
	assert.Equal(t, gateway.DownloadCall{TaskID: "task-1", FileName: "report.xlsx"}, gw.DownloadCalls[0])
}

func TestDownloader_NothingAvailable(t *testing.T) {
	d := NewDownloader(NewGatewaySource(gateway.NewMockClient()))

	_, err := d.Fetch(context.Background(), 1, model.ResultFiles{TaskID: "t"}, nil, t.TempDir())
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = d.Fetch(context.Background(), 1, sampleFiles(), []model.ExportKind{model.ExportCSV}, t.TempDir())
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = d.Fetch(context.Background(), 1, model.ResultFiles{PdfS3Key: "a.pdf"}, nil, t.TempDir())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDownloader_FailureLeavesNoFile(t *testing.T) {
	gw := gateway.NewMockClient()
	gw.DownloadResultFn = func(_ context.Context, _, fileName string, dst io.Writer) (int64, error) {
		if fileName == "report.xlsx" {
			_, _ = dst.Write([]byte("partial"))
			return 7, errors.New("connection reset")
		}
		return io.Copy(dst, strings.NewReader("ok"))
	}
	rec := &notify.Recorder{}
	dir := t.TempDir()

	d := NewDownloader(NewGatewaySource(gw), WithNotifier(rec))
	_, err := d.Fetch(context.Background(), 1, sampleFiles(), []model.ExportKind{model.ExportExcel}, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.xlsx")

	_, statErr := os.Stat(filepath.Join(dir, "report.xlsx"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Len(t, rec.Messages(model.NotificationError), 1)
}

func TestDownloader_Progress(t *testing.T) {
	gw := gateway.NewMockClient()
	gw.DownloadResultFn = func(_ context.Context, _, _ string, dst io.Writer) (int64, error) {
		return io.Copy(dst, bytes.NewReader(make([]byte, 2048)))
	}
	var out bytes.Buffer

	d := NewDownloader(NewGatewaySource(gw), WithProgress(&out))
	results, err := d.Fetch(context.Background(), 1, sampleFiles(), nil, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestNewObjectStore_RequiresBucket(t *testing.T) {
	_, err := NewObjectStore(ObjectStoreConfig{Endpoint: "localhost:9000"})
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	store, err := NewObjectStore(ObjectStoreConfig{Endpoint: "localhost:9000", Bucket: "susa"})
	require.NoError(t, err)
	assert.NotNil(t, store)
}
