package danzohttp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/danzo-http/internal/utils"
)

func TestValidateJob(t *testing.T) {
	d := &HTTPDownloader{}
	assert.NoError(t, d.ValidateJob(&utils.DanzoJob{URL: "https://example.com/file.iso"}))
	assert.Error(t, d.ValidateJob(&utils.DanzoJob{URL: "ftp://example.com/file.iso"}))
	assert.Error(t, d.ValidateJob(&utils.DanzoJob{URL: ""}))
}

func TestBuildJobResolvesName(t *testing.T) {
	data := testData(64 * kib)
	srv := newRangeServer(t, data, `attachment; filename="report.pdf"`)
	dir := t.TempDir()

	job := &utils.DanzoJob{URL: srv.URL + "/dl?id=7", SaveDir: dir, Connections: 4}
	require.NoError(t, (&HTTPDownloader{}).BuildJob(context.Background(), job))
	assert.Equal(t, filepath.Join(dir, "report.pdf"), job.OutputPath)
	assert.Equal(t, int64(len(data)), job.Metadata["fileSize"])
	assert.Equal(t, true, job.Metadata["rangeSupported"])
}

func TestBuildJobExistingFile(t *testing.T) {
	data := testData(64 * kib)
	srv := newRangeServer(t, data, "")
	dir := t.TempDir()
	out := filepath.Join(dir, "file.bin")

	require.NoError(t, os.WriteFile(out, data, 0644))
	job := &utils.DanzoJob{URL: srv.URL + "/file.bin", OutputPath: out, Connections: 2}
	assert.Error(t, (&HTTPDownloader{}).BuildJob(context.Background(), job))

	require.NoError(t, os.WriteFile(out, data[:10], 0644))
	job = &utils.DanzoJob{URL: srv.URL + "/file.bin", OutputPath: out, Connections: 2}
	require.NoError(t, (&HTTPDownloader{}).BuildJob(context.Background(), job))
	assert.Equal(t, filepath.Join(dir, "file-(1).bin"), job.OutputPath)
}

func TestDownloadJob(t *testing.T) {
	data := testData(3*mib + 5)
	srv := newRangeServer(t, data, "")
	out := filepath.Join(t.TempDir(), "nested", "out.bin")

	var lastValue, lastMax int64
	job := &utils.DanzoJob{
		URL:         srv.URL + "/file",
		OutputPath:  out,
		Connections: 4,
		Metadata:    map[string]any{},
		Download:    utils.DownloadSettings{ChunkSize: mib},
		ProgressFunc: func(p utils.JobProgress) {
			lastValue, lastMax = p.Downloaded, p.Total
		},
	}
	d := &HTTPDownloader{}
	require.NoError(t, d.BuildJob(context.Background(), job))
	require.NoError(t, d.Download(context.Background(), job))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), lastValue)
	assert.Equal(t, int64(len(data)), lastMax)

	// the stable working directory is gone after a successful merge
	assert.NoDirExists(t, filepath.Join(filepath.Dir(out), utils.StableTransferID(job.URL, out)))
}

func TestDownloadJobCancelledKeepsTempFiles(t *testing.T) {
	const half = 128 * kib
	data := testData(2 * mib)
	srv := newGatedServer(t, data, half)
	out := filepath.Join(t.TempDir(), "out.bin")
	job := &utils.DanzoJob{
		URL:         srv.URL + "/file",
		OutputPath:  out,
		Connections: 2,
		Metadata:    map[string]any{},
		Download:    utils.DownloadSettings{ChunkSize: mib},
	}

	ctx, cancel := context.WithCancel(context.Background())
	var progressed bool
	var speed int64
	job.ProgressFunc = func(p utils.JobProgress) {
		if p.Downloaded >= 2*half && !progressed {
			progressed = true
			speed = p.Speed
			cancel()
			srv.open()
		}
	}
	err := (&HTTPDownloader{}).Download(ctx, job)
	require.ErrorIs(t, err, ErrPaused)
	// the report that crossed the threshold carries the sampled rate of that interval
	assert.Positive(t, speed)
	assert.NoFileExists(t, out)
	assert.DirExists(t, filepath.Join(filepath.Dir(out), utils.StableTransferID(job.URL, out)))
}
