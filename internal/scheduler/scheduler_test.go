package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/danzo-http/internal/output"
	"github.com/tanq16/danzo-http/internal/utils"
)

type fakeDownloader struct {
	downloads atomic.Int32
	fail      map[string]error
}

func (f *fakeDownloader) ValidateJob(job *utils.DanzoJob) error {
	if job.URL == "" {
		return errors.New("empty url")
	}
	return nil
}

func (f *fakeDownloader) BuildJob(ctx context.Context, job *utils.DanzoJob) error {
	if job.OutputPath == "" {
		job.OutputPath = "out.bin"
	}
	return nil
}

func (f *fakeDownloader) Download(ctx context.Context, job *utils.DanzoJob) error {
	f.downloads.Add(1)
	job.ProgressFunc(utils.JobProgress{Downloaded: 5, Total: 10, Speed: 5, ETA: "00:01"})
	return f.fail[job.URL]
}

func withRegistry(t *testing.T, d utils.Downloader) {
	saved := downloaderRegistry
	downloaderRegistry = map[string]utils.Downloader{"http": d}
	t.Cleanup(func() { downloaderRegistry = saved })
}

func TestRunAllSucceed(t *testing.T) {
	fake := &fakeDownloader{}
	withRegistry(t, fake)
	jobs := []utils.DanzoJob{
		{JobType: "http", URL: "https://example.com/1"},
		{JobType: "http", URL: "https://example.com/2"},
		{JobType: "http", URL: "https://example.com/3"},
	}
	mgr := output.NewManagerTo(&bytes.Buffer{})
	require.NoError(t, run(context.Background(), jobs, 2, mgr))
	assert.Equal(t, int32(3), fake.downloads.Load())

	success, failures, total := mgr.Counts()
	assert.Equal(t, 3, success)
	assert.Equal(t, 0, failures)
	assert.Equal(t, 3, total)
}

func TestRunReportsFailures(t *testing.T) {
	fake := &fakeDownloader{fail: map[string]error{"https://example.com/bad": errors.New("nope")}}
	withRegistry(t, fake)
	jobs := []utils.DanzoJob{
		{JobType: "http", URL: "https://example.com/good"},
		{JobType: "http", URL: "https://example.com/bad"},
		{JobType: "ftp", URL: "ftp://example.com/x"},
		{JobType: "http", URL: ""},
	}
	mgr := output.NewManagerTo(&bytes.Buffer{})
	err := run(context.Background(), jobs, 1, mgr)
	require.ErrorIs(t, err, ErrJobsFailed)
	assert.Equal(t, int32(2), fake.downloads.Load())

	success, failures, _ := mgr.Counts()
	assert.Equal(t, 1, success)
	assert.Equal(t, 3, failures)
}

func TestRunSkipsAfterCancel(t *testing.T) {
	fake := &fakeDownloader{}
	withRegistry(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mgr := output.NewManagerTo(&bytes.Buffer{})
	err := run(ctx, []utils.DanzoJob{{JobType: "http", URL: "https://example.com/1"}}, 1, mgr)
	require.ErrorIs(t, err, ErrJobsFailed)
	assert.Zero(t, fake.downloads.Load())
}
