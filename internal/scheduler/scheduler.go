package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	danzohttp "github.com/tanq16/danzo-http/internal/downloaders/http"
	"github.com/tanq16/danzo-http/internal/output"
	"github.com/tanq16/danzo-http/internal/utils"
)

// downloaderRegistry maps job types to their respective downloader implementations
var downloaderRegistry = map[string]utils.Downloader{
	"http": &danzohttp.HTTPDownloader{},
}

// ErrJobsFailed is returned by Run when at least one job did not complete.
var ErrJobsFailed = errors.New("encountered failed operation(s)")

// Run executes the scheduler with the given jobs and number of workers. Cancelling ctx
// pauses running downloads; jobs not yet started are skipped.
func Run(ctx context.Context, jobs []utils.DanzoJob, numWorkers int) error {
	outputMgr := output.NewManager()
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()
	return run(ctx, jobs, numWorkers, outputMgr)
}

func run(ctx context.Context, jobs []utils.DanzoJob, numWorkers int, outputMgr *output.Manager) error {
	jobCh := make(chan utils.DanzoJob, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var failed atomic.Int32
	var wg sync.WaitGroup
	for range max(numWorkers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if !processJob(ctx, job, outputMgr) {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, n, len(jobs))
	}
	return nil
}

// processJob validates, builds and downloads one job, reporting each step to outputMgr.
func processJob(ctx context.Context, job utils.DanzoJob, outputMgr *output.Manager) bool {
	log := utils.GetLogger("scheduler").With().Str("url", job.URL).Logger()
	funcID := outputMgr.Register(job.URL)
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}

	if ctx.Err() != nil {
		outputMgr.ReportError(funcID, fmt.Errorf("skipped: %w", ctx.Err()))
		return false
	}

	downloader, exists := downloaderRegistry[job.JobType]
	if !exists {
		outputMgr.ReportError(funcID, fmt.Errorf("unknown job type: %s", job.JobType))
		outputMgr.SetMessage(funcID, fmt.Sprintf("Error: Unknown job type %s", job.JobType))
		return false
	}

	outputMgr.SetStatus(funcID, "pending")
	outputMgr.SetMessage(funcID, fmt.Sprintf("Validating %s job", job.JobType))
	if err := downloader.ValidateJob(&job); err != nil {
		outputMgr.ReportError(funcID, fmt.Errorf("validation failed: %v", err))
		outputMgr.SetMessage(funcID, fmt.Sprintf("Validation failed for %s", job.URL))
		return false
	}

	outputMgr.SetMessage(funcID, fmt.Sprintf("Building %s job", job.JobType))
	if err := downloader.BuildJob(ctx, &job); err != nil {
		outputMgr.ReportError(funcID, fmt.Errorf("build failed: %v", err))
		outputMgr.SetMessage(funcID, fmt.Sprintf("Build failed for %s", job.URL))
		return false
	}

	outputMgr.SetMessage(funcID, fmt.Sprintf("Downloading %s", job.OutputPath))
	job.ProgressFunc = func(p utils.JobProgress) {
		outputMgr.AddProgressBarToStream(funcID, p)
	}
	job.StreamFunc = func(line string) {
		outputMgr.AddStreamLine(funcID, line)
	}

	if err := downloader.Download(ctx, &job); err != nil {
		log.Debug().Err(err).Msg("Download did not complete")
		outputMgr.ReportError(funcID, err)
		if errors.Is(err, danzohttp.ErrPaused) {
			outputMgr.SetMessage(funcID, fmt.Sprintf("Paused %s", job.OutputPath))
		} else {
			outputMgr.SetMessage(funcID, fmt.Sprintf("Download failed for %s", job.OutputPath))
		}
		return false
	}

	outputMgr.Complete(funcID, fmt.Sprintf("Completed %s", job.OutputPath))
	return true
}
