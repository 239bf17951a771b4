package danzohttp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/tanq16/danzo-http/internal/utils"
)

var validate = validator.New()

// ErrPaused is returned by Download when its context ends first. The temp files stay on
// disk and the next Download of the same URL and output path resumes from them.
var ErrPaused = errors.New("download paused")

// HTTPDownloader runs scheduler jobs as segmented transfers.
type HTTPDownloader struct {
	// Requester replaces the job's HTTP client when set.
	Requester Requester
}

func (d *HTTPDownloader) requester(job *utils.DanzoJob) Requester {
	if d.Requester != nil {
		return d.Requester
	}
	return NewClientRequester(job.HTTPClientConfig)
}

func (d *HTTPDownloader) ValidateJob(job *utils.DanzoJob) error {
	if err := validate.Var(job.URL, "required,http_url"); err != nil {
		return fmt.Errorf("invalid URL %q: %w", job.URL, err)
	}
	return nil
}

func (d *HTTPDownloader) BuildJob(ctx context.Context, job *utils.DanzoJob) error {
	job.HTTPClientConfig.HighThreadMode = job.Connections > 5
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}

	log := utils.GetLogger("http")
	probe := Probe(ctx, d.requester(job), job.URL, job.Connections)
	if probe.Err != nil {
		log.Debug().Err(probe.Err).Str("url", job.URL).Msg("Probe degraded")
	}
	if job.OutputPath == "" {
		name := probe.FileName
		if name == "" {
			name = utils.FileNameFromURL(job.URL)
		}
		job.OutputPath = filepath.Join(job.SaveDir, name)
	}

	// An existing file of the same size is treated as already downloaded
	if existing, err := os.Stat(job.OutputPath); err == nil {
		if probe.Length > 0 && existing.Size() == probe.Length {
			return fmt.Errorf("file already exists with same size")
		}
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}

	job.Metadata["fileSize"] = probe.Length
	job.Metadata["rangeSupported"] = probe.CanRange
	return nil
}

// Download runs the job to completion. Cancelling ctx pauses the transfer and returns
// ErrPaused once every worker has left.
func (d *HTTPDownloader) Download(ctx context.Context, job *utils.DanzoJob) error {
	log := utils.GetLogger("http").With().Str("url", job.URL).Logger()
	transfer := New(job.URL, Options{
		SavePath:         filepath.Dir(job.OutputPath),
		ID:               utils.StableTransferID(job.URL, job.OutputPath),
		ChunkSize:        job.Download.ChunkSize,
		BufferSize:       job.Download.BufferSize,
		RetryCount:       job.Download.RetryCount,
		Requester:        d.requester(job),
		HTTPClientConfig: job.HTTPClientConfig,
	})
	defer transfer.Dispose()

	events, unsubscribe := transfer.Subscribe(64)
	defer unsubscribe()
	// Pausing, not cancellation, governs the run so that temp files are kept intact.
	results := transfer.Start(context.Background(), job.Connections, filepath.Base(job.OutputPath))

	done := ctx.Done()
	var eta string
	var speed int64
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case EventSpeed:
				speed = ev.Speed
			case EventETA:
				eta = ev.ETA
			case EventProgress:
				if job.ProgressFunc != nil {
					job.ProgressFunc(utils.JobProgress{Downloaded: ev.Value, Total: ev.Max, Speed: speed, ETA: eta})
				}
			case EventState:
				if ev.State == Stopped && job.StreamFunc != nil {
					job.StreamFunc(fmt.Sprintf("Stopped: %s", ev.Message))
				}
			}

		case <-done:
			done = nil
			if err := transfer.Pause(); err != nil {
				log.Debug().Err(err).Msg("Pause rejected, transfer already settled")
			}

		case res := <-results:
			snap := transfer.Snapshot()
			if job.ProgressFunc != nil && res.State == Complete {
				job.ProgressFunc(utils.JobProgress{Downloaded: snap.Value, Total: snap.Max})
			}
			job.Metadata["totalDownloaded"] = snap.Value
			switch res.State {
			case Complete:
				log.Debug().Str("path", res.Path).Msg("Download complete")
				return nil
			case Stopped:
				log.Info().Str("workDir", transfer.WorkDir()).Msg("Download paused, temp files kept")
				return fmt.Errorf("%w: run again to resume", ErrPaused)
			default:
				if res.Err != nil {
					return fmt.Errorf("download failed: %w", res.Err)
				}
				return fmt.Errorf("download failed: %s", res.Message)
			}
		}
	}
}
