package utils

import "context"

type Downloader interface {
	ValidateJob(job *DanzoJob) error
	BuildJob(ctx context.Context, job *DanzoJob) error
	Download(ctx context.Context, job *DanzoJob) error
}

// JobProgress is one progress report of a running job. Speed is bytes per second over the
// last sample; ETA is empty until an estimate exists.
type JobProgress struct {
	Downloaded int64
	Total      int64 // 0 when unknown
	Speed      int64
	ETA        string
}

type DanzoJob struct {
	JobType          string
	OutputPath       string
	SaveDir          string // directory for an inferred OutputPath
	ProgressFunc     func(p JobProgress)
	StreamFunc       func(line string)
	URL              string
	Connections      int
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
	Download         DownloadSettings
}

// DownloadSettings carries the segmented transfer knobs from config to a downloader.
type DownloadSettings struct {
	ChunkSize  int64
	BufferSize int
	RetryCount int
}

type DownloadEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	URL        string `yaml:"link"`
}
