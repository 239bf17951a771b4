package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danzo_bytes_downloaded_total",
		Help: "Total bytes written to segment temp files",
	})

	ActiveSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "danzo_active_segments",
		Help: "Segments currently held by a worker",
	})

	SegmentsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danzo_segments_completed_total",
		Help: "Total number of segments downloaded in full",
	})

	SegmentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danzo_segments_failed_total",
		Help: "Total number of segments that exhausted their retries",
	})

	SegmentsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danzo_segments_resumed_total",
		Help: "Total number of segments found complete on disk",
	})

	SegmentRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danzo_segment_retries_total",
		Help: "Total number of segment retry attempts",
	})

	TransfersFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danzo_transfers_finished_total",
		Help: "Transfers that reached a terminal state",
	}, []string{"state"})

	MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "danzo_merge_duration_seconds",
		Help:    "Time spent concatenating segments into the final file",
		Buckets: prometheus.DefBuckets,
	})
)
