package danzohttp

import (
	"context"
	"fmt"

	"github.com/tanq16/danzo-http/internal/utils"
)

// ProbeResult describes what the server told us about the resource. Err is informational:
// a failed probe degrades to a single non-ranged download and is never fatal.
type ProbeResult struct {
	Length   int64
	CanRange bool
	FileName string
	Err      error
}

// Probe issues a plain request for the length and disposition, then, when more than one
// thread is wanted, asks for bytes 1..length-1. Range support is accepted only when the
// server answers with exactly length-1 bytes; a 2xx status alone proves nothing.
func Probe(ctx context.Context, r Requester, url string, threadCount int) ProbeResult {
	base, err := r.Probe(ctx, url, nil)
	if err != nil {
		return ProbeResult{Err: fmt.Errorf("probe request: %w", err)}
	}
	res := ProbeResult{
		Length:   base.ContentLength,
		FileName: utils.FileNameFromDisposition(base.Header.Get("Content-Disposition")),
	}
	if threadCount <= 1 || res.Length <= 0 {
		return res
	}
	// A one byte resource cannot express the 1..length-1 probe.
	if res.Length == 1 {
		res.Err = utils.ErrRangeRequestsNotSupported
		return res
	}
	ranged, err := r.Probe(ctx, url, &ByteRange{Start: 1, End: res.Length - 1})
	if err != nil {
		res.Err = fmt.Errorf("range probe: %w", err)
		return res
	}
	if ranged.ContentLength != res.Length-1 {
		res.Err = fmt.Errorf("%w: asked for %d bytes, got %d", utils.ErrRangeRequestsNotSupported, res.Length-1, ranged.ContentLength)
		return res
	}
	res.CanRange = true
	return res
}
