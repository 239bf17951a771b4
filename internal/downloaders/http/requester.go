package danzohttp

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/danzo-http/internal/utils"
)

// ByteRange is an inclusive HTTP byte range.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// ProbeResponse is the header-only view of a probe request.
type ProbeResponse struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64 // 0 when the server did not declare one
}

// StreamResponse is an open body stream. The caller must close Body.
type StreamResponse struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// Requester is the slice of an HTTP stack the downloader needs. Both methods return an
// error only for transport failures; status handling is left to the caller, except that
// Probe rejects non-2xx answers.
type Requester interface {
	Probe(ctx context.Context, url string, r *ByteRange) (*ProbeResponse, error)
	Open(ctx context.Context, url string, r *ByteRange) (*StreamResponse, error)
}

// ClientRequester implements Requester on top of a danzo HTTP client.
type ClientRequester struct {
	Client utils.HTTPDoer
}

func NewClientRequester(cfg utils.HTTPClientConfig) *ClientRequester {
	return &ClientRequester{Client: utils.NewDanzoHTTPClient(cfg)}
}

func (c *ClientRequester) do(ctx context.Context, url string, r *ByteRange) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if r != nil {
		req.Header.Set("Range", r.Header())
	}
	req.Header.Set("Connection", "keep-alive")
	return c.Client.Do(req)
}

func (c *ClientRequester) Probe(ctx context.Context, url string, r *ByteRange) (*ProbeResponse, error) {
	resp, err := c.do(ctx, url, r)
	if err != nil {
		return nil, err
	}
	// The body is never read; closing early drops the connection for large resources.
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return &ProbeResponse{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: max(resp.ContentLength, 0),
	}, nil
}

func (c *ClientRequester) Open(ctx context.Context, url string, r *ByteRange) (*StreamResponse, error) {
	resp, err := c.do(ctx, url, r)
	if err != nil {
		return nil, err
	}
	return &StreamResponse{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: max(resp.ContentLength, 0),
		Body:          resp.Body,
	}, nil
}
