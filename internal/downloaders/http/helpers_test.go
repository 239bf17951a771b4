package danzohttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	kib = 1024
	mib = 1024 * kib
)

func testData(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	return data
}

// rangeServer serves data with full Range support via http.ServeContent and records every
// Range header it sees.
type rangeServer struct {
	*httptest.Server
	mu     sync.Mutex
	ranges []string
}

func newRangeServer(t *testing.T, data []byte, disposition string) *rangeServer {
	rs := &rangeServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.ranges = append(rs.ranges, r.Header.Get("Range"))
		rs.mu.Unlock()
		if disposition != "" {
			w.Header().Set("Content-Disposition", disposition)
		}
		http.ServeContent(w, r, "", time.Time{}, newReader(data))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}

func (rs *rangeServer) requests() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.ranges...)
}

// newPlainServer ignores Range headers and always answers 200 with the full body.
func newPlainServer(t *testing.T, data []byte) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func parseRange(header string) (start, end int64, ok bool) {
	if !strings.HasPrefix(header, "bytes=") {
		return 0, 0, false
	}
	_, err := fmt.Sscanf(header, "bytes=%d-%d", &start, &end)
	return start, end, err == nil
}

// fakeRequester serves data from memory. The first failOpens calls to Open fail with a
// transport error; with panicOpen set every Open panics.
type fakeRequester struct {
	data      []byte
	ranged    bool
	failOpens int
	panicOpen bool

	mu     sync.Mutex
	opens  int
	ranges []*ByteRange
}

func (f *fakeRequester) Probe(ctx context.Context, url string, r *ByteRange) (*ProbeResponse, error) {
	length := int64(len(f.data))
	if r != nil && f.ranged {
		length = r.Len()
	}
	return &ProbeResponse{StatusCode: http.StatusOK, Header: http.Header{}, ContentLength: length}, nil
}

func (f *fakeRequester) Open(ctx context.Context, url string, r *ByteRange) (*StreamResponse, error) {
	f.mu.Lock()
	f.opens++
	f.ranges = append(f.ranges, r)
	opens := f.opens
	f.mu.Unlock()
	if f.panicOpen {
		panic("requester exploded")
	}
	if opens <= f.failOpens {
		return nil, errors.New("connection reset")
	}
	if r == nil || !f.ranged {
		return &StreamResponse{
			StatusCode:    http.StatusOK,
			ContentLength: int64(len(f.data)),
			Body:          io.NopCloser(bytes.NewReader(f.data)),
		}, nil
	}
	body := f.data[r.Start : r.End+1]
	return &StreamResponse{
		StatusCode:    http.StatusPartialContent,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func (f *fakeRequester) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}
