package danzohttp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanq16/danzo-http/internal/utils"
)

func TestProbeRangeCapable(t *testing.T) {
	data := testData(3 * mib)
	srv := newRangeServer(t, data, `attachment; filename="report.pdf"`)

	res := Probe(context.Background(), NewClientRequester(utils.HTTPClientConfig{}), srv.URL+"/file", 4)
	require.NoError(t, res.Err)
	assert.Equal(t, int64(len(data)), res.Length)
	assert.True(t, res.CanRange)
	assert.Equal(t, "report.pdf", res.FileName)
	assert.Equal(t, []string{"", "bytes=1-3145727"}, srv.requests())
}

func TestProbeSingleThreadSkipsRangeCheck(t *testing.T) {
	srv := newRangeServer(t, testData(mib), "")

	res := Probe(context.Background(), NewClientRequester(utils.HTTPClientConfig{}), srv.URL, 1)
	assert.False(t, res.CanRange)
	assert.Equal(t, int64(mib), res.Length)
	assert.Len(t, srv.requests(), 1)
}

func TestProbeServerIgnoresRange(t *testing.T) {
	srv := newPlainServer(t, testData(mib))

	res := Probe(context.Background(), NewClientRequester(utils.HTTPClientConfig{}), srv.URL, 8)
	assert.False(t, res.CanRange)
	assert.Equal(t, int64(mib), res.Length)
	assert.ErrorIs(t, res.Err, utils.ErrRangeRequestsNotSupported)
}

func TestProbeOneByteResource(t *testing.T) {
	res := Probe(context.Background(), &fakeRequester{data: []byte("x"), ranged: true}, "u", 4)
	assert.False(t, res.CanRange)
	assert.Equal(t, int64(1), res.Length)
}

func TestProbeUnreachable(t *testing.T) {
	srv := newPlainServer(t, nil)
	url := srv.URL
	srv.Close()

	res := Probe(context.Background(), NewClientRequester(utils.HTTPClientConfig{}), url, 4)
	assert.Error(t, res.Err)
	assert.Zero(t, res.Length)
	assert.False(t, res.CanRange)
}
