// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
)

func TestStreamLinesPlainText(t *testing.T) {
	resp := &http.Response{
		Body:   io.NopCloser(bytes.NewBufferString("one\ntwo\nthree\n")),
		Header: http.Header{},
	}
	ls := StreamLines(context.Background(), resp, time.Second)

	var got []string
	for {
		line, ok := ls.Next()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestStreamLinesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("alpha\nbeta\n"))
	require.NoError(t, gz.Close())

	header := http.Header{}
	header.Set("Content-Encoding", "gzip")
	resp := &http.Response{Body: io.NopCloser(&buf), Header: header}

	ls := StreamLines(context.Background(), resp, time.Second)
	var got []string
	for {
		line, ok := ls.Next()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, []string{"alpha", "beta"}, got)
}

func TestStreamLinesEmptyBodyRaisesTypedError(t *testing.T) {
	resp := &http.Response{Body: io.NopCloser(bytes.NewBuffer(nil)), Header: http.Header{}}
	ls := StreamLines(context.Background(), resp, time.Second)

	_, ok := ls.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, ls.Err(), errs.ErrEmptyResponseBody)
}

func TestStreamLinesHonorsCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	resp := &http.Response{Body: pr, Header: http.Header{}}

	ctx, cancel := context.WithCancel(context.Background())
	ls := StreamLines(ctx, resp, time.Minute)

	go func() {
		_, _ = pw.Write([]byte("partial-line-no-newline"))
	}()

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("stream did not observe cancellation in time")
		default:
		}
		if _, ok := ls.Next(); !ok {
			break
		}
	}
	err := ls.Err()
	assert.True(t, errors.Is(err, context.Canceled) || err == nil)
	_ = pw.Close()
}

func testServerGzip(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_, _ = gz.Write([]byte(body))
	}))
}

func TestStreamLinesFromRealHTTPResponse(t *testing.T) {
	srv := testServerGzip(t, "a\nb\nc\n")
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	ls := StreamLines(context.Background(), resp, time.Second)
	var got []string
	for {
		line, ok := ls.Next()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDoStreamDrainsUnderGovernor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "first\nsecond\n")
	}))
	defer srv.Close()

	gov := NewGovernor()
	gov.Configure("stream-test", FamilyConfig{RequestsPerSecond: 1000, Burst: 1000})
	c := NewClient(gov, "stream-test", &http.Client{}, DefaultRetryConfig())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	ls, err := c.DoStream(context.Background(), req, time.Second)
	require.NoError(t, err)
	defer ls.Close()

	var got []string
	for {
		line, ok := ls.Next()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.NoError(t, ls.Err())
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestDoStreamPermanent4xxFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "feed not found", http.StatusNotFound)
	}))
	defer srv.Close()

	gov := NewGovernor()
	gov.Configure("stream-test", FamilyConfig{RequestsPerSecond: 1000, Burst: 1000})
	c := NewClient(gov, "stream-test", &http.Client{}, DefaultRetryConfig())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	_, err = c.DoStream(context.Background(), req, time.Second)
	var statusErr *errs.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
