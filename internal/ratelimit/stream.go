// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/errs"
)

// LineStream produces a lazy sequence of lines from an HTTP response body,
// transparently decompressing gzip content, honoring ctx cancellation and
// an overall timeout, and raising errs.ErrEmptyResponseBody when the body
// yields no content at all. The RSS feed fallback reads its (large,
// sometimes gzip-served) feed documents through this instead of buffering
// them whole.
type LineStream struct {
	lines   chan string
	errCh   chan error
	cancel  context.CancelFunc
}

// StreamLines starts reading resp.Body on a background goroutine and
// returns a LineStream the caller drains with Next/Err. The response body
// is closed when streaming ends (success, error, or cancellation).
func StreamLines(ctx context.Context, resp *http.Response, totalTimeout time.Duration) *LineStream {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)

	ls := &LineStream{
		lines:  make(chan string, 16),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}

	go ls.run(ctx, resp)
	return ls
}

func (ls *LineStream) run(ctx context.Context, resp *http.Response) {
	defer close(ls.lines)
	defer resp.Body.Close()

	// Closing the body unblocks a Scan that is waiting on the network when
	// ctx is canceled or the total timeout expires.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = resp.Body.Close()
		case <-done:
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			ls.errCh <- fmt.Errorf("ratelimit: opening gzip stream: %w", err)
			return
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	// Feed exports can put a whole document on one line; allow generous
	// single-line growth before giving up.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	sawAny := false
	for scanner.Scan() {
		sawAny = true
		line := scanner.Text()
		select {
		case ls.lines <- line:
		case <-ctx.Done():
			ls.errCh <- ctx.Err()
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			ls.errCh <- ctxErr
			return
		}
		ls.errCh <- fmt.Errorf("ratelimit: scanning response body: %w", err)
		return
	}
	if !sawAny {
		ls.errCh <- errs.ErrEmptyResponseBody
		return
	}
	ls.errCh <- nil
}

// Next blocks for the next line. ok is false when the stream is exhausted
// (check Err afterward to distinguish clean EOF from failure).
func (ls *LineStream) Next() (line string, ok bool) {
	line, ok = <-ls.lines
	return line, ok
}

// Err returns the terminal error, if any, after Next has returned ok=false.
// Safe to call multiple times.
func (ls *LineStream) Err() error {
	select {
	case err := <-ls.errCh:
		if err != nil {
			ls.errCh <- err // keep it available for repeat callers
		}
		return err
	default:
		return nil
	}
}

// Close releases resources early if the caller abandons the stream before
// exhausting it.
func (ls *LineStream) Close() {
	ls.cancel()
}

// DoStream executes req under governor admission and returns a LineStream
// over the (possibly gzip-encoded) response body instead of buffering it.
// Streams are not replayable, so there is no retry: a transient failure
// surfaces to the caller, who decides whether to re-issue the request.
// The governor slot is released once the response body closes.
func (c *Client) DoStream(ctx context.Context, req *http.Request, totalTimeout time.Duration) (*LineStream, error) {
	release, err := c.governor.Acquire(ctx, c.family)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		release()
		return nil, fmt.Errorf("ratelimit: round trip: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.governor.NoteRetryAfter(c.family, resp.Header.Get("Retry-After"))
		_ = resp.Body.Close()
		release()
		return nil, fmt.Errorf("ratelimit: 429 from %s", c.family)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		release()
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("ratelimit: %d from %s", resp.StatusCode, c.family)
		}
		return nil, &errs.HTTPStatusError{StatusCode: resp.StatusCode, Message: stripProtocolPrefix(string(body))}
	}

	resp.Body = &releaseOnClose{ReadCloser: resp.Body, release: release}
	return StreamLines(ctx, resp, totalTimeout), nil
}

// releaseOnClose ties a governor slot's lifetime to the response body, so
// an admitted streaming call counts against the family's concurrency
// ceiling for as long as it is actually reading.
type releaseOnClose struct {
	io.ReadCloser
	release Release
	once    sync.Once
}

func (r *releaseOnClose) Close() error {
	defer r.once.Do(r.release)
	return r.ReadCloser.Close()
}
