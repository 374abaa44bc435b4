package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/livewatch-cli/livewatch/constant"
)

// probeBytes is how much of the response body is read to recognize a playlist.
const probeBytes = 512

// ErrStatus is wrapped by Probe when the server answers with an error status.
var ErrStatus = errors.New("unexpected status")

// Result describes one probed source.
type Result struct {
	URL         string
	Status      int
	ContentType string
	Latency     time.Duration

	// Playlist is set when the body starts like an HLS playlist.
	Playlist bool
}

// Probe requests the first bytes of url and reports how the server answered.
func Probe(ctx context.Context, client *http.Client, url string) (Result, error) {
	res := Result{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", probeBytes-1))
	req.Header.Set("User-Agent", constant.Livewatch+"/"+constant.Version)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	res.Latency = time.Since(start)
	res.Status = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode >= http.StatusBadRequest {
		return res, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, probeBytes))
	if err != nil {
		return res, err
	}
	res.Playlist = bytes.HasPrefix(bytes.TrimSpace(head), []byte("#EXTM3U"))
	return res, nil
}
