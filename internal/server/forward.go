package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxUpstreamReply = 4 << 20

// forwarder posts one JSON body to the spreadsheet script. It never retries.
type forwarder struct {
	url     string
	client  *http.Client
	timeout time.Duration
	log     *zap.Logger
}

func (f *forwarder) forward(ctx context.Context, payload []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	res, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("upstream unreachable", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return 0, nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxUpstreamReply))
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream reply: %w", err)
	}
	f.log.Info("upstream replied",
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res.StatusCode, body, nil
}
