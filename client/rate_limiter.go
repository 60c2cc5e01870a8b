package client

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

var (
	uploadLimiter   *rate.Limiter
	uploadLimiterMu sync.RWMutex
)

// SetUploadRateLimit caps request body throughput in bytes per second for
// all clients. A value <= 0 removes the cap.
func SetUploadRateLimit(bytesPerSecond int64) {
	uploadLimiterMu.Lock()
	defer uploadLimiterMu.Unlock()
	if bytesPerSecond <= 0 {
		uploadLimiter = nil
		return
	}
	if uploadLimiter == nil {
		uploadLimiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
		return
	}
	uploadLimiter.SetLimit(rate.Limit(bytesPerSecond))
	uploadLimiter.SetBurst(int(bytesPerSecond))
}

// throttledReader reads at most one burst at a time and waits for the
// limiter before returning the bytes.
type throttledReader struct {
	ctx   context.Context
	under io.Reader
	lim   *rate.Limiter
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	if burst := tr.lim.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	n, err := tr.under.Read(p)
	if n > 0 {
		if werr := tr.lim.WaitN(tr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// wrapWithUploadRateLimiter returns r unchanged when no limit is set.
func wrapWithUploadRateLimiter(ctx context.Context, r io.Reader) io.Reader {
	uploadLimiterMu.RLock()
	lim := uploadLimiter
	uploadLimiterMu.RUnlock()

	if lim == nil {
		return r
	}
	return &throttledReader{ctx: ctx, under: r, lim: lim}
}
