package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	sig "github.com/quyphuc2111/lanpeek/pkg/signal"
)

// dialWithRetry connects to the signaling server, retrying briefly so an
// embedded server has time to start listening.
func dialWithRetry(ctx context.Context, url string, log *zap.Logger) (*sig.ClientConn, error) {
	var lastErr error
	for attempt := 0; attempt < 20; attempt++ {
		conn, err := sig.Dial(url, log)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connect to %s: %w", url, lastErr)
}
