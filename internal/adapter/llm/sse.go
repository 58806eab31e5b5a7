package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"smart-query/internal/domain"
)

var (
	ssePrefix = []byte("data: ")
	sseDone   = []byte("[DONE]")
)

// parseSSEStream turns an SSE response body into a channel of deltas.
// decode converts one data payload to a delta; payloads it cannot parse are
// skipped. The channel closes when the stream ends or ctx is cancelled, and
// the body is always closed.
func parseSSEStream(ctx context.Context, body io.ReadCloser, decode func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Bytes()
			if !bytes.HasPrefix(line, ssePrefix) {
				// Empty lines, comments and event/id fields carry no payload.
				continue
			}
			data := bytes.TrimPrefix(line, ssePrefix)

			if bytes.Equal(data, sseDone) {
				ch <- domain.StreamDelta{Done: true}
				return
			}

			delta, err := decode(data)
			if err != nil || delta == nil {
				continue
			}

			select {
			case ch <- *delta:
			case <-ctx.Done():
				return
			}
			if delta.Done {
				return
			}
		}

		// On a transport error mid-stream, emit a final Done so consumers
		// do not block waiting for more deltas.
		if scanner.Err() != nil {
			select {
			case ch <- domain.StreamDelta{Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
