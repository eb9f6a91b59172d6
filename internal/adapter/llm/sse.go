package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"agentgw/internal/domain"
)

// sseScanBuffer sizes the line scanner; argument deltas for large tool
// calls can make individual data lines long.
const sseScanBuffer = 1024 * 1024

var sseDataPrefix = []byte("data:")

// parseSSEStream converts an SSE response body into a StreamDelta channel.
// Each data payload goes through the provider-specific parseLine function;
// lines it cannot parse are dropped. The channel always terminates with
// either a Done delta or an Err delta: a read failure before the stream's
// own termination signal surfaces as StreamDelta{Err: ...} so consumers
// never mistake a truncated response for a complete one. The body is closed
// when the goroutine exits.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)

	emit := func(delta domain.StreamDelta) bool {
		select {
		case ch <- delta:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		defer body.Close()

		finished := false
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), sseScanBuffer)

		for !finished && scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			data, ok := ssePayload(scanner.Bytes())
			if !ok {
				continue
			}
			if bytes.Equal(data, []byte("[DONE]")) {
				emit(domain.StreamDelta{Done: true})
				return
			}

			delta, err := parseLine(data)
			if err != nil || delta == nil {
				continue
			}
			if !emit(*delta) {
				return
			}
			finished = delta.Done
		}

		if finished {
			return
		}
		// The body ended without the stream's termination signal. A scanner
		// error is a broken connection; a clean EOF still means the provider
		// never finished the response. Either way the accumulated text is
		// incomplete and the consumer must not persist it as an answer.
		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		emit(domain.StreamDelta{
			Err: fmt.Errorf("%w: response stream interrupted: %v", domain.ErrProviderError, err),
		})
	}()
	return ch
}

// ssePayload extracts the payload from a single SSE line. Blank lines,
// comments, and non-data fields (Anthropic's "event:" lines repeat the
// event type inside the data JSON) yield ok == false.
func ssePayload(line []byte) ([]byte, bool) {
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if !bytes.HasPrefix(line, sseDataPrefix) {
		return nil, false
	}
	return bytes.TrimPrefix(bytes.TrimPrefix(line, sseDataPrefix), []byte(" ")), true
}
