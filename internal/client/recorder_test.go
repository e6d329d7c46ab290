package client

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koopa0/pong-arena/internal/protocol"
)

type sent struct {
	event   string
	payload any
}

// recorder 記錄所有送出的消息
type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) Send(event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{event: event, payload: payload})
	return nil
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].event == event {
			return r.msgs[i].payload, true
		}
	}
	return nil, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envelope(t *testing.T, event string, payload any) protocol.Envelope {
	t.Helper()
	env := protocol.Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Data = data
	}
	return env
}
