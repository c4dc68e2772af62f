package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"windowtrader/internal/signal"
)

const (
	heartbeatEvery = 20 * time.Second
	staleAfter     = 45 * time.Second
	handshakeLimit = 8 * time.Second
	writeLimit     = 5 * time.Second
)

// subscribeRequest is sent once per session to select the quote stream.
type subscribeRequest struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// quoteFrame is one inbound stream message: an LTP update, a server
// heartbeat, or a subscription acknowledgement.
type quoteFrame struct {
	Type string  `json:"type"`
	Sym  string  `json:"sym"`
	LTP  float64 `json:"ltp"`
	TsMs int64   `json:"ts"`
}

// runWebsocket keeps a quote-stream session alive for the configured
// symbols, reconnecting with a growing delay. The attempt counter resets
// after any session that survives a full minute.
func (f *Feed) runWebsocket(ctx context.Context, out chan<- signal.Tick) error {
	if f.wsURL == "" {
		return fmt.Errorf("websocket feed requires a stream URL")
	}
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("websocket feed requires at least one symbol")
	}

	attempt := 0
	for ctx.Err() == nil {
		started := time.Now()
		err := f.streamSession(ctx, symbols, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > time.Minute {
			attempt = 0
		}
		delay := reconnectDelay(attempt)
		attempt++
		f.log.Warn().Err(err).Dur("retry_in", delay).Msg("quote stream lost")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func reconnectDelay(attempt int) time.Duration {
	const ceiling = 30 * time.Second
	if attempt > 6 {
		return ceiling
	}
	delay := 500 * time.Millisecond << uint(attempt)
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// streamSession dials, subscribes, and pumps frames until the connection
// dies, the stream goes stale, or the context ends. Reads run on their own
// goroutine; the select loop owns heartbeats and the staleness watchdog.
func (f *Feed) streamSession(ctx context.Context, symbols []string, out chan<- signal.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeLimit}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadLimit(256 << 10)
	conn.SetWriteDeadline(time.Now().Add(writeLimit))
	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Symbols: symbols}); err != nil {
		return err
	}
	f.log.Info().Int("symbols", len(symbols)).Str("url", f.wsURL).Msg("quote stream subscribed")

	frames := make(chan quoteFrame)
	readErr := make(chan error, 1)
	go func() {
		for {
			var frame quoteFrame
			if err := conn.ReadJSON(&frame); err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	stale := time.NewTimer(staleAfter)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-heartbeat.C:
			conn.SetWriteDeadline(time.Now().Add(writeLimit))
			if err := conn.WriteJSON(subscribeRequest{Action: "ping"}); err != nil {
				return err
			}
		case <-stale.C:
			return fmt.Errorf("no frames for %s", staleAfter)
		case frame := <-frames:
			if !stale.Stop() {
				select {
				case <-stale.C:
				default:
				}
			}
			stale.Reset(staleAfter)
			f.handleFrame(ctx, frame, out)
		}
	}
}

func (f *Feed) handleFrame(ctx context.Context, frame quoteFrame, out chan<- signal.Tick) {
	switch frame.Type {
	case "tick":
		if frame.Sym == "" || frame.LTP <= 0 {
			f.log.Warn().Str("sym", frame.Sym).Float64("ltp", frame.LTP).Msg("malformed tick frame dropped")
			return
		}
		ts := time.UnixMilli(frame.TsMs)
		if frame.TsMs == 0 {
			ts = time.Now()
		}
		select {
		case out <- signal.Tick{Symbol: frame.Sym, Price: frame.LTP, Ts: ts}:
		case <-ctx.Done():
		}
	case "heartbeat", "subscribed", "pong":
		// Session-keeping frames; the watchdog reset is all they are for.
	default:
		f.log.Debug().Str("type", frame.Type).Msg("unhandled stream frame")
	}
}
