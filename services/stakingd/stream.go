package stakingd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"farmstake/core/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 256
)

// streamEvents upgrades to a websocket and relays feed records. Records with
// a sequence above the optional "after" cursor that are still in history are
// replayed first.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid cursor", Code: "bad_request"})
			return
		}
		after = parsed
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	feed := s.svc.Feed()
	sub := feed.Subscribe(wsBuffer)
	s.metrics.SetSubscribers(feed.Subscribers())
	defer func() {
		sub.Close()
		s.metrics.SetSubscribers(feed.Subscribers())
	}()

	ctx := conn.CloseRead(r.Context())
	if err := streamRecords(ctx, conn, feed, sub, after, eventType); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamRecords(ctx context.Context, conn *websocket.Conn, feed *events.Feed, sub *events.Subscription, after uint64, eventType string) error {
	last := after
	for _, rec := range feed.Since(after, eventType, 0) {
		if err := writeRecord(ctx, conn, rec); err != nil {
			return err
		}
		last = rec.Sequence
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-sub.C():
			if !ok {
				return nil
			}
			// The subscription may already hold records sent during replay.
			if rec.Sequence <= last {
				continue
			}
			if eventType != "" && rec.Type != eventType {
				continue
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			last = rec.Sequence
		}
	}
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec events.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
