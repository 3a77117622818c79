package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

// Frame types exchanged on the widget websocket.
const (
	FrameEvent  = "event"  // server -> widget: a ports.Event
	FramePut    = "put"    // widget -> server: a write
	FrameResult = "result" // server -> widget: outcome of the put with the same ID
)

// Result codes carried by failed FrameResult frames.
const (
	CodeReadOnly = "read_only"
	CodeInvalid  = "invalid_argument"
	CodeInternal = "internal"
)

// Frame is one websocket message.
type Frame struct {
	Type   string        `json:"type"`
	ID     uint64        `json:"id,omitempty"`
	Event  *ports.Event  `json:"event,omitempty"`
	Update *ports.Update `json:"update,omitempty"`
	Code   string        `json:"code,omitempty"`
	Error  string        `json:"error,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// ServeWidget handles GET /widgets/{widgetID}/ws. The connection speaks the
// ports.Transport contract: a connected event, the snapshot, then live changes.
// Writes are tagged with the client_id query parameter, or a fresh ID.
func (s *Server) ServeWidget(w http.ResponseWriter, r *http.Request) {
	widgetID := chi.URLParam(r, "widgetID")
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
	if clientID == "" {
		clientID = uuid.NewString()
	}

	store, release, ok := s.open(w, r)
	if !ok {
		return
	}
	defer release()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "widget_id", widgetID, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		s.logger.Warn("Websocket set read deadline failed", "err", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan Frame, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	push := func(f Frame) bool {
		select {
		case writeCh <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	feed, err := store.Watch(ctx)
	if err != nil {
		push(Frame{Type: FrameResult, Code: CodeInternal, Error: err.Error()})
		s.logger.Error("Websocket watch failed", "widget_id", widgetID, "err", err)
		return
	}
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		s.logger.Error("Websocket snapshot failed", "widget_id", widgetID, "err", err)
		return
	}

	go func() {
		if !push(Frame{Type: FrameEvent, Event: &ports.Event{Kind: ports.EventConnected}}) {
			return
		}
		for _, u := range snapshot {
			if !push(Frame{Type: FrameEvent, Event: &ports.Event{Kind: ports.EventChange, Update: u}}) {
				return
			}
		}
		for u := range feed {
			if !push(Frame{Type: FrameEvent, Event: &ports.Event{Kind: ports.EventChange, Update: u}}) {
				return
			}
		}
	}()
	s.logger.Info("Widget connected", "widget_id", widgetID, "client_id", clientID)

	for {
		var in Frame
		if err := conn.ReadJSON(&in); err != nil {
			s.logger.Info("Widget disconnected", "widget_id", widgetID, "client_id", clientID)
			cancel()
			<-writerDone
			return
		}
		push(s.applyPut(ctx, store, clientID, in))
	}
}

// applyPut applies one widget write and builds its result frame.
func (s *Server) applyPut(ctx context.Context, store ports.HostStore, clientID string, in Frame) Frame {
	out := Frame{Type: FrameResult, ID: in.ID}
	switch {
	case in.Type != FramePut:
		out.Code, out.Error = CodeInvalid, "unsupported frame type "+in.Type
	case in.Update == nil || in.Update.Key == "":
		out.Code, out.Error = CodeInvalid, "update is required"
	case domain.ReadOnlyKeys[in.Update.Key]:
		out.Code, out.Error = CodeReadOnly, domain.ErrReadOnlyKey.Error()
	default:
		u := *in.Update
		u.Origin = clientID
		u.Version = 0
		if _, err := store.Put(ctx, u); err != nil {
			out.Code, out.Error = CodeInternal, err.Error()
		}
	}
	return out
}
