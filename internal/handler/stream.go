package handler

import (
	"context"
	"net/http"
	"time"

	"movies-sync-service/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Stream event types
const (
	EventState  = "state"
	EventEffect = "effect"
	EventError  = "error"
)

// Client message types
const (
	MessageQuery  = "query"
	MessageToggle = "toggle"
)

// Event is one server-to-client websocket frame
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientMessage is one client-to-server websocket frame
type ClientMessage struct {
	Type    string `json:"type"`
	Query   string `json:"query,omitempty"`
	MovieID int    `json:"movie_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由 CORS 中间件与管理员配置控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// BrowseStream pushes every browse state and watchlist effect of the screen
// and accepts query and toggle messages.
// GET /api/v1/browse/:sid/ws
func (h *ScreenHandler) BrowseStream(c *gin.Context) {
	sid := c.Param("sid")
	eng, ok := h.browseScreen(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("screen_id", sid).Msg("Websocket upgrade failed")
		return
	}

	states, detach := eng.Watch()
	defer detach()

	serveStream(conn, streamSession[engine.BrowseState]{
		states:  states,
		effects: eng.Effects(),
		render:  func(s engine.BrowseState) interface{} { return newBrowseView(h.images, s) },
		touch:   func() { h.browse.Touch(sid) },
		handle: func(msg ClientMessage) error {
			switch msg.Type {
			case MessageQuery:
				eng.Search(msg.Query)
				return nil
			case MessageToggle:
				ctx, cancel := context.WithTimeout(h.base, mutationTimeout)
				defer cancel()
				return eng.ToggleWatchlist(ctx, msg.MovieID)
			default:
				return errUnknownMessage
			}
		},
	})
	log.Debug().Str("screen_id", sid).Msg("Browse stream closed")
}

// DetailStream pushes every detail state of the screen and accepts toggle
// messages.
// GET /api/v1/detail/:sid/ws
func (h *ScreenHandler) DetailStream(c *gin.Context) {
	sid := c.Param("sid")
	eng, ok := h.detailScreen(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("screen_id", sid).Msg("Websocket upgrade failed")
		return
	}

	states, detach := eng.Watch()
	defer detach()

	serveStream(conn, streamSession[engine.DetailState]{
		states: states,
		render: func(s engine.DetailState) interface{} { return newDetailView(h.images, s) },
		touch:  func() { h.detail.Touch(sid) },
		handle: func(msg ClientMessage) error {
			if msg.Type != MessageToggle {
				return errUnknownMessage
			}
			ctx, cancel := context.WithTimeout(h.base, mutationTimeout)
			defer cancel()
			return eng.ToggleWatchlist(ctx)
		},
	})
	log.Debug().Str("screen_id", sid).Msg("Detail stream closed")
}

type streamError string

func (e streamError) Error() string { return string(e) }

const errUnknownMessage = streamError("unknown message type")

type streamSession[S any] struct {
	states <-chan S
	// effects may be nil
	effects <-chan engine.Effect
	render  func(S) interface{}
	touch   func()
	handle  func(ClientMessage) error
}

// serveStream runs one websocket session until the client goes away or the
// screen is unmounted. Only this goroutine writes to conn.
func serveStream[S any](conn *websocket.Conn, sess streamSession[S]) {
	defer conn.Close()

	replies := make(chan Event, 8)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readLoop(conn, sess, replies)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	effects := sess.effects
	for {
		var ev Event
		select {
		case s, ok := <-sess.states:
			if !ok {
				closeStream(conn, "screen closed")
				return
			}
			ev = Event{Type: EventState, Payload: sess.render(s)}
		case eff, ok := <-effects:
			if !ok {
				effects = nil
				continue
			}
			ev = Event{Type: EventEffect, Payload: eff}
		case ev = <-replies:
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-readerDone:
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("Websocket write failed")
			return
		}
	}
}

func readLoop[S any](conn *websocket.Conn, sess streamSession[S], replies chan<- Event) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		sess.touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Websocket read failed")
			}
			return
		}
		sess.touch()

		if err := sess.handle(msg); err != nil {
			select {
			case replies <- Event{Type: EventError, Payload: gin.H{"message": err.Error(), "request": msg.Type}}:
			default:
				// 客户端来不及消费时丢弃错误回执
			}
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
