package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sous_vide/internal/models"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxMsgSize  = 1 << 12 // 4 KB
	minInterval = 50 * time.Millisecond
	maxInterval = 10 * time.Second

	// the monitor polls once per second, pushing faster only repeats it
	defaultInterval = time.Second
)

const wsTypeStatus = "status"

// wsEnvelope wraps every message pushed over the socket. Seq starts at 1
// and grows by one per pushed status.
type wsEnvelope struct {
	Type string              `json:"type"`
	Seq  uint64              `json:"seq"`
	Data models.DeviceStatus `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once a UI host is configured
}

// streamQuery is the query string accepted by /ws.
type streamQuery struct {
	Interval    string `form:"interval"`
	IntervalMs  string `form:"interval_ms"`
	OnlyChanges bool   `form:"only_changes"`
}

// interval picks ?interval (a Go duration) over ?interval_ms. Values outside
// [minInterval, maxInterval] fall back to the default.
func (q streamQuery) interval() time.Duration {
	if d, err := time.ParseDuration(q.Interval); err == nil && inStreamBounds(d) {
		return d
	}
	if ms, err := strconv.Atoi(q.IntervalMs); err == nil {
		if d := time.Duration(ms) * time.Millisecond; inStreamBounds(d) {
			return d
		}
	}
	return defaultInterval
}

func inStreamBounds(d time.Duration) bool { return d >= minInterval && d <= maxInterval }

// wsConnect streams the cached device status. It never queries the device
// itself, so an open socket does not keep the link from idling.
//
// @Summary      Status stream
// @Description  WebSocket; pushes {"type":"status","seq":N,"data":DeviceStatus} every interval (?interval=2s or ?interval_ms=2000, 50ms..10s). With ?only_changes=true a tick whose status matches the last push is skipped.
// @Tags         device
// @Param        interval      query  string  false  "push period, Go duration"
// @Param        interval_ms   query  int     false  "push period in milliseconds"
// @Param        only_changes  query  bool    false  "skip unchanged statuses"
// @Failure      400  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	var q streamQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.drainClient(conn, done)

	s := &statusStream{conn: conn, status: h.services.Monitoring.GetStatus, onlyChanges: q.OnlyChanges}
	h.log.Debugw("ws_stream_opened", "interval", q.interval().String(), "only_changes", q.OnlyChanges)
	err = s.run(c.Request.Context(), q.interval(), done)
	h.log.Debugw("ws_stream_closed", "pushed", s.seq, "err", err)
}

// statusStream pushes status snapshots to one client.
type statusStream struct {
	conn        *websocket.Conn
	status      func(context.Context) models.DeviceStatus
	onlyChanges bool

	seq  uint64
	last models.DeviceStatus
}

func (s *statusStream) run(ctx context.Context, interval time.Duration, done <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer ping.Stop()

	if err := s.push(ctx, true); err != nil {
		return err
	}
	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.push(ctx, false); err != nil {
				return err
			}
		}
	}
}

func (s *statusStream) push(ctx context.Context, first bool) error {
	st := s.status(ctx)
	if !first && s.onlyChanges && sameReading(st, s.last) {
		return nil
	}
	s.seq++
	s.last = st
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(wsEnvelope{Type: wsTypeStatus, Seq: s.seq, Data: st})
}

// sameReading compares two statuses ignoring UpdatedAt, which every poll
// bumps even when the device reports nothing new.
func sameReading(a, b models.DeviceStatus) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return a == b
}

// drainClient reads until the client goes away so control frames are handled.
func (h *Handler) drainClient(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}
