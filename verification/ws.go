package verification

import (
	"context"
	"net/http"
	"time"

	"credify/models"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS layer.
		return true
	},
}

// StatusSocket pushes every distinct state of the job for :id until it
// reaches a terminal status, then closes.
type StatusSocket struct {
	Jobs     *Orchestrator
	Interval time.Duration
	Log      logrus.FieldLogger
}

func (s *StatusSocket) Serve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	contentID := ps.ByName("id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect a client hang-up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last models.VerificationJob
	sent := false
	for {
		job, ok, err := s.Jobs.Status(ctx, contentID)
		if err != nil {
			s.logger().WithField("contentId", contentID).WithError(err).Warn("[StatusSocket] status read failed")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable"))
			return
		}
		if ok && (!sent || job.Status != last.Status || !job.UpdatedAt.Equal(last.UpdatedAt)) {
			if err := conn.WriteJSON(job); err != nil {
				return
			}
			last, sent = job, true
			if job.Status.Terminal() {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *StatusSocket) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
