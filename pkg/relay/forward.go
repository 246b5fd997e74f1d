package relay

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicepilot-ai/voicepilot/internal/observability/metrics"
)

const (
	directionUpstream   = "upstream"   // client -> upstream
	directionDownstream = "downstream" // upstream -> client
)

// Forward pumps frames between the client and upstream connections until
// either side fails, then closes both. Frames are forwarded verbatim with
// their message type preserved, and a close from one side is mirrored to
// the other with the same code and reason.
func Forward(client, upstream *websocket.Conn, log zerolog.Logger, m *metrics.Metrics) {
	done := make(chan struct{}, 2)

	go func() {
		pump(client, upstream, directionUpstream, log, m)
		done <- struct{}{}
	}()
	go func() {
		pump(upstream, client, directionDownstream, log, m)
		done <- struct{}{}
	}()

	<-done
	client.Close()
	upstream.Close()
	<-done
}

// pump copies frames from src to dst until a read or write fails. On a
// clean close from src the close code and reason are replayed to dst.
func pump(src, dst *websocket.Conn, direction string, log zerolog.Logger, m *metrics.Metrics) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)
			dst.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(time.Second),
			)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.RecordForwardError(direction)
				log.Debug().Err(err).Str("direction", direction).Msg("pump stopped")
			}
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			m.RecordForwardError(direction)
			log.Debug().Err(err).Str("direction", direction).Msg("forward write failed")
			return
		}
		m.RecordForwarded(direction, len(data))
	}
}

// closeStatus extracts the close code and reason from a read error, falling
// back to an abnormal-closure code for transport-level failures.
func closeStatus(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return websocket.CloseInternalServerErr, ""
}
