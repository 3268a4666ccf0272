package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsIdleTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handlePredictStream scores one record per text frame and answers each
// frame with either a result or an error object, in order.
func (a *api) handlePredictStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(a.maxBodyBytes)
	requestID := GetRequestID(r.Context())
	frames := 0
	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("predict stream closed", zap.String("request_id", requestID), zap.Error(err))
			}
			break
		}
		frames++

		var reply any
		if msgType != websocket.TextMessage {
			a.rejected(transportWebSocket, "invalid_body")
			reply = errorResponse{Error: msgInvalidBody, Details: "binary frames are not accepted"}
		} else if record, err := decodeRecord(bytes.NewReader(data)); err != nil {
			a.rejected(transportWebSocket, "invalid_body")
			reply = errorResponse{Error: msgInvalidBody, Details: err.Error()}
		} else if result, err := a.predict(r.Context(), transportWebSocket, record); err != nil {
			_, body := predictionError(err)
			reply = body
		} else {
			reply = result
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			a.logger.Debug("predict stream write failed", zap.String("request_id", requestID), zap.Error(err))
			break
		}
	}
	a.logger.Debug("predict stream finished", zap.String("request_id", requestID), zap.Int("frames", frames))
}
