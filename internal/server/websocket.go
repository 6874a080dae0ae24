package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/ledger/internal/tutor"
)

// Frame is a message sent to a WebSocket client.
type Frame struct {
	Type   string                `json:"type"`
	Node   *tutor.NodeView       `json:"node,omitempty"`
	Result *tutor.SubmitResponse `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
	Code   tutor.Code            `json:"code,omitempty"`
}

// Frame types.
const (
	FrameNode   = "node"
	FrameResult = "result"
	FrameError  = "error"
)

// handleWebSocket sends the current node on connect, then answers each
// submission with its result followed by the node the learner is now on.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node, err := s.svc.CurrentNode(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	if err := wsjson.Write(ctx, c, Frame{Type: FrameNode, Node: &node}); err != nil {
		return
	}

	for {
		var req tutor.SubmitRequest
		if err := wsjson.Read(ctx, c, &req); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				slog.Debug("websocket read failed", "session_id", id, "error", err)
			}
			return
		}

		resp, err := s.svc.Submit(ctx, id, req)
		if err != nil {
			if err := wsjson.Write(ctx, c, errorFrame(err)); err != nil {
				return
			}
			if tutor.IsCode(err, tutor.CodeNotFound) {
				c.Close(websocket.StatusPolicyViolation, "session ended")
				return
			}
			continue
		}
		if err := wsjson.Write(ctx, c, Frame{Type: FrameResult, Result: &resp}); err != nil {
			return
		}

		node, err := s.svc.CurrentNode(ctx, id)
		if err != nil {
			_ = wsjson.Write(ctx, c, errorFrame(err))
			return
		}
		if err := wsjson.Write(ctx, c, Frame{Type: FrameNode, Node: &node}); err != nil {
			return
		}
	}
}

func errorFrame(err error) Frame {
	code := tutor.GetCode(err)
	msg := err.Error()
	var te *tutor.Error
	if !errors.As(err, &te) {
		msg = "internal error"
	}
	return Frame{Type: FrameError, Error: msg, Code: code}
}
