package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/keygen"
)

// StreamMessage is one frame of the generation stream: a state change, the
// final key pair, or an error.
type StreamMessage struct {
	Type      string          `json:"type"`
	State     string          `json:"state,omitempty"`
	Bits      int             `json:"bits,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms,omitempty"`
	KeyPair   *engine.KeyPair `json:"key_pair,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

const (
	MessageState  = "state"
	MessageResult = "result"
	MessageError  = "error"
)

// handleGenerateStream generates one key and reports each generator state
// over the socket. Closing the socket cancels the generation.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	bits, err := strconv.Atoi(r.URL.Query().Get("bits"))
	if err != nil {
		writeBadRequest(w, "bits query parameter must be an integer")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the only reader; any read error means the client went away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	observe := func(ev keygen.Event) {
		if ev.State == keygen.Failed {
			return
		}
		conn.WriteJSON(StreamMessage{
			Type:      MessageState,
			State:     ev.State.String(),
			Bits:      ev.Bits,
			Attempt:   ev.Attempt,
			ElapsedMS: ev.Elapsed.Milliseconds(),
		})
	}

	pair, err := s.engine.GenerateRSAKeyObserved(ctx, bits, observe)
	if err != nil {
		conn.WriteJSON(StreamMessage{
			Type:      MessageError,
			Bits:      bits,
			Error:     err.Error(),
			ErrorKind: engine.ErrorKind(err),
		})
	} else {
		conn.WriteJSON(StreamMessage{Type: MessageResult, Bits: pair.Bits, KeyPair: pair})
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) handleBenchmarkProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	progress, exists := s.jobStore.progress(id)
	if !exists {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "benchmark not found", ErrorKind: "NotFound"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		select {
		case update, ok := <-progress:
			if !ok {
				// the worker closes the channel once the job is finished
				job, _ := s.jobStore.Get(id)
				conn.WriteJSON(map[string]any{
					"status":    job.Status,
					"completed": true,
				})
				return
			}
			if err := conn.WriteJSON(map[string]any{
				"status":     StatusRunning,
				"completed":  false,
				"current":    update.Current,
				"total":      update.Total,
				"percentage": update.Percentage,
				"rate":       update.Rate,
				"keySize":    update.KeySize,
			}); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
