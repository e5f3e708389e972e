package sse

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/http/response"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

const writeDeadline = 60 * time.Second

// Handler serves GET /api/v1/changes. The optional table query parameter
// limits the stream to one table.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	table := store.Table(r.URL.Query().Get("table"))
	if table != "" && !table.Valid() {
		response.Error(w, domainerrors.Validationf("unknown table %q", table), h.logger)
		return
	}

	// Register before the connected event so nothing committed after it is
	// missed.
	client, err := h.manager.Connect(table)
	if err != nil {
		response.Error(w, domainerrors.Unavailable("change stream is shutting down"), h.logger)
		return
	}
	defer h.manager.Disconnect(client.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	clientLogger := h.logger.With(slog.String("client_id", client.ID))

	if err := h.sendEvent(w, rc, EventConnected, ConnectedData{ClientID: client.ID, Table: table}); err != nil {
		clientLogger.Warn("failed to send connected event", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				clientLogger.Info("client closed by manager")
				return
			}
			if err := h.sendEvent(w, rc, event.Type, event.payload()); err != nil {
				clientLogger.Info("client disconnected during send")
				return
			}

		case <-client.Done:
			clientLogger.Info("client closed by manager")
			return

		case <-ctx.Done():
			clientLogger.Debug("client context canceled")
			return
		}
	}
}

// sendEvent writes one "event:/data:" frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType EventType, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Not every ResponseWriter supports deadlines.
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
