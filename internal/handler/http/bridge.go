package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/smartstock-pro/zkbridge-go/internal/handler/http/response"
	"github.com/smartstock-pro/zkbridge-go/internal/service/syncer"
)

// Sweeper is the absence sweep trigger the control surface exposes.
type Sweeper interface {
	Run(ctx context.Context) (int, error)
}

// Syncer runs the exclusive bulk imports.
type Syncer interface {
	SyncUsers(ctx context.Context, addr string, port int) (syncer.UserSyncResult, error)
	SyncLogs(ctx context.Context, addr string, port int, cutoff *time.Time) (syncer.LogSyncResult, error)
}

type BridgeHandler interface {
	Status(w http.ResponseWriter, r *http.Request)
	Logs(w http.ResponseWriter, r *http.Request)
	TriggerAbsent(w http.ResponseWriter, r *http.Request)
	SyncUsers(w http.ResponseWriter, r *http.Request)
	SyncLogs(w http.ResponseWriter, r *http.Request)
}

// BridgeDeps wires the handler to the engine. CheckDatabase is nil-safe on
// purpose: the process serves /status in degraded mode when the datastore
// was unreachable at startup.
type BridgeDeps struct {
	CheckDatabase  func(ctx context.Context) error
	CacheSize      func() int
	ActiveSessions func() []string
	LogTail        func() []string
	Sweeper        Sweeper
	Syncer         Syncer
	DefaultIP      string
	DefaultPort    int
}

type bridgeHandlerImpl struct {
	deps BridgeDeps
}

func NewBridgeHandler(deps BridgeDeps) BridgeHandler {
	return &bridgeHandlerImpl{deps: deps}
}

// Status implements BridgeHandler.
func (h *bridgeHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	status := "online"
	var dbError string
	if err := h.deps.CheckDatabase(r.Context()); err != nil {
		status = "database_error"
		dbError = err.Error()
	}

	response.Success(w, map[string]interface{}{
		"status":           status,
		"database_error":   dbError,
		"cached_employees": h.deps.CacheSize(),
		"active_sessions":  h.deps.ActiveSessions(),
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// Logs implements BridgeHandler.
func (h *bridgeHandlerImpl) Logs(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"logs": h.deps.LogTail(),
	})
}

// TriggerAbsent implements BridgeHandler. The sweep runs in the background
// like every other scheduled invocation; the endpoint only kicks it off.
func (h *bridgeHandlerImpl) TriggerAbsent(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.deps.Sweeper.Run(ctx); err != nil {
			slog.Error("Manual absence sweep failed", "error", err)
		}
	}()

	response.Accepted(w, "Absence sweep started")
}

type syncRequest struct {
	IP     string  `json:"ip"`
	Port   int     `json:"port"`
	Cutoff *string `json:"cutoff,omitempty"`
}

func (h *bridgeHandlerImpl) parseSyncRequest(r *http.Request) (syncRequest, error) {
	req := syncRequest{IP: h.deps.DefaultIP, Port: h.deps.DefaultPort}
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return syncRequest{}, err
	}
	if req.IP == "" {
		req.IP = h.deps.DefaultIP
	}
	if req.Port == 0 {
		req.Port = h.deps.DefaultPort
	}
	return req, nil
}

// SyncUsers implements BridgeHandler.
func (h *bridgeHandlerImpl) SyncUsers(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseSyncRequest(r)
	if err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	result, err := h.deps.Syncer.SyncUsers(ctx, req.IP, req.Port)
	if err != nil {
		h.writeSyncError(w, err)
		return
	}

	response.SuccessWithMessage(w, "User sync completed", result)
}

// SyncLogs implements BridgeHandler.
func (h *bridgeHandlerImpl) SyncLogs(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseSyncRequest(r)
	if err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	var cutoff *time.Time
	if req.Cutoff != nil {
		t, err := time.Parse(time.RFC3339, *req.Cutoff)
		if err != nil {
			response.BadRequest(w, "Invalid cutoff, expected RFC3339", map[string]string{"cutoff": err.Error()})
			return
		}
		cutoff = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	result, err := h.deps.Syncer.SyncLogs(ctx, req.IP, req.Port, cutoff)
	if err != nil {
		h.writeSyncError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Log sync completed", result)
}

func (h *bridgeHandlerImpl) writeSyncError(w http.ResponseWriter, err error) {
	if errors.Is(err, syncer.ErrDeviceBusy) {
		response.Conflict(w, err.Error())
		return
	}
	slog.Error("Manual sync failed", "error", err)
	response.BadGateway(w, err.Error())
}
