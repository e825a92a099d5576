package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
	"github.com/ghostpni/ghostpni/internal/observability"
)

// RPCProxy is a JSON-RPC endpoint wallets can point at. Transaction methods
// are queued behind the gate and trigger a storm; every other method goes
// straight to the public pool. JSON-RPC errors are returned with HTTP 200.
func (h *EngineHandler) RPCProxy(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, http.StatusOK, rpc.ErrorResponse(nil, rpc.CodeParseError, "Parse error", err.Error()))
		return
	}
	req, err := rpc.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusOK, rpc.ErrorResponse(nil, rpc.CodeParseError, "Parse error", err.Error()))
		return
	}

	if !rpc.IsTransactionMethod(req.Method) {
		outcome := h.engine.Forward(r.Context(), body)
		if !outcome.Succeeded() {
			writeJSON(w, http.StatusOK, rpc.ErrorResponse(req.ID, rpc.CodeInternalError, "Proxy error", failureData(outcome)))
			return
		}
		writeUpstream(w, outcome.Response)
		return
	}

	handle, err := h.engine.Submit(r.Context(), body)
	if err != nil {
		writeJSON(w, http.StatusOK, rpc.ErrorResponse(req.ID, rpc.CodeInternalError, "Proxy error", err.Error()))
		return
	}
	h.engine.RequestStorm()

	if logger := observability.Logger(); logger != nil {
		logger.Info("Transaction received via proxy",
			zap.String("method", req.Method),
			zap.String("id", handle.ID))
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	outcome, err := handle.Wait(ctx)
	if err != nil {
		data := failureData(outcome)
		if outcome.Failure == core.FailureNone {
			data = map[string]any{"error": err.Error(), "id": handle.ID}
		}
		writeJSON(w, http.StatusOK, rpc.ErrorResponse(req.ID, rpc.CodeTransactionFailed, "Transaction failed", data))
		return
	}
	writeUpstream(w, outcome.Response)
}

func failureData(outcome core.Outcome) map[string]any {
	data := map[string]any{
		"id":       outcome.RequestID,
		"failure":  string(outcome.Failure),
		"attempts": outcome.Attempts,
	}
	if outcome.Endpoint != "" {
		data["endpoint"] = outcome.Endpoint
	}
	return data
}

func writeUpstream(w http.ResponseWriter, resp *core.Response) {
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(resp.Body) == 0 {
		_ = json.NewEncoder(w).Encode(nil)
		return
	}
	if _, err := w.Write(resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to relay upstream response", zap.Error(err))
	}
}
