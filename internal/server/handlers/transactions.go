package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
	apperrors "github.com/ghostpni/ghostpni/internal/errors"
)

// TransactionResponse is a real's status plus, once it succeeded, the
// upstream JSON-RPC reply.
type TransactionResponse struct {
	core.RealStatus
	Result json.RawMessage `json:"result,omitempty"`
}

type submitBody struct {
	Raw     string          `json:"raw"`
	Request json.RawMessage `json:"request"`
	Method  string          `json:"method"`
}

// SubmitTransaction queues a real behind the gate. The body is a
// 0x-prefixed signed transaction, {"raw": "0x.."}, {"request": {..}} or a
// bare JSON-RPC transaction request. With ?wait=true the call blocks until
// the outcome is known.
func (h *EngineHandler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	wait := false
	if value := r.URL.Query().Get("wait"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "wait must be a boolean"))
			return
		}
		wait = parsed
	}

	body, err := readBody(r)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unable to read request body"))
		return
	}
	payload, err := h.transactionPayload(body)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid transaction payload"))
		return
	}

	handle, err := h.engine.Submit(r.Context(), payload)
	if err != nil {
		respondWithError(w, r, apperrors.FromDispatch(r.Context(), err))
		return
	}
	w.Header().Set("Location", "/api/v1/transactions/"+handle.ID)

	if !wait {
		status, _ := h.engine.Lookup(handle.ID)
		writeJSON(w, http.StatusAccepted, TransactionResponse{RealStatus: status})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	outcome, err := handle.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
		// Still waiting for cover; the client polls the Location.
		status, _ := h.engine.Lookup(handle.ID)
		writeJSON(w, http.StatusAccepted, TransactionResponse{RealStatus: status})
		return
	}
	if err != nil {
		respondWithError(w, r, apperrors.FromDispatch(r.Context(), err))
		return
	}

	status, _ := h.engine.Lookup(handle.ID)
	writeJSON(w, http.StatusOK, TransactionResponse{
		RealStatus: status,
		Result:     upstreamResult(outcome),
	})
}

// GetTransaction reports a submitted real.
func (h *EngineHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.engine.Lookup(id)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("Transaction %q not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, TransactionResponse{RealStatus: status})
}

// CancelTransaction withdraws a real still waiting for cover.
func (h *EngineHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := h.engine.Lookup(id)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("Transaction %q not found", id)))
		return
	}
	if !h.engine.Cancel(id) {
		envelope := apperrors.NewConflictError("Transaction is no longer pending")
		envelope = envelope.WithDetails(map[string]interface{}{"state": string(status.State)})
		respondWithError(w, r, envelope)
		return
	}

	status, _ = h.engine.Lookup(id)
	writeJSON(w, http.StatusOK, TransactionResponse{RealStatus: status})
}

func (h *EngineHandler) transactionPayload(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("request body is required")
	}

	switch trimmed[0] {
	case '{':
	case '"':
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode raw transaction: %w", err)
		}
		return rpc.WrapRawTransaction(h.rpcIDs.Inc(), raw)
	default:
		return rpc.WrapRawTransaction(h.rpcIDs.Inc(), string(trimmed))
	}

	var req submitBody
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	switch {
	case req.Raw != "":
		return rpc.WrapRawTransaction(h.rpcIDs.Inc(), req.Raw)
	case len(req.Request) > 0:
		return transactionRequest(req.Request)
	case req.Method != "":
		return transactionRequest(trimmed)
	default:
		return nil, errors.New("body must carry raw, request or a JSON-RPC method")
	}
}

func transactionRequest(body []byte) ([]byte, error) {
	req, err := rpc.ParseRequest(body)
	if err != nil {
		return nil, err
	}
	if !rpc.IsTransactionMethod(req.Method) {
		return nil, fmt.Errorf("method %q does not carry a transaction", req.Method)
	}
	return bytes.TrimSpace(body), nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func upstreamResult(outcome core.Outcome) json.RawMessage {
	if outcome.Response == nil || len(outcome.Response.Body) == 0 {
		return nil
	}
	body := bytes.TrimSpace(outcome.Response.Body)
	if json.Valid(body) {
		return body
	}
	encoded, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return encoded
}
