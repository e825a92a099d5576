package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON-RPC error codes returned by the proxy.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeInternalError     = -32603
	CodeTransactionFailed = -32000
)

// Version is the only JSON-RPC version spoken.
const Version = "2.0"

var transactionMethods = map[string]struct{}{
	"eth_sendTransaction":    {},
	"eth_sendRawTransaction": {},
	"eth_signTransaction":    {},
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsTransactionMethod reports whether a method carries a signed or signable
// transaction and must go through the gate.
func IsTransactionMethod(method string) bool {
	_, ok := transactionMethods[method]
	return ok
}

// ParseRequest decodes a single JSON-RPC request. Batches are rejected.
func ParseRequest(body []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}
	if trimmed[0] == '[' {
		return nil, errors.New("batch requests are not supported")
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, errors.New("method is required")
	}
	if req.JSONRPC == "" {
		req.JSONRPC = Version
	}
	return &req, nil
}

// NewRequest encodes a request with the given numeric id.
func NewRequest(id uint64, method string, params ...any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return json.Marshal(Request{
		JSONRPC: Version,
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Method:  method,
		Params:  encodedParams,
	})
}

// WrapRawTransaction builds an eth_sendRawTransaction request for a
// 0x-prefixed signed transaction.
func WrapRawTransaction(id uint64, raw string) ([]byte, error) {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		return nil, errors.New("raw transaction must be 0x-prefixed hex")
	}
	digits := value[2:]
	if len(digits) == 0 || len(digits)%2 != 0 {
		return nil, errors.New("raw transaction has odd or empty hex length")
	}
	if _, err := hex.DecodeString(digits); err != nil {
		return nil, fmt.Errorf("raw transaction is not hex: %w", err)
	}
	return NewRequest(id, "eth_sendRawTransaction", "0x"+strings.ToLower(digits))
}

// ErrorResponse builds an error reply for the given request id.
func ErrorResponse(id json.RawMessage, code int, message string, data any) Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// ParseResponse decodes an upstream reply body.
func ParseResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
