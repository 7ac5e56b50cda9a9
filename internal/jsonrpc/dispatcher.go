package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"lsp-backend/internal/metrics"
)

const Version = "2.0"

type Params map[string]any

type Handler func(ctx context.Context, params Params) (any, error)

type method struct {
	knownParams map[string]struct{}
	handler     Handler
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    Data   `json:"data"`
}

type Response struct {
	ID      any          `json:"id"`
	JSONRPC string       `json:"jsonrpc"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
}

type Dispatcher struct {
	methods map[string]method
	log     zerolog.Logger
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		methods: make(map[string]method),
		log:     log,
	}
}

// Register binds a method name to its handler. Params not listed in
// knownParams are rejected before the handler runs.
func (d *Dispatcher) Register(name string, knownParams []string, h Handler) {
	known := make(map[string]struct{}, len(knownParams))
	for _, p := range knownParams {
		known[p] = struct{}{}
	}
	d.methods[name] = method{knownParams: known, handler: h}
}

func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.methods))
	for name := range d.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Handle processes one decoded request body and returns the response
// envelope together with the HTTP status to send it with.
func (d *Dispatcher) Handle(ctx context.Context, body any) (Response, int) {
	req, _ := body.(map[string]any)
	var id any
	if req != nil {
		id = req["id"]
	}
	methodName, result, err := d.dispatch(ctx, req)
	if err != nil {
		rpcErr, folded := Normalize(err)
		if folded {
			d.logger(ctx).Error().Err(err).
				Str("method", methodName).
				Interface("id", id).
				Msg("JSON-RPC handler failed")
		}
		metrics.ObserveRequest(d.metricMethod(methodName), rpcErr.Code)
		return ErrorResponse(id, rpcErr), rpcErr.HTTPStatus
	}
	metrics.ObserveRequest(d.metricMethod(methodName), 0)
	return Response{ID: id, JSONRPC: Version, Result: result}, http.StatusOK
}

// ErrorResponse wraps a protocol error in a response envelope.
func ErrorResponse(id any, e *Error) Response {
	data := e.Data
	if data == nil {
		data = Data{}
	}
	return Response{
		ID:      id,
		JSONRPC: Version,
		Error:   &ErrorObject{Code: e.Code, Message: e.Message, Data: data},
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, req map[string]any) (string, any, error) {
	if req == nil {
		return "", nil, NewError(KindInvalidRequest, nil)
	}
	if !validID(req["id"]) {
		return "", nil, NewError(KindInvalidRequest, nil)
	}
	name, ok := req["method"].(string)
	if !ok || name == "" {
		return "", nil, NewError(KindInvalidRequest, nil)
	}
	if v, ok := req["jsonrpc"].(string); !ok || v != Version {
		return name, nil, NewError(KindInvalidRequest, nil)
	}
	params := Params{}
	if raw, present := req["params"]; present && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return name, nil, NewError(KindInvalidRequest, nil)
		}
		params = obj
	}

	m, ok := d.methods[name]
	if !ok {
		return name, nil, NewError(KindMethodNotFound, nil)
	}
	var unrecognized []string
	for key := range params {
		if _, known := m.knownParams[key]; !known {
			unrecognized = append(unrecognized, key)
		}
	}
	if len(unrecognized) > 0 {
		sort.Strings(unrecognized)
		return name, nil, NewError(KindInvalidParams, Data{"unrecognized": unrecognized})
	}

	result, err := m.handler(ctx, params)
	return name, result, err
}

func (d *Dispatcher) metricMethod(name string) string {
	if _, ok := d.methods[name]; ok {
		return name
	}
	return "unknown"
}

func (d *Dispatcher) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &d.log
}

// validID accepts a non-empty string or a non-zero number.
func validID(id any) bool {
	switch v := id.(type) {
	case string:
		return v != ""
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && f != 0
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}
