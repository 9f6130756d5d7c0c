// Package gateway serves the pointer bridge over JSON-RPC.
//
// Two method families share one endpoint. The standard namespace returns what the
// chain itself emitted. The extended namespace merges the synthetic logs of pointer
// contracts into every log, receipt and filter result.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/metrics"
	"github.com/ethpandaops/pointerbridge/registry"
)

const maxRequestSize = 5 * 1024 * 1024

// SyntheticPolicy selects which standard namespace results carry synthetic logs.
type SyntheticPolicy string

const (
	SyntheticNone     SyntheticPolicy = "none"
	SyntheticReceipts SyntheticPolicy = "receipts"
	SyntheticAll      SyntheticPolicy = "all"
)

type Config struct {
	StandardNamespace   string
	ExtendedNamespace   string
	SyntheticInStandard SyntheticPolicy
	MaxBlockRange       uint64
	MaxBatchSize        int
	LogRequests         bool
}

type methodCall struct {
	namespace string
	method    string
	extended  bool
	request   *RPCRequest
}

type methodHandler func(ctx context.Context, call *methodCall, params json.RawMessage) (interface{}, error)

type Gateway struct {
	logger     logrus.FieldLogger
	config     Config
	backend    ChainBackend
	index      *logindex.Index
	registry   *registry.Registry
	translator *addrmap.Translator

	limiter *CallRateLimiter
	proxy   *UpstreamProxy
	cache   *ResponseCache

	methods map[string]methodHandler
}

func NewGateway(logger logrus.FieldLogger, config Config, backend ChainBackend, index *logindex.Index, reg *registry.Registry, translator *addrmap.Translator) (*Gateway, error) {
	if config.StandardNamespace == "" {
		config.StandardNamespace = "eth"
	}
	if config.ExtendedNamespace == "" {
		config.ExtendedNamespace = "ext"
	}
	if config.StandardNamespace == config.ExtendedNamespace {
		return nil, fmt.Errorf("standard and extended namespace must differ")
	}
	switch config.SyntheticInStandard {
	case "":
		config.SyntheticInStandard = SyntheticNone
	case SyntheticNone, SyntheticReceipts, SyntheticAll:
	default:
		return nil, fmt.Errorf("invalid syntheticInStandard policy %q", config.SyntheticInStandard)
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 100
	}

	g := &Gateway{
		logger:     logger,
		config:     config,
		backend:    backend,
		index:      index,
		registry:   reg,
		translator: translator,
	}
	g.registerMethods()
	return g, nil
}

func (g *Gateway) SetRateLimiter(limiter *CallRateLimiter) {
	g.limiter = limiter
}

func (g *Gateway) SetUpstreamProxy(proxy *UpstreamProxy) {
	g.proxy = proxy
}

func (g *Gateway) SetResponseCache(cache *ResponseCache) {
	g.cache = cache
}

func (g *Gateway) registerMethods() {
	shared := map[string]methodHandler{
		"blockNumber":           g.blockNumber,
		"chainId":               g.chainId,
		"call":                  g.call,
		"sendTransaction":       g.sendTransaction,
		"getLogs":               g.getLogs,
		"getBlockReceipts":      g.getBlockReceipts,
		"getTransactionReceipt": g.getTransactionReceipt,
		"getTransactionByHash":  g.getTransactionByHash,
	}
	extended := map[string]methodHandler{
		"registerPointer":  g.registerPointer,
		"getPointer":       g.getPointer,
		"getPointee":       g.getPointee,
		"getEVMAddress":    g.getEVMAddress,
		"getNativeAddress": g.getNativeAddress,
		"getSyntheticLogs": g.getSyntheticLogs,
		"executeNative":    g.executeNative,
	}

	g.methods = map[string]methodHandler{
		"net_version": g.netVersion,
	}
	for name, handler := range shared {
		g.methods[g.config.StandardNamespace+"_"+name] = handler
		g.methods[g.config.ExtendedNamespace+"_"+name] = handler
	}
	for name, handler := range extended {
		g.methods[g.config.ExtendedNamespace+"_"+name] = handler
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse(nil, &RPCError{Code: ErrCodeParse, Message: "failed reading request body"}))
		return
	}
	body = bytes.TrimSpace(body)

	isBatch := len(body) > 0 && body[0] == '['
	rawRequests := []json.RawMessage{}
	if isBatch {
		if err := json.Unmarshal(body, &rawRequests); err != nil {
			g.writeJSON(w, http.StatusOK, errorResponse(nil, &RPCError{Code: ErrCodeParse, Message: "parse error"}))
			return
		}
		if len(rawRequests) == 0 {
			g.writeJSON(w, http.StatusOK, errorResponse(nil, &RPCError{Code: ErrCodeInvalidRequest, Message: "empty batch"}))
			return
		}
		if len(rawRequests) > g.config.MaxBatchSize {
			g.writeJSON(w, http.StatusOK, errorResponse(nil, &RPCError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf("batch too large (max %v requests)", g.config.MaxBatchSize)}))
			return
		}
	} else {
		rawRequests = append(rawRequests, body)
	}

	if err := g.limiter.CheckCallLimit(r, uint(len(rawRequests))); err != nil {
		g.writeJSON(w, http.StatusTooManyRequests, errorResponse(nil, &RPCError{Code: ErrCodeRateLimit, Message: err.Error()}))
		return
	}

	responses := make([]*RPCResponse, len(rawRequests))
	for i, raw := range rawRequests {
		responses[i] = g.handleRaw(r.Context(), raw, isBatch)
	}

	if isBatch {
		g.writeJSON(w, http.StatusOK, responses)
	} else {
		g.writeJSON(w, http.StatusOK, responses[0])
	}
}

func (g *Gateway) handleRaw(ctx context.Context, raw json.RawMessage, inBatch bool) *RPCResponse {
	req := &RPCRequest{}
	if err := json.Unmarshal(raw, req); err != nil {
		if inBatch {
			return errorResponse(nil, &RPCError{Code: ErrCodeInvalidRequest, Message: "invalid request"})
		}
		return errorResponse(nil, &RPCError{Code: ErrCodeParse, Message: "parse error"})
	}
	if req.Jsonrpc != "2.0" || req.Method == "" {
		return errorResponse(req.ID, &RPCError{Code: ErrCodeInvalidRequest, Message: "invalid request"})
	}
	return g.Handle(ctx, req)
}

// Handle executes a single request.
func (g *Gateway) Handle(ctx context.Context, req *RPCRequest) *RPCResponse {
	start := time.Now()
	call := &methodCall{
		method:  req.Method,
		request: req,
	}
	call.namespace, call.method = g.splitMethod(req.Method)
	call.extended = call.namespace == g.config.ExtendedNamespace

	var res *RPCResponse
	handler := g.methods[req.Method]
	switch {
	case handler != nil:
		res = g.execute(ctx, call, handler)
	case g.proxy != nil && !call.extended:
		upstreamRes, err := g.proxy.Forward(ctx, req)
		if err != nil {
			res = errorResponse(req.ID, &RPCError{Code: ErrCodeServer, Message: err.Error()})
		} else {
			res = upstreamRes
		}
	default:
		res = errorResponse(req.ID, &RPCError{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("the method %v does not exist/is not available", req.Method),
		})
	}

	// client supplied names only become labels for registered methods
	namespace, method := call.namespace, call.method
	if handler == nil {
		namespace, method = "unknown", "unknown"
		if res.Error == nil || res.Error.Code != ErrCodeMethodNotFound {
			method = "forwarded"
		}
	}
	metrics.GatewayRequests.WithLabelValues(namespace, method).Inc()
	if res.Error != nil {
		metrics.GatewayErrors.WithLabelValues(strconv.Itoa(res.Error.Code)).Inc()
	}

	if g.config.LogRequests {
		fields := logrus.Fields{
			"method":      req.Method,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if res.Error != nil {
			fields["error_code"] = res.Error.Code
			fields["error"] = res.Error.Message
		}
		g.logger.WithFields(fields).Info("rpc request")
	}
	return res
}

// splitMethod separates the namespace from the method name. Configured namespaces are matched
// as whole prefixes, so they may contain underscores themselves.
func (g *Gateway) splitMethod(fullMethod string) (string, string) {
	namespaces := []string{g.config.ExtendedNamespace, g.config.StandardNamespace}
	if len(namespaces[1]) > len(namespaces[0]) {
		namespaces[0], namespaces[1] = namespaces[1], namespaces[0]
	}
	for _, namespace := range namespaces {
		if strings.HasPrefix(fullMethod, namespace+"_") {
			return namespace, fullMethod[len(namespace)+1:]
		}
	}
	if idx := strings.Index(fullMethod, "_"); idx > 0 {
		return fullMethod[:idx], fullMethod[idx+1:]
	}
	return "", fullMethod
}

func (g *Gateway) execute(ctx context.Context, call *methodCall, handler methodHandler) *RPCResponse {
	res := newResponse(call.request.ID)

	result, err := handler(ctx, call, call.request.Params)
	if err != nil {
		rpcErr := toRPCError(err)
		if rpcErr.Code == ErrCodeServer {
			g.logger.WithError(err).WithField("method", call.request.Method).Debug("rpc call failed")
		}
		res.Error = rpcErr
		return res
	}

	if raw, ok := result.(json.RawMessage); ok {
		res.Result = raw
	} else if res.Result, err = json.Marshal(result); err != nil {
		res.Error = &RPCError{Code: ErrCodeInternal, Message: fmt.Sprintf("failed encoding result: %v", err)}
		return res
	}
	if len(res.Result) == 0 {
		res.Result = json.RawMessage("null")
	}
	return res
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		g.logger.WithError(err).Debug("failed writing rpc response")
	}
}
