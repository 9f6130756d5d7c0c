package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// UpstreamProxy forwards requests the gateway does not serve to an upstream node.
type UpstreamProxy struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func NewUpstreamProxy(logger logrus.FieldLogger, url string, headers map[string]string, timeout time.Duration) *UpstreamProxy {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &UpstreamProxy{
		url:     url,
		headers: headers,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.WithField("upstream", url),
	}
}

// Forward sends a single request upstream and returns the upstream response with the caller's id.
func (p *UpstreamProxy) Forward(ctx context.Context, req *RPCRequest) (*RPCResponse, error) {
	upstreamReq := *req
	upstreamReq.ID = json.RawMessage("1")
	upstreamReq.Jsonrpc = "2.0"
	body, err := json.Marshal(&upstreamReq)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range p.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream unavailable: %w", err)
	}
	defer resp.Body.Close()

	upstreamBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading upstream response: %w", err)
	}

	res := &RPCResponse{}
	if err := json.Unmarshal(upstreamBody, res); err != nil {
		return nil, fmt.Errorf("invalid upstream response (status %v): %w", resp.StatusCode, err)
	}
	res.ID = req.ID
	if len(res.ID) == 0 {
		res.ID = json.RawMessage("null")
	}
	if res.Error == nil && len(res.Result) == 0 {
		res.Result = json.RawMessage("null")
	}

	p.logger.WithFields(logrus.Fields{
		"method":          req.Method,
		"duration_ms":     time.Since(start).Milliseconds(),
		"upstream_status": resp.StatusCode,
	}).Debug("forwarded rpc request")
	return res, nil
}
