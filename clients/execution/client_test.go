package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/rpctypes"
)

type upstreamRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type fakeUpstream struct {
	mutex    sync.Mutex
	results  map[string]string
	requests []*upstreamRequest
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := &upstreamRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mutex.Lock()
	f.requests = append(f.requests, req)
	result, ok := f.results[req.Method]
	f.mutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
		return
	}
	w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
}

func (f *fakeUpstream) lastRequest(method string) *upstreamRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method {
			return f.requests[i]
		}
	}
	return nil
}

func newTestClient(t *testing.T, results map[string]string) (*Client, *fakeUpstream) {
	upstream := &fakeUpstream{results: results}
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client, err := NewClient(logger, server.URL, map[string]string{"X-Api-Key": "secret"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, client.Initialize(context.Background()))
	t.Cleanup(client.Close)
	return client, upstream
}

func TestUpstreamChainData(t *testing.T) {
	txHash := common.HexToHash("0x1234")
	logJSON := `{"address":"0x000000000000000000000000000000000000c721","topics":[],"data":"0x","blockNumber":"0x5","transactionHash":"` + txHash.Hex() + `","transactionIndex":"0x0","blockHash":"0x00000000000000000000000000000000000000000000000000000000000000aa","logIndex":"0x0","removed":false}`
	client, upstream := newTestClient(t, map[string]string{
		"eth_chainId":               `"0x539"`,
		"eth_blockNumber":           `"0x10"`,
		"eth_getLogs":               `[` + logJSON + `]`,
		"eth_getBlockByHash":        `null`,
		"eth_getTransactionReceipt": `null`,
		"eth_getBlockReceipts":      `[]`,
	})
	ctx := context.Background()

	assert.Equal(t, uint64(1337), client.ChainID())

	head, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), head)

	logs, err := client.NativeLogs(ctx, &logindex.Query{FromBlock: 5, ToBlock: 6})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, txHash, logs[0].TxHash)
	assert.Equal(t, uint64(5), logs[0].BlockNumber)

	filterReq := upstream.lastRequest("eth_getLogs")
	require.NotNil(t, filterReq)
	filter := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(filterReq.Params[0], &filter))
	assert.Equal(t, "0x5", filter["fromBlock"])
	assert.Equal(t, "0x6", filter["toBlock"])

	_, found, err := client.BlockNumberByHash(ctx, common.HexToHash("0xaa"))
	require.NoError(t, err)
	assert.False(t, found)

	receipt, err := client.TransactionReceipt(ctx, txHash)
	require.NoError(t, err)
	assert.Nil(t, receipt)

	receipts, err := client.BlockReceipts(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	_, err = client.TransactionByHash(ctx, txHash)
	assert.Error(t, err)
}

func TestUpstreamForwardsNonPointerCalls(t *testing.T) {
	client, upstream := newTestClient(t, map[string]string{
		"eth_chainId": `"0x1"`,
		"eth_call":    `"0x2a"`,
	})

	to := common.HexToAddress("0x01")
	data := hexutil.Bytes{0x01, 0x02}
	output, err := client.Call(context.Background(), &rpctypes.TransactionArgs{To: &to, Data: &data})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, output)

	callReq := upstream.lastRequest("eth_call")
	require.NotNil(t, callReq)
	require.Len(t, callReq.Params, 2)
	assert.JSONEq(t, `"latest"`, string(callReq.Params[1]))
}
