// Package execution serves native chain data from an upstream EVM node.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/ethpandaops/pointerbridge/clients/sshtunnel"
	"github.com/ethpandaops/pointerbridge/logindex"
	"github.com/ethpandaops/pointerbridge/pointer"
	"github.com/ethpandaops/pointerbridge/rpctypes"
	bridgetypes "github.com/ethpandaops/pointerbridge/types"
)

// ErrPointerWrite is returned for transactions to pointer contracts, which only the devnet sequences.
var ErrPointerWrite = errors.New("pointer transactions are not supported by the upstream backend")

type Client struct {
	logger    logrus.FieldLogger
	endpoint  string
	headers   map[string]string
	router    *pointer.Router
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	sshtunnel *sshtunnel.SSHTunnel
	chainId   uint64
}

// NewClient creates an upstream client. Calls to pointer addresses are answered by router.
func NewClient(logger logrus.FieldLogger, endpoint string, headers map[string]string, sshcfg *bridgetypes.EndpointSshConfig, router *pointer.Router) (*Client, error) {
	client := &Client{
		logger:   logger,
		endpoint: endpoint,
		headers:  headers,
		router:   router,
	}

	if sshcfg != nil {
		sshPort := 0
		if sshcfg.Port != "" {
			sshPort, _ = strconv.Atoi(sshcfg.Port)
		}
		if sshPort == 0 {
			sshPort = 22
		}
		sshEndpoint := fmt.Sprintf("%v@%v:%v", sshcfg.User, sshcfg.Host, sshPort)

		var sshAuth ssh.AuthMethod
		if sshcfg.Keyfile != "" {
			var err error
			sshAuth, err = sshtunnel.PrivateKeyFile(sshcfg.Keyfile)
			if err != nil {
				return nil, fmt.Errorf("could not load ssh keyfile: %w", err)
			}
		} else {
			sshAuth = ssh.Password(sshcfg.Password)
		}
		hostKeyCallback, err := sshtunnel.HostKeyCallback(sshcfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("could not load ssh known hosts: %w", err)
		}

		endpointUrl, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream endpoint: %w", err)
		}
		tunTarget := endpointUrl.Host
		if endpointUrl.Port() == "" {
			tunTargetPort := 80
			if endpointUrl.Scheme == "https" {
				tunTargetPort = 443
			}
			tunTarget = fmt.Sprintf("%v:%v", endpointUrl.Hostname(), tunTargetPort)
		}

		client.sshtunnel = sshtunnel.NewSSHTunnel(sshEndpoint, sshAuth, hostKeyCallback, tunTarget)
		client.sshtunnel.Log = logger.WithField("sshtun", sshcfg.Host)
		if err := client.sshtunnel.Start(); err != nil {
			return nil, fmt.Errorf("could not start ssh tunnel: %w", err)
		}

		endpointUrl.Host = fmt.Sprintf("localhost:%v", client.sshtunnel.Local.Port)
		client.endpoint = endpointUrl.String()
	}

	return client, nil
}

// Initialize dials the upstream node and reads its chain id.
func (c *Client) Initialize(ctx context.Context) error {
	if c.ethClient != nil {
		return nil
	}

	rpcClient, err := rpc.DialContext(ctx, c.endpoint)
	if err != nil {
		return err
	}
	for hKey, hVal := range c.headers {
		rpcClient.SetHeader(hKey, hVal)
	}

	ethClient := ethclient.NewClient(rpcClient)
	chainId, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return fmt.Errorf("failed to get upstream chain id: %w", err)
	}

	c.rpcClient = rpcClient
	c.ethClient = ethClient
	c.chainId = chainId.Uint64()
	c.logger.WithField("chainId", c.chainId).Info("connected to upstream node")
	return nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	if c.sshtunnel != nil {
		c.sshtunnel.Stop()
	}
}

func (c *Client) ChainID() uint64 {
	return c.chainId
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

func (c *Client) BlockNumberByHash(ctx context.Context, hash common.Hash) (uint64, bool, error) {
	header, err := c.ethClient.HeaderByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return header.Number.Uint64(), true, nil
}

func (c *Client) NativeLogs(ctx context.Context, query *logindex.Query) ([]*types.Log, error) {
	logs, err := c.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(query.FromBlock),
		ToBlock:   new(big.Int).SetUint64(query.ToBlock),
		Addresses: query.Addresses,
		Topics:    query.Topics,
	})
	if err != nil {
		return nil, err
	}
	result := make([]*types.Log, len(logs))
	for i := range logs {
		result[i] = &logs[i]
	}
	return result, nil
}

func (c *Client) BlockReceipts(ctx context.Context, number uint64) ([]*rpctypes.Receipt, error) {
	var receipts []*rpctypes.Receipt
	if err := c.rpcClient.CallContext(ctx, &receipts, "eth_getBlockReceipts", hexutil.Uint64(number)); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*rpctypes.Receipt, error) {
	var receipt *rpctypes.Receipt
	if err := c.rpcClient.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*rpctypes.Transaction, error) {
	var tx *rpctypes.Transaction
	if err := c.rpcClient.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	return tx, nil
}

// Call answers pointer calls locally and forwards everything else.
func (c *Client) Call(ctx context.Context, args *rpctypes.TransactionArgs) ([]byte, error) {
	if args.To != nil && c.router != nil {
		isPointer, err := c.router.IsPointer(ctx, *args.To)
		if err != nil {
			return nil, err
		}
		if isPointer {
			env := &pointer.Env{
				Caller:   args.GetFrom(),
				ReadOnly: true,
			}
			return c.router.Call(ctx, env, *args.To, args.GetData())
		}
	}

	var output hexutil.Bytes
	if err := c.rpcClient.CallContext(ctx, &output, "eth_call", args, "latest"); err != nil {
		return nil, err
	}
	return output, nil
}

func (c *Client) SendTransaction(ctx context.Context, args *rpctypes.TransactionArgs) (common.Hash, error) {
	if args.To != nil && c.router != nil {
		isPointer, err := c.router.IsPointer(ctx, *args.To)
		if err != nil {
			return common.Hash{}, err
		}
		if isPointer {
			return common.Hash{}, ErrPointerWrite
		}
	}

	var hash common.Hash
	if err := c.rpcClient.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}
