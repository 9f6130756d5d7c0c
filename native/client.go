package native

import (
	"context"
	"encoding/json"
	"fmt"
)

// tokensPageSize bounds a single tokens/all_operators page; CW721 caps limits at 100.
const tokensPageSize = 100

// Client wraps a Host with typed CW721 messages.
type Client struct {
	host Host
}

func NewClient(host Host) *Client {
	return &Client{
		host: host,
	}
}

func (c *Client) Host() Host {
	return c.host
}

func (c *Client) Execute(ctx context.Context, contract string, sender string, msg *ExecuteMsg) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding %v message: %w", msg.Name(), err)
	}
	_, err = c.host.Execute(ctx, contract, sender, msgBytes)
	if err != nil {
		return fmt.Errorf("%v failed: %w", msg.Name(), err)
	}
	return nil
}

func (c *Client) query(ctx context.Context, contract string, req *QueryMsg, res interface{}) error {
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("error encoding %v query: %w", req.Name(), err)
	}
	resBytes, err := c.host.Query(ctx, contract, reqBytes)
	if err != nil {
		return fmt.Errorf("%v query failed: %w", req.Name(), err)
	}
	if err := json.Unmarshal(resBytes, res); err != nil {
		return fmt.Errorf("error decoding %v response: %w", req.Name(), err)
	}
	return nil
}

func (c *Client) ContractInfo(ctx context.Context, contract string) (*ContractInfoResponse, error) {
	res := &ContractInfoResponse{}
	err := c.query(ctx, contract, &QueryMsg{ContractInfo: &struct{}{}}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) OwnerOf(ctx context.Context, contract string, tokenId string) (*OwnerOfResponse, error) {
	res := &OwnerOfResponse{}
	err := c.query(ctx, contract, &QueryMsg{OwnerOf: &OwnerOfQuery{TokenId: tokenId}}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) NftInfo(ctx context.Context, contract string, tokenId string) (*NftInfoResponse, error) {
	res := &NftInfoResponse{}
	err := c.query(ctx, contract, &QueryMsg{NftInfo: &TokenQuery{TokenId: tokenId}}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Approvals(ctx context.Context, contract string, tokenId string) (*ApprovalsResponse, error) {
	res := &ApprovalsResponse{}
	err := c.query(ctx, contract, &QueryMsg{Approvals: &TokenQuery{TokenId: tokenId}}, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AllTokens pages through the tokens query until the owner's set is exhausted.
func (c *Client) AllTokens(ctx context.Context, contract string, owner string) ([]string, error) {
	tokens := []string{}
	startAfter := ""
	for {
		res := &TokensResponse{}
		err := c.query(ctx, contract, &QueryMsg{Tokens: &TokensQuery{Owner: owner, StartAfter: startAfter, Limit: tokensPageSize}}, res)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, res.Tokens...)
		if len(res.Tokens) < tokensPageSize {
			return tokens, nil
		}
		startAfter = res.Tokens[len(res.Tokens)-1]
	}
}

// AllOperators pages through the all_operators query.
func (c *Client) AllOperators(ctx context.Context, contract string, owner string) ([]string, error) {
	operators := []string{}
	startAfter := ""
	for {
		res := &OperatorsResponse{}
		err := c.query(ctx, contract, &QueryMsg{AllOperators: &AllOperatorsQuery{Owner: owner, StartAfter: startAfter, Limit: tokensPageSize}}, res)
		if err != nil {
			return nil, err
		}
		for _, op := range res.Operators {
			operators = append(operators, op.Spender)
		}
		if len(res.Operators) < tokensPageSize {
			return operators, nil
		}
		startAfter = res.Operators[len(res.Operators)-1].Spender
	}
}
