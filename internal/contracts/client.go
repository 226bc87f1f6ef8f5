package contracts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/clawinfra/stakeclaw/internal/chains"
)

// callArgs is the eth_call transaction object.
type callArgs struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// Client is one contract bound to a chain's transport.
type Client struct {
	kind        chains.ContractKind
	address     common.Address
	abi         abi.ABI
	fingerprint string
	caller      Caller
}

func (c *Client) Kind() chains.ContractKind { return c.kind }
func (c *Client) Address() common.Address   { return c.address }

// Fingerprint is the keccak-256 of the ABI blob the client was built from.
func (c *Client) Fingerprint() string { return c.fingerprint }

// HasMethod reports whether the ABI declares method.
func (c *Client) HasMethod(method string) bool {
	_, ok := c.abi.Methods[method]
	return ok
}

// Call runs a read-only method at the latest block and returns its decoded
// outputs.
func (c *Client) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: pack: %w", c.kind, method, err)
	}

	raw, err := c.caller(ctx, "eth_call", callArgs{To: c.address.Hex(), Data: hexutil.Encode(input)}, "latest")
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.kind, method, err)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("%s.%s: decode result: %w", c.kind, method, err)
	}
	output, err := hexutil.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: decode result: %w", c.kind, method, err)
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: unpack: %w", c.kind, method, err)
	}
	return values, nil
}
