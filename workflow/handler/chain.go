package handler

import (
	"context"

	"github.com/flowruntime/engine/workflow"
	"github.com/flowruntime/engine/workflow/breaker"
)

// PriceFeed answers the current price of an asset. Feed providers live
// behind this interface; implementations must honor ctx and surface
// classifier-matchable error strings.
type PriceFeed interface {
	Price(ctx context.Context, asset string) (float64, error)
}

// ChainReader reads state from a blockchain: a contract call, a balance,
// a storage slot. Opaque to the core.
type ChainReader interface {
	Read(ctx context.Context, chainID, target, query string) (map[string]any, error)
}

// ChainWriter submits a transaction to a blockchain and returns its hash.
// Opaque to the core; errors like "nonce too low" or "replacement
// transaction underpriced" must surface verbatim so the retry classifier
// can match them.
type ChainWriter interface {
	Submit(ctx context.Context, chainID, from, to string, payload map[string]any) (string, error)
}

// PriceMonitorHandler calls a PriceFeed and compares against a threshold.
type PriceMonitorHandler struct {
	feed PriceFeed
}

// NewPriceMonitorHandler returns a PriceMonitorHandler over feed. A nil
// feed makes every execution fail with CONFIG.
func NewPriceMonitorHandler(feed PriceFeed) *PriceMonitorHandler {
	return &PriceMonitorHandler{feed: feed}
}

func (h *PriceMonitorHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "asset", Kind: workflow.KindString, Required: true},
			{Name: "threshold", Kind: workflow.KindAny, Required: true},
			{Name: "direction", Kind: workflow.KindString}, // "above" (default) or "below"
		},
		Outputs: []workflow.Field{
			{Name: "price", Kind: workflow.KindNumber},
			{Name: "triggered", Kind: workflow.KindBoolean},
		},
	}
}

func (h *PriceMonitorHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	if h.feed == nil {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "no price feed configured for PRICE_MONITOR blocks")
	}
	asset, _ := input["asset"].(string)
	threshold, ok := toNumber(input["threshold"])
	if !ok {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "threshold must be numeric")
	}

	price, err := h.feed.Price(ctx, asset)
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	triggered := price >= threshold
	if stringOr(input, "direction", "above") == "below" {
		triggered = price <= threshold
	}
	return map[string]any{"price": price, "triggered": triggered}, nil
}

// BlockchainReadHandler calls a ChainReader, optionally guarded by the
// circuit breaker when the node opts in.
type BlockchainReadHandler struct {
	reader  ChainReader
	breaker *breaker.Breaker
}

// NewBlockchainReadHandler returns a BlockchainReadHandler. br may be
// nil, in which case reads are never breaker-guarded.
func NewBlockchainReadHandler(reader ChainReader, br *breaker.Breaker) *BlockchainReadHandler {
	return &BlockchainReadHandler{reader: reader, breaker: br}
}

func (h *BlockchainReadHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "chainId", Kind: workflow.KindString, Required: true},
			{Name: "target", Kind: workflow.KindString, Required: true},
			{Name: "query", Kind: workflow.KindString},
		},
		Outputs: []workflow.Field{
			{Name: "data", Kind: workflow.KindObject},
		},
	}
}

func (h *BlockchainReadHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	if h.reader == nil {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "no chain reader configured for BLOCKCHAIN_READ blocks")
	}
	chainID, _ := input["chainId"].(string)
	target, _ := input["target"].(string)
	query, _ := input["query"].(string)

	scope := workflow.CircuitScope{System: chainID, Principal: target}
	guarded := breakerOptIn(input, false)
	if guarded && h.breaker != nil {
		if err := h.breaker.Allow(ctx, scope, "read"); err != nil {
			return nil, err
		}
	}

	data, err := h.reader.Read(ctx, chainID, target, query)
	if guarded && h.breaker != nil {
		h.breaker.Record(ctx, scope, "read", err)
	}
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}
	return map[string]any{"data": data}, nil
}

// BlockchainTransactionHandler submits a transaction through a
// ChainWriter, consulting the circuit breaker first. Blockchain
// transactions are the breaker's primary consumer; useCircuitBreaker
// defaults to true and a node may opt out.
type BlockchainTransactionHandler struct {
	writer  ChainWriter
	breaker *breaker.Breaker
}

// NewBlockchainTransactionHandler returns a BlockchainTransactionHandler.
func NewBlockchainTransactionHandler(writer ChainWriter, br *breaker.Breaker) *BlockchainTransactionHandler {
	return &BlockchainTransactionHandler{writer: writer, breaker: br}
}

func (h *BlockchainTransactionHandler) Schema() workflow.Schema {
	return workflow.Schema{
		Inputs: []workflow.Field{
			{Name: "chainId", Kind: workflow.KindString, Required: true},
			{Name: "from", Kind: workflow.KindString, Required: true},
			{Name: "to", Kind: workflow.KindString, Required: true},
			{Name: "payload", Kind: workflow.KindObject},
		},
		Outputs: []workflow.Field{
			{Name: "txHash", Kind: workflow.KindString},
		},
	}
}

func (h *BlockchainTransactionHandler) Execute(ctx context.Context, hctx Context, _ workflow.Node, input map[string]any) (map[string]any, error) {
	if h.writer == nil {
		return nil, workflow.NewError(workflow.KindConfig, hctx.NodeID, "no chain writer configured for BLOCKCHAIN_TRANSACTION blocks")
	}
	chainID, _ := input["chainId"].(string)
	from, _ := input["from"].(string)
	to, _ := input["to"].(string)
	payload, _ := input["payload"].(map[string]any)

	scope := workflow.CircuitScope{System: chainID, Principal: from}
	if custom, ok := input["scope"].(string); ok && custom != "" {
		scope = workflow.CircuitScope{System: chainID, Principal: custom}
	}
	guarded := breakerOptIn(input, true)

	if guarded && h.breaker != nil {
		if err := h.breaker.Allow(ctx, scope, "transaction"); err != nil {
			if engErr, ok := err.(*workflow.Error); ok {
				engErr.NodeID = hctx.NodeID
			}
			return nil, err
		}
	}

	txHash, err := h.writer.Submit(ctx, chainID, from, to, payload)
	if guarded && h.breaker != nil {
		h.breaker.Record(ctx, scope, "transaction", err)
	}
	if err != nil {
		return nil, workflow.Wrap(workflow.KindExecution, hctx.NodeID, err)
	}

	hctx.Logger(workflow.LevelInfo, "transaction submitted", map[string]any{"chainId": chainID, "txHash": txHash})
	return map[string]any{"txHash": txHash}, nil
}

// breakerOptIn reads the useCircuitBreaker config option at this handler
// site.
func breakerOptIn(input map[string]any, fallback bool) bool {
	v, ok := input["useCircuitBreaker"]
	if !ok {
		return fallback
	}
	b, ok := toBool(v)
	if !ok {
		return fallback
	}
	return b
}
