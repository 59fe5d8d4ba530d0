package protocol

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainSource fetches a RedStone payload from the calldata of an on-chain
// transaction: a consumer contract call that appends the payload after its
// ABI-encoded arguments. It wraps an ethclient.Client and only reads
// transaction input; it never signs or submits one.
type ChainSource struct {
	client *ethclient.Client
}

// NewChainSource dials rpcURL and returns a ChainSource reading from it.
func NewChainSource(ctx context.Context, rpcURL string) (*ChainSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	return &ChainSource{client: client}, nil
}

// FetchCalldata returns the raw input data of the transaction identified by
// txHash. The caller locates the payload within it (typically the last
// bytes) before calling DecodePayload.
func (s *ChainSource) FetchCalldata(ctx context.Context, txHash string) ([]byte, error) {
	if len(strings.TrimPrefix(txHash, "0x")) != 64 {
		return nil, fmt.Errorf("invalid transaction hash: %s", txHash)
	}
	tx, isPending, err := s.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if isPending {
		return nil, fmt.Errorf("transaction %s is still pending", txHash)
	}
	return tx.Data(), nil
}

// Close releases the underlying RPC connection.
func (s *ChainSource) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
