package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Adapter drives an EVM account-model ledger. The signed payload it receives
// is an opaque RLP-encoded raw transaction produced by the signer; the
// adapter only broadcasts it and reads receipts back.
type Adapter struct {
	rpcClient *rpc.Client
	client    *ethclient.Client
	timeout   time.Duration
	logger    *zap.Logger
}

func NewAdapter(ctx context.Context, rpcURL string, timeout time.Duration, logger *zap.Logger) (*Adapter, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum: %w", err)
	}

	logger.Info("ethereum adapter initialized", zap.String("rpc", rpcURL))

	return &Adapter{
		rpcClient: rpcClient,
		client:    ethclient.NewClient(rpcClient),
		timeout:   timeout,
		logger:    logger,
	}, nil
}

func (a *Adapter) Name() domain.ChainName {
	return domain.ChainEthereum
}

func (a *Adapter) Submit(ctx context.Context, signedPayload string) (*domain.SubmissionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var txHash common.Hash
	err := a.rpcClient.CallContext(ctx, &txHash, "eth_sendRawTransaction", signedPayload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Transient(fmt.Errorf("ethereum submit timed out: %w", err))
		}
		// The node parsed the payload and rejected it.
		return &domain.SubmissionResult{
			Accepted:   false,
			ResultCode: err.Error(),
		}, nil
	}

	a.logger.Info("ethereum transaction submitted", zap.String("tx_hash", txHash.Hex()))

	return &domain.SubmissionResult{
		Accepted:   true,
		ResultCode: "accepted",
	}, nil
}

func (a *Adapter) GetTransaction(ctx context.Context, hash string) (*domain.TxInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, goethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Transient(fmt.Errorf("failed to get ethereum receipt: %w", err))
	}

	raw, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}

	blockNumber := receipt.BlockNumber.Int64()

	return &domain.TxInfo{
		Confirmed:      receipt.BlockNumber.Sign() > 0,
		LedgerPosition: &blockNumber,
		Raw:            raw,
	}, nil
}
