package timestamp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	DefaultChain           = "polygon"
	DefaultContractAddress = "0xSIMULATED"
	DefaultExplorerURL     = "https://mumbai.polygonscan.com/tx/"
	DefaultDelay           = 2 * time.Second

	maxBlockNumber = 1_000_000
)

// SimulatorConfig configures the fabricated ledger.
type SimulatorConfig struct {
	Chain           string
	ContractAddress string
	ExplorerURL     string
	Delay           time.Duration
}

// Simulator stands in for a ledger. Every Stamp fabricates a transaction id
// and block number and waits Delay before answering.
type Simulator struct {
	cfg SimulatorConfig
	now func() time.Time
}

// NewSimulator creates a Simulator, filling unset fields with the defaults.
// A negative delay disables the wait.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Chain == "" {
		cfg.Chain = DefaultChain
	}
	if cfg.ContractAddress == "" {
		cfg.ContractAddress = DefaultContractAddress
	}
	if cfg.ExplorerURL == "" {
		cfg.ExplorerURL = DefaultExplorerURL
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	return &Simulator{cfg: cfg, now: time.Now}
}

// Stamp fabricates a transaction record for req.
func (s *Simulator) Stamp(ctx context.Context, req Request) (*Response, error) {
	tx, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	tx = "0x" + tx

	block, err := rand.Int(rand.Reader, big.NewInt(maxBlockNumber))
	if err != nil {
		return nil, fmt.Errorf("crypto/rand failure: %w", err)
	}

	ts := s.now().UnixMilli()

	if s.cfg.Delay > 0 {
		timer := time.NewTimer(s.cfg.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &Response{
		Success: true,
		Blockchain: &Blockchain{
			Chain:           s.cfg.Chain,
			ContractAddress: s.cfg.ContractAddress,
			TransactionHash: tx,
			BlockNumber:     block.Int64(),
			Timestamp:       ts,
			Explorer:        s.cfg.ExplorerURL + tx,
		},
		Hashes: &HashSet{
			LegalHash:   req.LegalHash,
			ContentHash: req.ContentHash,
			FloralHash:  req.FloralHash,
		},
	}, nil
}

// Verify answers a verification lookup. No chain is consulted, so every
// lookup is reported as confirmed.
func (s *Simulator) Verify(_ context.Context, txHash, legalHash string) (*VerifyResponse, error) {
	v := &Verification{
		LegalHash: legalHash,
		Confirmed: true,
		Timestamp: s.now().UnixMilli(),
	}
	if txHash != "" {
		v.TransactionHash = &txHash
	}
	return &VerifyResponse{Success: true, Verification: v}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}
	return hex.EncodeToString(b), nil
}
