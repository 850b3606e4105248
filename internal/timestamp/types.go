// Package timestamp talks to the blockchain timestamping endpoint.
//
// No ledger is contacted anywhere in this package: the Simulator fabricates
// transaction records, and the Requester fabricates its own placeholder when
// the endpoint cannot be reached. Only the JSON shapes are meant to survive a
// real integration.
package timestamp

import (
	"strings"
	"time"
)

// SimulatedPrefix marks transaction ids fabricated by the client fallback.
const SimulatedPrefix = "0xSIM"

// Request is the body of POST /api/blockchain/timestamp.
type Request struct {
	LegalHash   string `json:"legalHash"`
	ContentHash string `json:"contentHash"`
	FloralHash  string `json:"floralHash"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	MimeType    string `json:"mimeType"`
	UserID      string `json:"userId,omitempty"`
}

// Blockchain describes a (fabricated) ledger transaction.
type Blockchain struct {
	Chain           string `json:"chain"`
	ContractAddress string `json:"contractAddress"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     int64  `json:"blockNumber"`
	Timestamp       int64  `json:"timestamp"`
	Explorer        string `json:"explorer"`
}

// HashSet echoes the submitted hashes back to the caller.
type HashSet struct {
	LegalHash   string `json:"legalHash"`
	ContentHash string `json:"contentHash"`
	FloralHash  string `json:"floralHash"`
}

// Response is the body returned by POST /api/blockchain/timestamp.
type Response struct {
	Success    bool        `json:"success"`
	Blockchain *Blockchain `json:"blockchain,omitempty"`
	Hashes     *HashSet    `json:"hashes,omitempty"`
	Error      string      `json:"error,omitempty"`
	Details    string      `json:"details,omitempty"`
}

// Verification is the payload of a verification lookup.
type Verification struct {
	TransactionHash *string `json:"transactionHash"`
	LegalHash       string  `json:"legalHash,omitempty"`
	Confirmed       bool    `json:"confirmed"`
	Timestamp       int64   `json:"timestamp"`
}

// VerifyResponse is the body returned by GET /api/blockchain/timestamp.
type VerifyResponse struct {
	Success      bool          `json:"success"`
	Verification *Verification `json:"verification,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Result is what the pipeline keeps from a timestamp request, whether it came
// from the endpoint or from the local fallback.
type Result struct {
	Chain           string    `json:"chain,omitempty"`
	ContractAddress string    `json:"contractAddress,omitempty"`
	TransactionHash string    `json:"transactionHash"`
	BlockNumber     int64     `json:"blockNumber,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Explorer        string    `json:"explorer,omitempty"`
}

// Simulated reports whether the result was fabricated by the client fallback.
func (r Result) Simulated() bool {
	return IsSimulated(r.TransactionHash)
}

// IsSimulated reports whether txHash carries the fallback prefix.
func IsSimulated(txHash string) bool {
	return strings.HasPrefix(txHash, SimulatedPrefix)
}

// ResultFrom converts an endpoint transaction into a Result.
func ResultFrom(b *Blockchain) Result {
	return Result{
		Chain:           b.Chain,
		ContractAddress: b.ContractAddress,
		TransactionHash: b.TransactionHash,
		BlockNumber:     b.BlockNumber,
		Timestamp:       time.UnixMilli(b.Timestamp).UTC(),
		Explorer:        b.Explorer,
	}
}
