package config

import (
	"time"

	"github.com/klingon-exchange/klingon-htlc/internal/chain"
)

// ChainTimeoutConfig holds chain-specific timelock parameters for HTLCs.
// These are specified in blocks, not time, for precision.
type ChainTimeoutConfig struct {
	// InitiatorBlocks is the relative timelock for the party that reveals
	// the secret. Its funds are locked longer so the counterparty can claim.
	InitiatorBlocks uint32

	// ParticipantBlocks is the relative timelock for the other side.
	// Must be shorter than InitiatorBlocks.
	ParticipantBlocks uint32

	// SafetyMarginBlocks is how close to the timelock a claim is still
	// considered safe. Past it, claim and refund race.
	SafetyMarginBlocks uint32

	// MinConfirmations is the depth a funding transaction needs before
	// it is treated as final.
	MinConfirmations uint32

	// AvgBlockTimeSeconds is the average block time for this chain.
	AvgBlockTimeSeconds uint32
}

// ChainTimeouts defines chain-specific timeout configurations.
var ChainTimeouts = map[string]ChainTimeoutConfig{
	"BTC": {
		InitiatorBlocks:     144, // ~24 hours at 10 min/block
		ParticipantBlocks:   72,  // ~12 hours
		SafetyMarginBlocks:  6,   // ~1 hour
		MinConfirmations:    3,
		AvgBlockTimeSeconds: 600,
	},
	"LTC": {
		InitiatorBlocks:     576, // ~24 hours at 2.5 min/block
		ParticipantBlocks:   288, // ~12 hours
		SafetyMarginBlocks:  24,  // ~1 hour
		MinConfirmations:    6,
		AvgBlockTimeSeconds: 150,
	},
}

// TestnetChainTimeouts defines the shorter timeouts used on testnet and
// regtest.
var TestnetChainTimeouts = map[string]ChainTimeoutConfig{
	"BTC": {
		InitiatorBlocks:     72,
		ParticipantBlocks:   36,
		SafetyMarginBlocks:  6,
		MinConfirmations:    0,
		AvgBlockTimeSeconds: 600,
	},
	"LTC": {
		InitiatorBlocks:     288,
		ParticipantBlocks:   144,
		SafetyMarginBlocks:  24,
		MinConfirmations:    0,
		AvgBlockTimeSeconds: 150,
	},
}

// GetChainTimeout returns the timeout configuration for a chain.
func GetChainTimeout(symbol string, network chain.Network) (ChainTimeoutConfig, bool) {
	if network == chain.Mainnet {
		cfg, ok := ChainTimeouts[symbol]
		return cfg, ok
	}
	cfg, ok := TestnetChainTimeouts[symbol]
	return cfg, ok
}

// IsSafeToComplete checks if there are more than safetyMargin blocks left
// before the timelock.
func IsSafeToComplete(currentHeight, timeoutHeight uint32, safetyMargin uint32) bool {
	if currentHeight >= timeoutHeight {
		return false
	}
	return currentHeight+safetyMargin < timeoutHeight
}

// BlocksUntilTimeout returns the number of blocks until timeout.
// Returns 0 if already past timeout.
func BlocksUntilTimeout(currentHeight, timeoutHeight uint32) uint32 {
	if currentHeight >= timeoutHeight {
		return 0
	}
	return timeoutHeight - currentHeight
}

// EstimateTimeUntilTimeout estimates the time until timeout based on block time.
func EstimateTimeUntilTimeout(currentHeight, timeoutHeight uint32, avgBlockTimeSeconds uint32) time.Duration {
	blocks := BlocksUntilTimeout(currentHeight, timeoutHeight)
	return time.Duration(blocks) * time.Duration(avgBlockTimeSeconds) * time.Second
}
