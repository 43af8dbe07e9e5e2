package chain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// -- Embeds & ABI Handling --

//go:embed abi/Feedback.json
var feedbackABIJSON []byte

//go:embed abi/EthereumDIDRegistry.json
var registryABIJSON []byte

var (
	feedbackABI     abi.ABI
	feedbackABIOnce sync.Once
	errFeedbackABI  error
	registryABI     abi.ABI
	registryABIOnce sync.Once
	errRegistryABI  error
)

// loadFeedbackABI parses the feedback contract ABI exactly once.
func loadFeedbackABI() (abi.ABI, error) {
	feedbackABIOnce.Do(func() {
		feedbackABI, errFeedbackABI = parseArtifact(feedbackABIJSON)
	})
	return feedbackABI, errFeedbackABI
}

// loadRegistryABI parses the DID registry ABI exactly once.
func loadRegistryABI() (abi.ABI, error) {
	registryABIOnce.Do(func() {
		registryABI, errRegistryABI = parseArtifact(registryABIJSON)
	})
	return registryABI, errRegistryABI
}

// parseArtifact extracts and parses the "abi" field of a hardhat artifact.
func parseArtifact(data []byte) (abi.ABI, error) {
	type hardhatArtifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("failed to unmarshal artifact JSON: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}
