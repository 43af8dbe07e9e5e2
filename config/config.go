// Package config holds the process configuration of the gateway.
//
// A Config is built once at startup from defaults, an optional YAML file and
// environment overrides, validated, and then injected read-only into every
// component. Validation failures are fatal at startup.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Default values
const (
	DefaultListenAddr      = ":3000"
	DefaultChainID         = int64(0)
	DefaultRegistryAddress = "0xdca7ef03e98e0dc2b855be647c39abe984fcf21b"
	DefaultDIDMethod       = "ethr"
	DefaultDIDNetwork      = "sepolia"
	DefaultInfuraURL       = "https://sepolia.infura.io/v3/"
	DefaultGasLimit        = uint64(0)
	DefaultRateLimitRPS    = 10
	DefaultRateLimitBurst  = 20
	DefaultLogLevel        = "info"
)

// Environment variable names
const (
	EnvConfigFile      = "GATEWAY_CONFIG"
	EnvPort            = "PORT"
	EnvListenAddr      = "GATEWAY_LISTEN_ADDR"
	EnvMetricsAddr     = "GATEWAY_METRICS_ADDR"
	EnvRPC             = "DID_RPC_URL"
	EnvInfuraProjectID = "INFURA_PROJECT_ID"
	EnvChainID         = "DID_CHAIN_ID"
	EnvRegistryAddress = "DID_REGISTRY_ADDRESS"
	EnvDIDMethod       = "DID_METHOD"
	EnvDIDNetwork      = "DID_NETWORK"
	EnvFeedbackAddress = "FEEDBACK_CONTRACT_ADDRESS"
	EnvRelayerKey      = "PRIVATE_KEY"
	EnvRemoteSigner    = "RELAYER_SIGNER_URL"
	EnvRemoteSignerKey = "RELAYER_SIGNER_API_KEY"
	EnvRelayerAddress  = "RELAYER_ADDRESS"
	EnvGasLimit        = "FEEDBACK_GAS_LIMIT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogJSON         = "LOG_JSON"
)

// Config is the complete gateway configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Chain  ChainConfig  `yaml:"chain"`
	DID    DIDConfig    `yaml:"did"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	EnablePprof bool   `yaml:"enablePprof"`
	// ReadTimeout bounds request reads only. Responses have no write
	// timeout because feedback submission waits for block confirmation.
	ReadTimeout              time.Duration `yaml:"readTimeout"`
	DrainDuration            time.Duration `yaml:"drainDuration"`
	GracefulShutdownDuration time.Duration `yaml:"gracefulShutdownDuration"`
	AllowedOrigins           []string      `yaml:"allowedOrigins"`
	RateLimitRPS             float64       `yaml:"rateLimitRPS"`
	RateLimitBurst           int           `yaml:"rateLimitBurst"`
}

// ChainConfig configures the chain client and the feedback contract.
type ChainConfig struct {
	// RPCURL is the JSON-RPC endpoint. When empty and InfuraProjectID is
	// set, the Sepolia Infura endpoint is used.
	RPCURL          string `yaml:"rpcURL"`
	InfuraProjectID string `yaml:"infuraProjectID"`
	// ChainID is optional; zero means "ask the node".
	ChainID         int64  `yaml:"chainID"`
	FeedbackAddress string `yaml:"feedbackContractAddress"`
	// RelayerKey is the hex private key of the account paying gas for
	// feedback submissions.
	RelayerKey string `yaml:"relayerPrivateKey"`
	// RemoteSignerURL, when set, replaces RelayerKey: digests are signed by
	// the external signing API for the account RelayerAddress.
	RemoteSignerURL    string `yaml:"remoteSignerURL"`
	RemoteSignerAPIKey string `yaml:"remoteSignerAPIKey"`
	RelayerAddress     string `yaml:"relayerAddress"`
	// GasLimit of zero lets the client estimate gas.
	GasLimit uint64 `yaml:"gasLimit"`
}

// DIDConfig configures DID derivation and resolution.
type DIDConfig struct {
	Method          string `yaml:"method"`
	Network         string `yaml:"network"`
	RegistryAddress string `yaml:"registryAddress"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Config filled with default values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:               DefaultListenAddr,
			ReadTimeout:              15 * time.Second,
			DrainDuration:            5 * time.Second,
			GracefulShutdownDuration: 30 * time.Second,
			AllowedOrigins:           []string{"*"},
			RateLimitRPS:             DefaultRateLimitRPS,
			RateLimitBurst:           DefaultRateLimitBurst,
		},
		Chain: ChainConfig{
			ChainID:  DefaultChainID,
			GasLimit: DefaultGasLimit,
		},
		DID: DIDConfig{
			Method:          DefaultDIDMethod,
			Network:         DefaultDIDNetwork,
			RegistryAddress: DefaultRegistryAddress,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and environment overrides, in that order. The result is standardized but
// not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.Standardize()

	return &cfg, nil
}

// ApplyEnvOverrides overwrites cfg fields with any set environment variables.
// Numeric and boolean variables that do not parse are reported together.
func ApplyEnvOverrides(cfg *Config) error {
	var errs []error

	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		cfg.Server.ListenAddr = ":" + port
	}
	setString(&cfg.Server.ListenAddr, EnvListenAddr)
	setString(&cfg.Server.MetricsAddr, EnvMetricsAddr)

	setString(&cfg.Chain.RPCURL, EnvRPC)
	setString(&cfg.Chain.InfuraProjectID, EnvInfuraProjectID)
	setString(&cfg.Chain.FeedbackAddress, EnvFeedbackAddress)
	setString(&cfg.Chain.RelayerKey, EnvRelayerKey)
	setString(&cfg.Chain.RemoteSignerURL, EnvRemoteSigner)
	setString(&cfg.Chain.RemoteSignerAPIKey, EnvRemoteSignerKey)
	setString(&cfg.Chain.RelayerAddress, EnvRelayerAddress)
	if raw := strings.TrimSpace(os.Getenv(EnvChainID)); raw != "" {
		chainID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", EnvChainID, raw, err))
		} else {
			cfg.Chain.ChainID = chainID
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvGasLimit)); raw != "" {
		gasLimit, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", EnvGasLimit, raw, err))
		} else {
			cfg.Chain.GasLimit = gasLimit
		}
	}

	setString(&cfg.DID.Method, EnvDIDMethod)
	setString(&cfg.DID.Network, EnvDIDNetwork)
	setString(&cfg.DID.RegistryAddress, EnvRegistryAddress)

	setString(&cfg.Log.Level, EnvLogLevel)
	if raw := strings.TrimSpace(os.Getenv(EnvLogJSON)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", EnvLogJSON, raw, err))
		} else {
			cfg.Log.JSON = v
		}
	}

	return errors.Join(errs...)
}

// Standardize fills derived and defaulted fields.
func (c *Config) Standardize() {
	if c.Chain.RPCURL == "" && c.Chain.InfuraProjectID != "" {
		c.Chain.RPCURL = DefaultInfuraURL + c.Chain.InfuraProjectID
	}
	if c.DID.Method == "" {
		c.DID.Method = DefaultDIDMethod
	}
	if c.DID.RegistryAddress == "" {
		c.DID.RegistryAddress = DefaultRegistryAddress
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	c.DID.Method = strings.TrimPrefix(strings.ToLower(c.DID.Method), "did:")
	c.DID.Network = strings.ToLower(c.DID.Network)
	c.DID.RegistryAddress = strings.ToLower(c.DID.RegistryAddress)
	c.Chain.FeedbackAddress = strings.ToLower(c.Chain.FeedbackAddress)
}

// Validate checks that every required field is present and well formed.
func (c *Config) Validate() error {
	var errs []error

	if c.Chain.RPCURL == "" {
		errs = append(errs, fmt.Errorf("RPC URL is required (set %s or %s)", EnvRPC, EnvInfuraProjectID))
	}
	if !common.IsHexAddress(c.Chain.FeedbackAddress) {
		errs = append(errs, fmt.Errorf("%s is not set or is not a valid address", EnvFeedbackAddress))
	}
	switch {
	case c.Chain.RemoteSignerURL != "":
		if !common.IsHexAddress(c.Chain.RelayerAddress) {
			errs = append(errs, fmt.Errorf("%s must be a valid address when %s is set", EnvRelayerAddress, EnvRemoteSigner))
		}
	case c.Chain.RelayerKey == "":
		errs = append(errs, fmt.Errorf("%s is not set", EnvRelayerKey))
	}
	if c.Chain.ChainID < 0 {
		errs = append(errs, errors.New("chain ID must not be negative"))
	}
	if !common.IsHexAddress(c.DID.RegistryAddress) {
		errs = append(errs, fmt.Errorf("invalid DID registry address: %q", c.DID.RegistryAddress))
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}

	return errors.Join(errs...)
}

// ChainIDBig returns the configured chain ID, or nil when it must be
// fetched from the node.
func (c *ChainConfig) ChainIDBig() *big.Int {
	if c.ChainID == 0 {
		return nil
	}
	return big.NewInt(c.ChainID)
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}
