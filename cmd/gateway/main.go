// Command gateway runs the DID and feedback HTTP gateway.
//
// The gateway generates ethr DIDs, signs and verifies EIP-191 messages,
// resolves DID documents from the on-chain registry, and relays signed
// feedback to the feedback contract, paying gas from a relayer account.
//
// # Configuration File
//
//	server:
//	  listenAddr: ":3000"
//	  metricsAddr: ":9090"
//	chain:
//	  rpcURL: "https://sepolia.infura.io/v3/<project>"
//	  feedbackContractAddress: "0x..."
//	  relayerPrivateKey: "0x..."
//	did:
//	  method: "ethr"
//	  network: "sepolia"
//
// Every field can be overridden from the environment (PORT, DID_RPC_URL,
// INFURA_PROJECT_ID, FEEDBACK_CONTRACT_ADDRESS, PRIVATE_KEY, ...).
//
// # Usage
//
//	go run ./cmd/gateway --config=gateway.yaml
//	PRIVATE_KEY=0x... FEEDBACK_CONTRACT_ADDRESS=0x... go run ./cmd/gateway
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pilacorp/go-did-gateway/api"
	"github.com/pilacorp/go-did-gateway/chain"
	"github.com/pilacorp/go-did-gateway/config"
	"github.com/pilacorp/go-did-gateway/feedback"
	"github.com/pilacorp/go-did-gateway/identity"
	"github.com/pilacorp/go-did-gateway/metrics"
	"github.com/pilacorp/go-did-gateway/signer"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file (default $GATEWAY_CONFIG)")
		listenAddr  = flag.String("listen-addr", "", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address")
		enablePprof = flag.Bool("pprof", false, "Enable the pprof debugging API")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *enablePprof {
		cfg.Server.EnablePprof = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("Gateway stopped with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", "did-gateway", "version", version)
}

func newRelayer(cfg config.ChainConfig) (signer.SignerProvider, error) {
	if cfg.RemoteSignerURL != "" {
		return signer.NewRemoteSigner(cfg.RemoteSignerURL, cfg.RemoteSignerAPIKey, cfg.RelayerAddress)
	}
	return signer.NewDefaultProvider(cfg.RelayerKey)
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainIDBig())
	if err != nil {
		return err
	}
	defer client.Close()

	relayer, err := newRelayer(cfg.Chain)
	if err != nil {
		return fmt.Errorf("failed to create relayer signer: %w", err)
	}

	feedbackContract, err := chain.NewFeedbackContract(client, cfg.Chain.FeedbackAddress, relayer, cfg.Chain.GasLimit)
	if err != nil {
		return err
	}

	registry, err := chain.NewRegistry(client, cfg.DID.RegistryAddress)
	if err != nil {
		return err
	}

	log.Info("Connected to chain",
		"chainID", client.ChainID().String(),
		"feedbackContract", feedbackContract.Address().Hex(),
		"registry", cfg.DID.RegistryAddress,
		"relayer", relayer.GetAddress(),
	)

	m := metrics.New()

	identitySvc := identity.NewService(client, registry, identity.Options{
		Method:  cfg.DID.Method,
		Network: cfg.DID.Network,
		ChainID: client.ChainID().Int64(),
	}, log)
	feedbackSvc := feedback.NewService(feedbackContract, log, m)

	api.Version = version
	srv := api.NewServer(&api.ServerConfig{
		ListenAddr:               cfg.Server.ListenAddr,
		MetricsAddr:              cfg.Server.MetricsAddr,
		EnablePprof:              cfg.Server.EnablePprof,
		Log:                      log,
		Metrics:                  m,
		DrainDuration:            cfg.Server.DrainDuration,
		GracefulShutdownDuration: cfg.Server.GracefulShutdownDuration,
		ReadTimeout:              cfg.Server.ReadTimeout,
		AllowedOrigins:           cfg.Server.AllowedOrigins,
		RateLimitRPS:             cfg.Server.RateLimitRPS,
		RateLimitBurst:           cfg.Server.RateLimitBurst,
	},
		api.NewDIDHandler(identitySvc, log),
		api.NewFeedbackHandler(feedbackSvc, log),
	)

	return srv.Run(ctx)
}
