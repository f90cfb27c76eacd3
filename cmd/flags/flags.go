package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/sealflow/sealflow/common"
	"github.com/sealflow/sealflow/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "sealflow",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var RPCAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Value: "http://127.0.0.1:9000",
	Usage: "address to connect to the ledger RPC",
}
var PackageIDFlag = &cli.StringFlag{
	Name:     "package-id",
	Required: true,
	Usage:    "on-chain package the seal manager module lives in. 64-char hex string, 0x prefix optional",
}
var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex-encoded secp256k1 private key for the local wallet",
	EnvVars: []string{"SEALFLOW_PRIVATE_KEY"},
}
var ChainIDFlag = &cli.StringFlag{
	Name:  "chain-id",
	Value: "testnet",
	Usage: "chain identifier included in submitted transactions",
}

var WalrusPublisherFlag = &cli.StringFlag{
	Name:  "walrus-publisher",
	Value: "https://publisher.walrus-testnet.walrus.space",
	Usage: "Walrus publisher base URL for blob uploads",
}
var WalrusAggregatorFlag = &cli.StringFlag{
	Name:  "walrus-aggregator",
	Value: "https://aggregator.walrus-testnet.walrus.space",
	Usage: "Walrus aggregator base URL for blob downloads",
}
var WalrusEpochsFlag = &cli.IntFlag{
	Name:  "walrus-epochs",
	Value: 1,
	Usage: "number of storage epochs to reserve for uploaded blobs",
}

var KeyServersFlag = &cli.StringSliceFlag{
	Name:  "key-server",
	Usage: "key server base URL, repeat for each share holder (at least two)",
}
var ThresholdFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "number of key shares required to reconstruct the data key",
}

var ProcessingURLFlag = &cli.StringFlag{
	Name:  "processing-url",
	Usage: "enclave processing service base URL; if unset, attestation is produced locally",
}
var ExplorerURLFlag = &cli.StringFlag{
	Name:  "explorer-url",
	Value: "https://explorer.example.net",
	Usage: "block explorer base URL used for object links in output",
}

var MasterKeyFlag = &cli.StringFlag{
	Name:    "master-key",
	Usage:   "hex-encoded master key for wrapping shares at rest (at least 32 bytes)",
	EnvVars: []string{"SEALFLOW_MASTER_KEY"},
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
}
