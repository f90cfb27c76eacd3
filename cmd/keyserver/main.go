package main

import (
	"encoding/hex"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/sealflow/sealflow/api/keyserver"
	"github.com/sealflow/sealflow/cmd/flags"
	"github.com/sealflow/sealflow/httpserver"
	"github.com/sealflow/sealflow/interfaces"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.PackageIDFlag,
	flags.MasterKeyFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "keyserver",
		Usage: "Hold and conditionally release threshold key shares",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			packageID, err := interfaces.NewObjectIDFromHex(cCtx.String(flags.PackageIDFlag.Name))
			if err != nil {
				logger.Error("Invalid package ID", "err", err)
				return err
			}

			masterKeyHex := cCtx.String(flags.MasterKeyFlag.Name)
			if masterKeyHex == "" {
				logger.Error("master-key is required")
				return errors.New("master-key is required")
			}
			masterKey, err := hex.DecodeString(masterKeyHex)
			if err != nil {
				logger.Error("Invalid master key", "err", err)
				return err
			}

			handler, err := keyserver.NewHandler(keyserver.Config{
				PackageID: packageID,
				MasterKey: masterKey,
			}, logger)
			if err != nil {
				logger.Error("Failed to create key server handler", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Key server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
