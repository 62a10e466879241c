// Command cryptree-blockd serves a cryptree block store over HTTP and
// provisions new trees against it.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/cryptree-go/blockstore"
	"github.com/bitfsorg/cryptree-go/config"
	"github.com/bitfsorg/cryptree-go/cryptree"
	"github.com/bitfsorg/cryptree-go/sequencer"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	userID     uint32
	writeSpace uint16
)

var rootCmd = &cobra.Command{
	Use:           "cryptree-blockd",
	Short:         "Cryptree block server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.ConfigPath(config.DefaultDataDir())
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured block store over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closeLog, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()

		store, closeStore, err := blockstore.Open(cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg.ListenAddr, blockstore.NewHandler(store, log), log)
	},
}

var newRootCmd = &cobra.Command{
	Use:   "newroot",
	Short: "Create an empty root directory and print its write capability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closeLog, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()

		store, closeStore, err := blockstore.Open(cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		seq, err := sequencer.OpenBoltSequencer(filepath.Join(cfg.DataDir, "sequence.db"), log)
		if err != nil {
			return err
		}
		defer func() { _ = seq.Close() }()

		w, err := cryptree.NewWriter(store, seq, userID, writeSpace, cryptree.WithKeyVersion(cfg.KeyVersion))
		if err != nil {
			return err
		}
		root, err := w.CreateRoot()
		if err != nil {
			return err
		}
		log.WithField("location", root.Location).Info("created root")

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "location %s\n", root.Location)
		fmt.Fprintf(out, "base     %s\n", hex.EncodeToString(root.Base[:]))
		fmt.Fprintf(out, "write    %s\n", hex.EncodeToString(root.Write[:]))
		return nil
	},
}

// setup loads and validates the configuration and builds the logger.
func setup() (config.Config, *logrus.Logger, func() error, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath(config.DefaultDataDir())
	}
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrConfigNotFound) && configPath == "" {
		cfg, err = config.DefaultConfig(), nil
	}
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, nil, nil, err
	}
	log, closeLog, err := config.NewLogger(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		_ = closeLog()
		return cfg, nil, nil, fmt.Errorf("create data directory: %w", err)
	}
	return cfg, log, closeLog, nil
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving blocks")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (key=value or .yaml)")
	newRootCmd.Flags().Uint32Var(&userID, "user", 1, "user_id of the new tree's write space")
	newRootCmd.Flags().Uint16Var(&writeSpace, "space", 1, "write_space of the new tree")

	rootCmd.AddCommand(initCmd, serveCmd, newRootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cryptree-blockd:", err)
		os.Exit(1)
	}
}
