package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/mcpserver"
	"github.com/taskflow/taskflow/internal/storage"
	"github.com/taskflow/taskflow/internal/tools"
	"github.com/taskflow/taskflow/pkg/config"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve",
	Short: "Serve the task tools over stdio (spawned by the backend)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServe()
	},
}

func runMCPServe() error {
	// stdout carries the protocol; everything else goes to stderr.
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	logCfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The tool server opens its own database handle; it shares nothing
	// in-process with the backend that spawned it.
	store, err := storage.New(storageConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	executor := tools.NewExecutor(store, logger)
	srv := mcpserver.New(executor, version)

	logger.Info("task tool server starting on stdio")
	if err := server.ServeStdio(srv); err != nil {
		fmt.Fprintf(os.Stderr, "stdio server stopped: %v\n", err)
		return err
	}
	return nil
}
