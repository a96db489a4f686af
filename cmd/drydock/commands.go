// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/lanternworks/drydock/config"
	"github.com/lanternworks/drydock/diffapply"
	"github.com/lanternworks/drydock/engine"
	"github.com/lanternworks/drydock/generator"
	"github.com/lanternworks/drydock/pkg/logging"
	"github.com/lanternworks/drydock/workspace"
)

var (
	rootFlag string

	rootCmd = &cobra.Command{
		Use:   "drydock",
		Short: "Mutation-safety engine for model-generated code changes",
		Long: `Drydock turns untrusted model-generated change descriptions into
bounded, reversible, path-safe filesystem writes, with verification
and bounded auto-repair after every apply.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP engine over a workspace",
		Run:   runServe,
	}

	previewCmd = &cobra.Command{
		Use:   "preview [patch-file]",
		Short: "Preview a unified diff without writing anything",
		Args:  cobra.MaximumNArgs(1),
		Run:   runPreview,
	}

	applyCmd = &cobra.Command{
		Use:   "apply [patch-file]",
		Short: "Apply a unified diff and print the undo snapshot",
		Args:  cobra.MaximumNArgs(1),
		Run:   runApply,
	}

	revertCmd = &cobra.Command{
		Use:   "revert <snapshot-file>",
		Short: "Restore files from a saved undo snapshot",
		Args:  cobra.ExactArgs(1),
		Run:   runRevert,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Run the configured verification stages",
		Run:   runVerify,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "workspace root (default: detected from cwd)")
	rootCmd.AddCommand(serveCmd, previewCmd, applyCmd, revertCmd, verifyCmd)
}

// buildService assembles the engine for CLI use. Fatal on any setup error;
// there is nothing sensible to do without a workspace.
func buildService() (*engine.Service, config.Config, *slog.Logger) {
	root := rootFlag
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("Error resolving working directory: %v", err)
		}
		detected, err := workspace.DetectProjectRoot(cwd)
		if err != nil {
			log.Fatalf("Error detecting project root: %v", err)
		}
		root = detected.RootPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, _, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	slog.SetDefault(logger)

	ws, err := workspace.New(root)
	if err != nil {
		log.Fatalf("Error opening workspace: %v", err)
	}

	var gen generator.Generator
	if cfg.RuntimePort > 0 {
		gen = generator.NewLocalClient(cfg.RuntimePort, cfg.Model)
	}

	return engine.NewService(cfg, ws, gen, logger, nil), cfg, logger
}

// readPatchArg reads the patch from the file argument, or stdin when the
// argument is absent or "-".
func readPatchArg(args []string) string {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Error reading patch from stdin: %v", err)
		}
		return string(data)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading patch file: %v", err)
	}
	return string(data)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Error encoding output: %v", err)
	}
	fmt.Println(string(out))
}

func runServe(cmd *cobra.Command, args []string) {
	svc, cfg, logger := buildService()

	if err := svc.StartDriftWatch(context.Background()); err != nil {
		logger.Warn("drift watching disabled", "error", err.Error())
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	engine.SetupRoutes(router, svc)

	logger.Info("drydock listening", "addr", cfg.ListenAddr, "root", svc.Workspace().Root())
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}

func runPreview(cmd *cobra.Command, args []string) {
	svc, _, _ := buildService()
	preview, validation, err := svc.PreviewDiff(context.Background(), readPatchArg(args))
	if err != nil {
		log.Fatalf("Error previewing diff: %v", err)
	}
	printJSON(map[string]any{"preview": preview, "validation": validation})
}

func runApply(cmd *cobra.Command, args []string) {
	svc, _, _ := buildService()
	outcome, err := svc.ApplyDiff(context.Background(), readPatchArg(args))
	if outcome != nil {
		printJSON(outcome)
	}
	if err != nil {
		log.Fatalf("Error applying diff: %v", err)
	}
}

func runRevert(cmd *cobra.Command, args []string) {
	svc, _, _ := buildService()

	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading snapshot file: %v", err)
	}
	var snapshots []diffapply.FileSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		log.Fatalf("Error parsing snapshot file: %v", err)
	}
	printJSON(svc.RevertSnapshots(context.Background(), snapshots))
}

func runVerify(cmd *cobra.Command, args []string) {
	svc, _, _ := buildService()
	result, err := svc.Verify(context.Background())
	if result != nil {
		printJSON(result)
	}
	if err != nil {
		log.Fatalf("Error running verification: %v", err)
	}
	if result != nil && !result.AllPassed {
		os.Exit(1)
	}
}
