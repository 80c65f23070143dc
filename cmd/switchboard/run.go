package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchboard/internal/config"
	"github.com/fyrsmithlabs/switchboard/internal/logging"
	"github.com/fyrsmithlabs/switchboard/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	var (
		specialists []string
		complexity  float64
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Answer one query in-process and print the result",
		Long: `Run one query through the full pipeline in-process. Every provider is served
by the offline generator, so no API keys or network are needed. The result
is printed as JSON.

Examples:
  switchboard run "explain raft leader election"
  switchboard run --specialist architect --complexity 0.8 "design a sharded store"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFile(configPath)
			if err != nil {
				return err
			}

			logger := zap.NewNop()
			if verbose {
				logCfg, err := logging.ConfigFromApp(cfg.Logging)
				if err != nil {
					return err
				}
				logCfg.Format = "console"
				logCfg.Level = zap.DebugLevel
				log, err := logging.NewLogger(logCfg, nil)
				if err != nil {
					return err
				}
				defer func() { _ = log.Sync() }()
				logger = log.Underlying()
			}

			a, err := newApp(cfg, logger, nil, true)
			if err != nil {
				return err
			}
			if err := a.cache.Refresh(cmd.Context(), true); err != nil {
				return fmt.Errorf("loading specialists: %w", err)
			}

			res, runErr := a.driver.SelectAndRun(cmd.Context(), strings.Join(args, " "), orchestrator.QueryContext{
				Specialists: specialists,
				Complexity:  complexity,
			})
			if res == nil {
				return runErr
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Status != orchestrator.StatusCompleted {
				return errors.New(res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&specialists, "specialist", nil, "specialist id to consult (repeatable)")
	cmd.Flags().Float64Var(&complexity, "complexity", 0, "query complexity in (0,1]; estimated when zero")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress")
	return cmd
}
