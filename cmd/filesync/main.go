package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filesync/internal/app"
	"filesync/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the application defaults.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults.ConfigPath, nil
}

// newApp reads the config and creates a FileSyncApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Analyze", "Apply").
func newApp(operation string) (*app.FileSyncApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewFileSyncApp(cfg, operation, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:          "filesync",
	Short:        "Reconcile stored files against their registered metadata",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Host ID:      %s\n", hostID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Storage Root: %s\n", cfg.StorageRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:        %s\n", cfg.HostID)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Storage Root:   %s\n", cfg.StorageRoot)
		fmt.Printf("Database:       %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Catalog:        %s %s\n", cfg.Catalog.Type, cfg.Catalog.Path)
		fmt.Printf("Workers:        %d (scan %d)\n", cfg.Sync.Workers, cfg.Sync.ScanWorkers)
		fmt.Printf("File deletion:  %v\n", cfg.Sync.AllowFileDeletion)
		fmt.Printf("Ignore:         %v\n", cfg.Filesystem.Ignore)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a snapshot of the metadata database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupDatabase")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDatabase(args[0]); err != nil {
			return err
		}
		fmt.Printf("Database written to %s\n", args[0])
		return nil
	},
}

// analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare files on disk with registered metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, _ := cmd.Flags().GetStringSlice("target")
		basePath, _ := cmd.Flags().GetString("path")
		outPath, _ := cmd.Flags().GetString("out")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp("Analyze")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext(cmd)
		defer cancel()

		report, err := a.Analyze(ctx, targets, basePath)
		if err != nil {
			return err
		}
		if outPath != "" {
			if err := app.SaveReport(outPath, report); err != nil {
				return err
			}
		}

		if asJSON || !isTerminal(os.Stdout) {
			return app.WriteJSON(os.Stdout, report)
		}
		printReport(os.Stdout, report)
		if outPath != "" {
			fmt.Printf("\nReport saved to %s\n", outPath)
		}
		return nil
	},
}

// apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply corrective actions to a saved analyze report",
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath, _ := cmd.Flags().GetString("report")
		actionsPath, _ := cmd.Flags().GetString("actions")
		actor, _ := cmd.Flags().GetString("actor")
		asJSON, _ := cmd.Flags().GetBool("json")

		report, err := app.LoadReport(reportPath)
		if err != nil {
			return err
		}
		items, err := app.LoadActions(actionsPath)
		if err != nil {
			return err
		}

		a, err := newApp("Apply")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext(cmd)
		defer cancel()

		out, err := a.Apply(ctx, report, items, actor)
		if err != nil {
			return err
		}

		if asJSON || !isTerminal(os.Stdout) {
			return app.WriteJSON(os.Stdout, out)
		}
		printApplyReport(os.Stdout, out)
		return nil
	},
}

// ignore command
var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Manage ignore entries",
}

var ignoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ignore entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")

		a, err := newApp("ListIgnores")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListIgnores(cmd.Context(), target)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No ignore entries.")
			return nil
		}
		printIgnores(os.Stdout, entries)
		return nil
	},
}

var ignoreRmCmd = &cobra.Command{
	Use:   "rm TARGET PATH",
	Short: "Remove an ignore entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RemoveIgnore")
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.RemoveIgnore(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println("No ignore entry found.")
			return nil
		}
		fmt.Printf("Removed ignore entry for %s %s\n", args[0], args[1])
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [OPERATION_ID]",
	Short: "View sync operation history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			var id int64
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid operation id %q", args[0])
			}
			entries, err := a.ActionLog(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No actions recorded for this operation.")
				return nil
			}
			printActionLog(os.Stdout, entries)
			return nil
		}

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No sync operations recorded.")
			return nil
		}
		printHistory(os.Stdout, ops)
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run analyze when stored files change",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, _ := cmd.Flags().GetStringSlice("target")
		basePath, _ := cmd.Flags().GetString("path")
		interval, _ := cmd.Flags().GetDuration("interval")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		outPath, _ := cmd.Flags().GetString("out")

		a, err := newApp("Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext(cmd)
		defer cancel()

		return a.Watch(ctx, app.WatchOptions{
			Targets:    targets,
			BasePath:   basePath,
			Interval:   interval,
			Debounce:   debounce,
			ReportPath: outPath,
		})
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// ignore subcommands
	ignoreCmd.AddCommand(ignoreListCmd)
	ignoreCmd.AddCommand(ignoreRmCmd)
	ignoreListCmd.Flags().StringP("target", "t", "", "Only list entries for this target")

	analyzeCmd.Flags().StringSliceP("target", "t", nil, "Target to analyze (repeatable, default all)")
	analyzeCmd.Flags().StringP("path", "p", "", "Sub-path below each domain root")
	analyzeCmd.Flags().StringP("out", "o", "", "Save the report for apply")
	analyzeCmd.Flags().Bool("json", false, "Print the report as JSON")

	applyCmd.Flags().String("report", "", "Report written by analyze --out")
	applyCmd.Flags().String("actions", "", "JSON array of {discrepancy_id, action, metadata}")
	applyCmd.Flags().String("actor", "", "Identity recorded as creator and in history")
	applyCmd.Flags().Bool("json", false, "Print results as JSON")
	applyCmd.MarkFlagRequired("report")
	applyCmd.MarkFlagRequired("actions")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	watchCmd.Flags().StringSliceP("target", "t", nil, "Target to analyze (repeatable, default all)")
	watchCmd.Flags().StringP("path", "p", "", "Sub-path below each domain root")
	watchCmd.Flags().Duration("interval", 0, "Also re-run analyze on this interval (0 disables)")
	watchCmd.Flags().Duration("debounce", 0, "Quiet period after file changes (default 500ms)")
	watchCmd.Flags().StringP("out", "o", "", "Save each report to this file")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(ignoreCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}
