package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/sogretobot/internal/bot"
	"github.com/example/sogretobot/internal/clock"
	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/database"
	"github.com/example/sogretobot/internal/export"
	"github.com/example/sogretobot/internal/logging"
	"github.com/example/sogretobot/internal/practice"
	"github.com/example/sogretobot/internal/scheduler"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:           "sogretobot",
		Short:         "Telegram bot guiding users through the anticipation practices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "path to the .env file")
	root.AddCommand(serveCmd(), checkContentCmd(), exportHistoryCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the reminder scheduler and the content watcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bot.LoadConfig(envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *bot.Config, logger *zap.Logger) error {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	users := database.NewUserRepository(db)

	store, err := content.NewStore(cfg.PracticesFile)
	if err != nil {
		return fmt.Errorf("failed to load practices: %w", err)
	}
	logger.Info("practices loaded",
		zap.String("path", store.Path()),
		zap.Int("stages", store.Tree().TotalStages()))

	clk := clock.Real()
	svc := practice.New(users, store, nil, practice.Config{
		AutoProceedDelay: cfg.AutoProceedDelay,
		PostponeFor:      cfg.PostponeFor,
		Clock:            clk,
		Logger:           logger,
	})
	defer svc.Shutdown()

	b, err := bot.NewBot(cfg, bot.Deps{
		Practice: svc,
		Stats:    users,
		History:  database.NewUserProgressRepository(db),
		Content:  store,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	svc.SetSink(b)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(users, store, b, scheduler.Config{
			Interval: cfg.ReminderInterval,
			Clock:    clk,
			Logger:   logger,
		})
		// set before polling starts, update handlers read it
		b.SetChecker(sched)
	} else {
		logger.Warn("reminder scheduler is disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(ctx) })
	}

	if cfg.WatchContent {
		w := content.NewWatcher(store, logger)
		g.Go(func() error { return w.Run(ctx) })
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func checkContentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-content [file]",
		Short: "Load a practices document and print its outline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := bot.DefaultPracticesFile
			if len(args) == 1 {
				path = args[0]
			} else if cfg, err := bot.LoadConfig(envFile); err == nil {
				path = cfg.PracticesFile
			}

			tree, err := content.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d stages\n", path, tree.TotalStages())
			for _, id := range tree.StageIDs() {
				stage, _ := tree.Stage(id)
				fmt.Fprintf(out, "  stage %d %q: %d steps", id, stage.StageName, len(stage.Steps))
				if days := stage.CycleLength(); days > 0 {
					fmt.Fprintf(out, ", %d-day cycle", days)
				}
				fmt.Fprintln(out)
			}
			for _, name := range []string{content.ScenarioReplant, content.ScenarioMold, content.ScenarioMoldSprouts, content.ScenarioAllDead} {
				if _, ok := tree.Scenario(name); !ok {
					fmt.Fprintf(out, "  warning: scenario %s is missing\n", name)
				}
			}
			return nil
		},
	}
}

func exportHistoryCmd() *cobra.Command {
	config := export.DefaultExportConfig()
	var since string

	cmd := &cobra.Command{
		Use:   "export-history",
		Short: "Write the practice history log to an .xlsx or .csv file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", since)
				}
				config.Since = t
			}

			cfg, err := bot.LoadConfig(envFile)
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			res, err := export.ExportHistory(cmd.Context(), database.NewUserProgressRepository(db), config)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries of %d users to %s\n", res.Rows, res.Users, config.FilePath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&config.FilePath, "out", "o", config.FilePath, "output file (.xlsx or .csv)")
	cmd.Flags().StringVar(&config.SheetName, "sheet", config.SheetName, "sheet name for Excel output")
	cmd.Flags().StringVar(&since, "since", "", "only entries from this date on (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&config.UserID, "user", 0, "only entries of this Telegram user ID")
	return cmd
}
