package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/console"
	"github.com/mechcc/hotchocolabot/internal/dispense"
	"github.com/mechcc/hotchocolabot/internal/shutdown"
	"github.com/mechcc/hotchocolabot/internal/tui"
)

var version = "dev"

// shutdownTimeout bounds how long a signalled run may take to stop its pumps.
const shutdownTimeout = 10 * time.Second

func main() {
	logLevel := &slog.LevelVar{}
	logger := NewLogger(os.Stderr, logLevel)

	rootCmd := newRootCmd(viper.New(), logger, logLevel)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errPreflightFailed) {
			logger.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand.
type cli struct {
	v        *viper.Viper
	logger   *slog.Logger
	logLevel *slog.LevelVar
}

// newRootCmd builds the command tree. Flags are bound to v, which also
// reads HOTCHOC_* environment variables.
func newRootCmd(v *viper.Viper, logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	c := &cli{v: v, logger: logger, logLevel: logLevel}

	v.SetEnvPrefix("HOTCHOC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "hotchocolabot",
		Short: "Safety-interlocked hot chocolate dispenser",
		Long: `hotchocolabot drives a three-pump hot chocolate machine: milk, cocoa and
sugar. Every dispense is gated by preflight checks, temperature limits,
a per-pump runtime cap and a latching emergency stop.

Use the mock driver to run without hardware, gpio on a Raspberry Pi, or
serial for a microcontroller bridge.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool(FlagVerbose, false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().String(FlagConfig, "", "Config file path (default: .hotchocolabot/config.yaml)")
	rootCmd.PersistentFlags().String(FlagLogFile, "", "Debug log path used by the TUI and console")
	rootCmd.PersistentFlags().String(FlagSocketPath, "", "Control socket used by serve and its clients")
	rootCmd.PersistentFlags().String(FlagDriver, "", "Hardware driver: mock, gpio or serial")
	rootCmd.PersistentFlags().String(FlagSerialPort, "", "Serial bridge device")
	rootCmd.PersistentFlags().String(FlagMetricsTextfile, "", "Write Prometheus metrics to this file")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})

	rootCmd.AddCommand(
		c.versionCmd(),
		c.runCmd(),
		c.dispenseCmd(),
		c.preflightCmd(),
		c.consoleCmd(),
		c.configCmd(),
		c.serveCmd(),
		c.statusCmd(),
		c.estopCmd(),
		c.resetCmd(),
		c.orderCmd(),
		c.stopCmd(),
	)
	return rootCmd
}

// loadConfig reads the layered config and applies explicitly set flags.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if c.v.GetBool(FlagVerbose) {
		c.logLevel.Set(slog.LevelDebug)
	}

	cfg, err := config.LoadConfig(c.v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed(FlagDriver) {
		cfg.Hardware.Driver = c.v.GetString(FlagDriver)
	}
	if cmd.Flags().Changed(FlagSerialPort) {
		cfg.Hardware.SerialPort = c.v.GetString(FlagSerialPort)
	}
	if cmd.Flags().Changed(FlagMetricsTextfile) {
		cfg.Metrics.Textfile = c.v.GetString(FlagMetricsTextfile)
	}
	if cmd.Flags().Changed(FlagLogFile) {
		cfg.Paths.Log = c.v.GetString(FlagLogFile)
	}
	if cmd.Flags().Changed(FlagSocketPath) {
		cfg.Paths.Socket = c.v.GetString(FlagSocketPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Safety.VerboseLogging {
		c.logLevel.Set(slog.LevelDebug)
	}
	for _, w := range cfg.Warnings() {
		c.logger.Warn("config warning", "warning", w)
	}
	return cfg, nil
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hotchocolabot %s\n", version)
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [recipe]",
		Short: "Run preflight checks and dispense one drink",
		Long: `Run the preflight battery, then dispense one drink of the named recipe
(standard when omitted).

With a terminal attached the dashboard starts automatically; press e to
latch the emergency stop, r to reset it, d to dispense again and q to quit.
Use --tui=false for plain event output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			recipe := "standard"
			if len(args) == 1 {
				recipe = args[0]
			}
			if _, err := cfg.Recipes.Lookup(recipe); err != nil {
				return err
			}

			useTUI := tui.IsTerminal()
			if cmd.Flags().Changed(FlagTUI) {
				useTUI = c.v.GetBool(FlagTUI)
			}
			if useTUI {
				return c.runTUI(cmd.Context(), cfg, recipe)
			}
			return c.runPlain(cmd.Context(), cmd.OutOrStdout(), cfg, recipe)
		},
	}
	cmd.Flags().Bool(FlagTUI, false, "Force the terminal dashboard on or off")
	_ = c.v.BindPFlag(FlagTUI, cmd.Flags().Lookup(FlagTUI))
	return cmd
}

// runPlain streams events to out and dispenses once under signal handling.
func (c *cli) runPlain(ctx context.Context, out io.Writer, cfg *config.Config, recipe string) error {
	a, err := openApp(cfg, c.logger, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	printCtx, stopPrint := context.WithCancel(ctx)
	printed := make(chan struct{})
	eventsCh := a.router.Subscribe()
	go func() {
		defer close(printed)
		printEvents(printCtx, eventsCh, out)
	}()
	defer func() {
		a.router.Unsubscribe(eventsCh)
		<-printed
		stopPrint()
	}()

	a.start(ctx)
	c.logger.Info("hotchocolabot starting", "version", version, "driver", cfg.Hardware.Driver, "recipe", recipe)

	if err := a.preflight(ctx, io.Discard); err != nil {
		return err
	}

	return shutdown.RunWithGracefulShutdown(ctx, c.logger, shutdownTimeout,
		func(runCtx context.Context) error {
			return a.ctrl.Run(runCtx, a.monitor, recipe)
		},
		a.stopPumps,
	)
}

// runTUI runs the dashboard in the foreground and the dispense in the
// background. Logging moves to the debug log file.
func (c *cli) runTUI(ctx context.Context, cfg *config.Config, recipe string) error {
	logResult, err := SetupFileLogger(cfg.Paths.Log, c.logLevel, cfg.LogRotation)
	if err != nil {
		return fmt.Errorf("set up log file: %w", err)
	}
	defer func() { _ = logResult.Close() }()
	logger := logResult.Logger
	slog.SetDefault(logger)

	a, err := openApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	tuiEvents := a.router.SubscribeBuffered(5000)
	defer a.router.Unsubscribe(tuiEvents)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	dispenseOnce := func() {
		g.Go(func() error {
			err := a.ctrl.Run(gctx, a.monitor, recipe)
			switch {
			case err == nil, errors.Is(err, context.Canceled):
			case errors.Is(err, dispense.ErrBusy):
				logger.Info("dispense request ignored", "reason", err)
			default:
				logger.Error("dispense failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := a.preflight(gctx, io.Discard); err != nil {
			logger.Error("preflight failed", "error", err)
			return nil
		}
		dispenseOnce()
		return nil
	})

	app := tui.New(tuiEvents,
		tui.WithPanel(a.panel),
		tui.WithStatus(a.status),
		tui.WithOnEmergencyStop(func() {
			a.monitor.TriggerEmergencyStop("operator stop from dashboard")
		}),
		tui.WithOnReset(func() {
			if err := a.monitor.ResetEmergencyStop(); err != nil {
				logger.Warn("emergency stop reset refused", "error", err)
				return
			}
			g.Go(func() error {
				if err := a.preflight(gctx, io.Discard); err != nil {
					logger.Error("preflight after reset failed", "error", err)
				}
				return nil
			})
		}),
		tui.WithOnDispense(dispenseOnce),
		tui.WithOnQuit(cancel),
	)

	tuiErr := app.Run()

	cancel()
	_ = a.stopPumps(context.Background())
	_ = g.Wait()
	return tuiErr
}

func (c *cli) dispenseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispense <recipe>",
		Short: "Dispense one drink without the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := cfg.Recipes.Lookup(args[0]); err != nil {
				return err
			}
			return c.runPlain(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func (c *cli) preflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Run the preflight checks and report each result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cfg, c.logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			if err := a.preflight(cmd.Context(), out); err != nil {
				if errors.Is(err, errPreflightFailed) {
					fmt.Fprintln(out, "preflight FAILED: machine must not operate")
				}
				return err
			}
			fmt.Fprintln(out, "preflight passed")
			return nil
		},
	}
}

func (c *cli) consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			logResult, err := SetupFileLogger(cfg.Paths.Log, c.logLevel, cfg.LogRotation)
			if err != nil {
				return fmt.Errorf("set up log file: %w", err)
			}
			defer func() { _ = logResult.Close() }()
			logger := logResult.Logger

			a, err := openApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			a.start(ctx)

			out := cmd.OutOrStdout()
			if err := a.preflight(ctx, out); err != nil {
				fmt.Fprintf(out, "warning: %v; fix the fault and run preflight again\n", err)
			}

			con := console.New(a.ctrl, a.monitor, cfg, console.WithLogger(logger), console.WithOutput(out))
			err = con.Run(ctx)
			_ = a.stopPumps(context.Background())
			return err
		},
	}
}

func (c *cli) configCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Write the default configuration to .hotchocolabot/config.yaml, or with
--global to ~/.config/hotchocolabot/config.yaml. Existing files are kept
unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			global, _ := cmd.Flags().GetBool(FlagGlobal)
			force, _ := cmd.Flags().GetBool(FlagForce)

			path := config.ProjectConfigPath()
			if global {
				path = config.GlobalConfigPath()
				if path == "" {
					return errors.New("cannot determine the user config directory")
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --%s to overwrite)", path, FlagForce)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool(FlagForce, false, "Overwrite an existing file")
	initCmd.Flags().Bool(FlagGlobal, false, "Write the per-user config instead of the working-directory one")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = out.Write(data)
			for _, w := range cfg.Warnings() {
				fmt.Fprintf(out, "# warning: %s\n", w)
			}
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}
