package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/daemon"
	"github.com/mechcc/hotchocolabot/internal/shutdown"
)

// resolvePaths anchors the configured paths at the project root so serve
// and the control commands find the same socket from any subdirectory.
func resolvePaths(cfg *config.Config) error {
	paths, err := daemon.ResolvePaths(cfg.Paths, daemon.FindProjectRoot(""))
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	cfg.Paths = paths
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the machine as a service controlled over a Unix socket",
		Long: `Open the hardware, run the preflight checks and serve control requests on
paths.socket until SIGINT, SIGTERM or a stop request.

Drinks are ordered with "hotchocolabot order"; the emergency stop is latched
with "hotchocolabot estop" and cleared with "hotchocolabot reset". Orders are
refused until a preflight has passed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := resolvePaths(cfg); err != nil {
				return err
			}

			lock := daemon.NewInstanceLock(cfg.Paths.PID)
			if err := lock.Acquire(); err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			a, err := openApp(cfg, c.logger, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			a.start(ctx)

			d := daemon.New(cfg, a.ctrl, a.monitor, c.logger)
			passed, err := d.Preflight(ctx)
			if err != nil {
				return fmt.Errorf("preflight: %w", err)
			}
			if !passed {
				c.logger.Warn("preflight failed; orders are refused until preflight passes")
			}

			c.logger.Info("hotchocolabot serving",
				"version", version,
				"driver", cfg.Hardware.Driver,
				"socket", cfg.Paths.Socket,
				"pid_file", cfg.Paths.PID,
			)

			return shutdown.RunWithGracefulShutdown(ctx, c.logger, shutdownTimeout,
				d.Start,
				func(shutdownCtx context.Context) error {
					if err := a.stopPumps(shutdownCtx); err != nil {
						return err
					}
					return d.Stop()
				},
			)
		},
	}
}

// client builds a control client for the configured socket.
func (c *cli) client(cmd *cobra.Command) (*daemon.Client, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := resolvePaths(cfg); err != nil {
		return nil, err
	}
	return daemon.NewClient(cfg.Paths.Socket), nil
}

func (c *cli) statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running serve process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client(cmd)
			if err != nil {
				return err
			}
			status, err := client.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool(FlagJSON); asJSON {
				data, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal status: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "State:    %s\n", status.State)
			fmt.Fprintf(out, "Ready:    %t\n", status.Ready)
			if status.EmergencyStop {
				fmt.Fprintf(out, "E-stop:   ACTIVE (%s)\n", status.Reason)
			} else {
				fmt.Fprintln(out, "E-stop:   clear")
			}
			fmt.Fprintf(out, "Failures: %d\n", status.ConsecutiveFailures)
			fmt.Fprintf(out, "Uptime:   %s\n", status.Uptime)
			fmt.Fprintf(out, "Pumps:    milk %dms, cocoa %dms, sugar %dms\n",
				status.Pumps.MilkMS, status.Pumps.CocoaMS, status.Pumps.SugarMS)
			return nil
		},
	}
	cmd.Flags().Bool(FlagJSON, false, "Output status as JSON")
	return cmd
}

func (c *cli) estopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estop [reason...]",
		Short: "Latch the emergency stop on a running serve process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client(cmd)
			if err != nil {
				return err
			}
			reason := strings.Join(args, " ")
			if err := client.EmergencyStop(reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Emergency stop latched")
			return nil
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the emergency stop and re-run preflight on a running serve process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client(cmd)
			if err != nil {
				return err
			}
			pf, err := client.Reset()
			if err != nil {
				return err
			}
			return printRemotePreflight(cmd.OutOrStdout(), pf)
		},
	}
}

func (c *cli) orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order [recipe]",
		Short: "Order a drink from a running serve process and wait for it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client(cmd)
			if err != nil {
				return err
			}
			recipe := "standard"
			if len(args) == 1 {
				recipe = args[0]
			}
			result, err := client.Dispense(recipe)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ready in %s. Enjoy!\n", result.Recipe, result.Elapsed)
			return nil
		},
	}
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running serve process",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client(cmd)
			if err != nil {
				return err
			}
			if err := client.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop requested")
			return nil
		},
	}
}

func printRemotePreflight(w io.Writer, pf *daemon.PreflightResponse) error {
	for _, r := range pf.Checks {
		mark := "PASS"
		if !r.Passed {
			mark = r.Severity
		}
		fmt.Fprintf(w, "[%-8s] %-20s %s\n", mark, r.Name, r.Message)
	}
	if !pf.Passed {
		fmt.Fprintln(w, "preflight FAILED: orders are refused")
		return errPreflightFailed
	}
	fmt.Fprintln(w, "preflight passed")
	return nil
}
