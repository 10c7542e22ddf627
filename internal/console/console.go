// Package console provides the interactive operator shell.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mechcc/hotchocolabot/internal/config"
	"github.com/mechcc/hotchocolabot/internal/dispense"
	"github.com/mechcc/hotchocolabot/internal/safety"
)

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("quit")

// Console executes operator commands against one controller and monitor.
type Console struct {
	ctrl    *dispense.Controller
	monitor *safety.Monitor
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
}

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOutput sets where command output is written. Run replaces it with
// the readline writer.
func WithOutput(w io.Writer) Option {
	return func(c *Console) {
		c.out = w
	}
}

// New creates a console.
func New(ctrl *dispense.Controller, monitor *safety.Monitor, cfg *config.Config, opts ...Option) *Console {
	c := &Console{
		ctrl:    ctrl,
		monitor: monitor,
		cfg:     cfg,
		logger:  slog.Default(),
		out:     io.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hotchoc> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete:    c.completer(),
	})
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				fmt.Fprintln(c.out, "Exiting...")
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// Execute runs one command line. It returns ErrQuit for quit.
func (c *Console) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	c.logger.Debug("console command", "command", cmd, "args", args)

	switch cmd {
	case "help", "?":
		c.printHelp()
		return nil
	case "dispense", "d":
		return c.cmdDispense(ctx, args)
	case "stats":
		c.cmdStats()
		return nil
	case "status", "s":
		c.cmdStatus()
		return nil
	case "estop", "e":
		c.cmdEmergencyStop(args)
		return nil
	case "reset":
		return c.cmdReset(ctx)
	case "preflight", "p":
		return c.cmdPreflight(ctx)
	case "temp", "t":
		return c.cmdTemp(ctx)
	case "recipes":
		c.cmdRecipes()
		return nil
	case "quit", "exit", "q":
		return ErrQuit
	}
	return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
HotChocolaBot Commands:
  dispense [recipe]  - Make a drink (default: standard)
  recipes            - List recipes
  temp               - Read the temperature sensor
  stats              - Show pump runtime totals
  status             - Show safety state, latch and failure counter
  preflight          - Run the preflight checks
  estop [reason]     - Trigger the emergency stop
  reset              - Reset the emergency stop and re-run preflight
  help               - Show this help
  quit               - Exit`)
}

func (c *Console) cmdDispense(ctx context.Context, args []string) error {
	name := "standard"
	if len(args) > 0 {
		name = strings.ToLower(args[0])
	}
	recipe, err := c.cfg.Recipes.Lookup(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Dispensing %s (milk %s, cocoa %s, sugar %s)...\n", name,
		recipe.Duration(config.Milk), recipe.Duration(config.Cocoa), recipe.Duration(config.Sugar))

	if err := c.ctrl.DispenseRecipe(ctx, recipe, c.monitor); err != nil {
		if c.monitor.IsEmergencyStop() {
			fmt.Fprintf(c.out, "EMERGENCY STOP: %s\n", c.monitor.EmergencyStopReason())
		}
		return fmt.Errorf("dispense %s: %w", name, err)
	}
	fmt.Fprintln(c.out, "Complete! Enjoy!")
	return nil
}

func (c *Console) cmdStats() {
	s := c.ctrl.PumpStats()
	fmt.Fprintf(c.out, "Milk:  %s\nCocoa: %s\nSugar: %s\nTotal: %s\n", s.Milk, s.Cocoa, s.Sugar, s.Total())
}

func (c *Console) cmdStatus() {
	fmt.Fprintf(c.out, "State:    %s\n", c.monitor.State())
	if c.monitor.IsEmergencyStop() {
		fmt.Fprintf(c.out, "E-stop:   ACTIVE (%s)\n", c.monitor.EmergencyStopReason())
	} else {
		fmt.Fprintln(c.out, "E-stop:   clear")
	}
	fmt.Fprintf(c.out, "Failures: %d/%d\n", c.monitor.ConsecutiveFailures(), safety.MaxResetFailures)
}

func (c *Console) cmdEmergencyStop(args []string) {
	reason := "operator request"
	if len(args) > 0 {
		reason = strings.Join(args, " ")
	}
	c.monitor.TriggerEmergencyStop(reason)
	fmt.Fprintf(c.out, "Emergency stop triggered: %s\n", reason)
}

func (c *Console) cmdReset(ctx context.Context) error {
	if err := c.monitor.ResetEmergencyStop(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Fprintf(c.out, "Emergency stop reset (%d consecutive)\n", c.monitor.ConsecutiveFailures())
	return c.cmdPreflight(ctx)
}

func (c *Console) cmdPreflight(ctx context.Context) error {
	passed, err := c.monitor.RunPreflightChecks(ctx, c.ctrl.Hardware())
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	for _, r := range c.monitor.LastPreflight() {
		mark := "PASS"
		if !r.Passed {
			mark = strings.ToUpper(string(r.Severity))
		}
		fmt.Fprintf(c.out, "  %-8s %-20s %s\n", mark, r.Name, r.Message)
	}
	if !passed {
		fmt.Fprintln(c.out, "Preflight FAILED")
		return nil
	}
	fmt.Fprintln(c.out, "Preflight passed")
	return nil
}

func (c *Console) cmdTemp(ctx context.Context) error {
	temp, err := c.ctrl.Hardware().Sensor.ReadTemperature(ctx)
	if err != nil {
		return fmt.Errorf("read temperature: %w", err)
	}
	verdict := "ok"
	if err := c.monitor.ValidateTemperature(temp); err != nil {
		verdict = err.Error()
	}
	fmt.Fprintf(c.out, "Temperature: %.1fC (%s)\n", temp, verdict)
	return nil
}

func (c *Console) cmdRecipes() {
	for _, name := range c.cfg.Recipes.Names() {
		r, _ := c.cfg.Recipes.Lookup(name)
		fmt.Fprintf(c.out, "  %-10s milk %-6s cocoa %-6s sugar %-6s target %.0fC\n", name,
			r.Duration(config.Milk), r.Duration(config.Cocoa), r.Duration(config.Sugar), r.TargetTemp)
	}
}

func (c *Console) completer() *readline.PrefixCompleter {
	recipes := make([]readline.PrefixCompleterInterface, 0, 3)
	for _, name := range c.cfg.Recipes.Names() {
		recipes = append(recipes, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("dispense", recipes...),
		readline.PcItem("recipes"),
		readline.PcItem("temp"),
		readline.PcItem("stats"),
		readline.PcItem("status"),
		readline.PcItem("preflight"),
		readline.PcItem("estop"),
		readline.PcItem("reset"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
