package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
)

// ErrUsage is returned when the command line cannot be parsed
var ErrUsage = errors.New("invalid usage")

// Opener connects to the adapter a command operates on. target overrides
// the configured connection target when non-empty.
type Opener func(ctx context.Context, target string) (rbac.Adapter, error)

// Env carries the process-level dependencies commands use
type Env struct {
	Out    io.Writer
	Logger *logrus.Logger
	Open   Opener
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command

	env *Env
}

// NewRootCommand creates the root command. Zero fields of env fall back to
// stdout, a text logrus logger and OpenFromEnv.
func NewRootCommand(env Env) *Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Logger == nil {
		env.Logger = logrus.New()
		env.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if env.Open == nil {
		env.Open = OpenFromEnv
	}

	root := &Command{
		Name:        "gatekeeper-cli",
		Description: "Gatekeeper - role and permission administration",
		Subcommands: make(map[string]*Command),
		env:         &env,
	}

	root.add(newSeedCommand(root.env))
	root.add(newCheckCommand(root.env))
	root.add(newRolesCommand(root.env))
	root.add(newDeleteRoleCommand(root.env))
	root.add(newAssignCommand(root.env))
	root.add(newTokenCommand(root.env))

	return root
}

func (c *Command) add(sub *Command) {
	c.Subcommands[sub.Name] = sub
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		c.usage()
		return nil
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	c.usage()
	return fmt.Errorf("%w: unknown command: %s", ErrUsage, args[0])
}

// usage prints the command usage
func (c *Command) usage() {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(c.env.Out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.env.Out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(c.env.Out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting and
// carries the shared -target flag
func newFlagSet(env *Env, name string) (*flag.FlagSet, *string) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(env.Out)
	target := flags.String("target", "", "Connection target, overrides GATEKEEPER_STORAGE_CONNECTION_TARGET")
	return flags, target
}

func parse(flags *flag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// withAdapter opens the adapter, runs fn and closes the adapter
func withAdapter(ctx context.Context, env *Env, target string, fn func(rbac.Adapter) error) error {
	adapter, err := env.Open(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to open adapter: %w", err)
	}
	defer func() {
		if err := rbac.Close(adapter); err != nil {
			env.Logger.WithError(err).Warn("failed to close adapter")
		}
	}()
	return fn(adapter)
}

// OpenFromEnv reads GATEKEEPER_STORAGE_* variables and opens the adapter.
// The read cache is always disabled for CLI use.
func OpenFromEnv(ctx context.Context, target string) (rbac.Adapter, error) {
	cfg := storage.DefaultConfig()
	if err := envconfig.Process("GATEKEEPER_STORAGE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if target != "" {
		cfg.ConnectionTarget = target
		cfg.Type = ""
	}
	cfg.CacheEnabled = false
	return storage.NewAdapter(ctx, cfg)
}
