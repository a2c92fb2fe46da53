package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/formulafinance/licensehub/pkg/config"
	"github.com/formulafinance/licensehub/pkg/storage"
)

// Env is what commands need from the outside world
type Env struct {
	Out  io.Writer
	Auth config.AuthConfig
	// Connect opens the database; the caller closes the returned manager
	Connect func(ctx context.Context) (*storage.ConnectionManager, error)
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "licensehub-cli",
		Description: "licensehub administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("licensehub-cli", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newMigrateCommand(),
		newAssignRoleCommand(),
		newGetRoleCommand(),
		newIssueTokenCommand(),
		newCreateModuleCommand(),
		newExpireLicensesCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return c.usage(env.Out)
	}

	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage(env.Out)
	}

	subcmd, ok := c.Subcommands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	if subcmd.Flags != nil {
		subcmd.Flags.SetOutput(env.Out)
		if err := subcmd.Flags.Parse(args[1:]); err != nil {
			return err
		}
		args = subcmd.Flags.Args()
	} else {
		args = args[1:]
	}
	return subcmd.Run(ctx, env, args)
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-17s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// withConnection opens the database for the duration of fn
func withConnection(ctx context.Context, env *Env, fn func(conn *storage.ConnectionManager) error) error {
	conn, err := env.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// required returns an error naming the first empty flag
func required(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if f := fs.Lookup(name); f == nil || strings.TrimSpace(f.Value.String()) == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}
