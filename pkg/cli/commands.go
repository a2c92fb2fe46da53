package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/auth"
	"github.com/formulafinance/licensehub/pkg/licenses"
	"github.com/formulafinance/licensehub/pkg/rbac"
	"github.com/formulafinance/licensehub/pkg/storage"
)

func newMigrateCommand() *Command {
	return &Command{
		Name:        "migrate",
		Description: "Apply pending schema migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
		Run: func(ctx context.Context, env *Env, args []string) error {
			return withConnection(ctx, env, func(conn *storage.ConnectionManager) error {
				if err := storage.Migrate(ctx, conn.Primary(), conn.Driver()); err != nil {
					return err
				}
				version, err := storage.MigrationVersion(ctx, conn.Primary(), conn.Driver())
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "schema at version %d\n", version)
				return nil
			})
		},
	}
}

func newAssignRoleCommand() *Command {
	fs := flag.NewFlagSet("assign-role", flag.ContinueOnError)
	identity := fs.String("identity", "", "Identity-provider user ID")
	role := fs.String("role", "", "Role: superadmin, reseller, intermediary, client_basic or client_prospect")
	by := fs.String("by", "cli", "Recorded as the assigning identity")

	return &Command{
		Name:        "assign-role",
		Description: "Assign or replace a user's role",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := required(fs, "identity", "role"); err != nil {
				return err
			}
			parsed, ok := rbac.ParseRole(*role)
			if !ok {
				return fmt.Errorf("invalid role: %s", *role)
			}
			return withConnection(ctx, env, func(conn *storage.ConnectionManager) error {
				a, err := rbac.NewStore(conn.Primary()).SetRole(ctx, *identity, parsed, *by)
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "%s is now %s\n", a.Identity, a.Role)
				return nil
			})
		},
	}
}

func newGetRoleCommand() *Command {
	fs := flag.NewFlagSet("get-role", flag.ContinueOnError)
	identity := fs.String("identity", "", "Identity-provider user ID")

	return &Command{
		Name:        "get-role",
		Description: "Show a user's role",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := required(fs, "identity"); err != nil {
				return err
			}
			return withConnection(ctx, env, func(conn *storage.ConnectionManager) error {
				a, err := rbac.NewStore(conn.Primary()).GetAssignment(ctx, *identity)
				if apierrors.IsNotFound(err) {
					fmt.Fprintf(env.Out, "%s has no role\n", *identity)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "%s\t%s\t%s\n", a.Identity, a.Role, a.UpdatedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newIssueTokenCommand() *Command {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	identity := fs.String("identity", "", "Token subject")
	email := fs.String("email", "", "Optional email claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")

	return &Command{
		Name:        "issue-token",
		Description: "Sign an HS256 bearer token",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := required(fs, "identity"); err != nil {
				return err
			}
			if env.Auth.JWTSecret == "" {
				return errors.New("LICENSEHUB_JWT_SECRET is not set")
			}
			if *ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			signer := auth.NewHMACVerifier(env.Auth.JWTSecret, env.Auth.JWTIssuer, env.Auth.JWTAudience)
			token, err := signer.SignToken(*identity, *email, *ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Out, token)
			return nil
		},
	}
}

func newCreateModuleCommand() *Command {
	fs := flag.NewFlagSet("create-module", flag.ContinueOnError)
	name := fs.String("name", "", "Module key")
	displayName := fs.String("display-name", "", "Human readable name")
	description := fs.String("description", "", "Module description")

	return &Command{
		Name:        "create-module",
		Description: "Add a module to the catalogue",
		Flags:       fs,
		Run: func(ctx context.Context, env *Env, args []string) error {
			if err := required(fs, "name", "display-name"); err != nil {
				return err
			}
			return withConnection(ctx, env, func(conn *storage.ConnectionManager) error {
				m, err := licenses.NewStore(conn).CreateModule(ctx, *name, *displayName, *description)
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Out, "module %d: %s\n", m.ID, m.Name)
				return nil
			})
		},
	}
}

func newExpireLicensesCommand() *Command {
	return &Command{
		Name:        "expire-licenses",
		Description: "Mark lapsed licenses as expired",
		Flags:       flag.NewFlagSet("expire-licenses", flag.ContinueOnError),
		Run: func(ctx context.Context, env *Env, args []string) error {
			return withConnection(ctx, env, func(conn *storage.ConnectionManager) error {
				ids, err := licenses.NewStore(conn).ExpireLapsed(ctx, time.Now())
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(env.Out, "no lapsed licenses")
					return nil
				}
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = fmt.Sprint(id)
				}
				fmt.Fprintf(env.Out, "expired %d licenses: %s\n", len(ids), strings.Join(parts, ", "))
				return nil
			})
		},
	}
}
