package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/seed"
)

func newSeedCommand(env *Env) *Command {
	return &Command{
		Name:        "seed",
		Description: "Create roles and user assignments from a YAML seed file",
		Run: func(ctx context.Context, args []string) error {
			return runSeed(ctx, env, args)
		},
	}
}

func runSeed(ctx context.Context, env *Env, args []string) error {
	flags, target := newFlagSet(env, "seed")
	file := flags.String("file", "", "Seed file; the bundled demo seed is used when empty")
	watch := flags.Bool("watch", false, "Reapply the seed file whenever it changes")
	if err := parse(flags, args); err != nil {
		return err
	}
	if *watch && *file == "" {
		return fmt.Errorf("%w: -watch requires -file", ErrUsage)
	}

	f := seed.Default()
	if *file != "" {
		var err error
		if f, err = seed.Load(*file); err != nil {
			return err
		}
	}

	return withAdapter(ctx, env, *target, func(adapter rbac.Adapter) error {
		report, err := seed.Apply(ctx, adapter, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Seeded: %s\n", report)

		if !*watch {
			return nil
		}

		env.Logger.WithField("file", *file).Info("watching seed file for changes")
		return seed.Watch(ctx, *file, seed.DefaultDebounce, func(f *seed.File, err error) {
			if err != nil {
				env.Logger.WithError(err).Error("seed file reload failed")
				return
			}
			report, err := seed.Apply(ctx, adapter, f)
			if err != nil {
				env.Logger.WithError(err).Error("failed to apply seed file")
				return
			}
			env.Logger.WithField("created", report.Created).
				WithField("updated", report.Updated).
				WithField("assigned", report.Assigned).
				Info("seed file reapplied")
		})
	})
}

func newCheckCommand(env *Env) *Command {
	return &Command{
		Name:        "check",
		Description: "Check whether a user holds one or more permissions",
		Run: func(ctx context.Context, args []string) error {
			return runCheck(ctx, env, args)
		},
	}
}

func runCheck(ctx context.Context, env *Env, args []string) error {
	flags, target := newFlagSet(env, "check")
	user := flags.String("user", "", "User id")
	permission := flags.String("permission", "", "Permission, or a comma-separated list that must all be held")
	if err := parse(flags, args); err != nil {
		return err
	}
	if *user == "" || *permission == "" {
		return fmt.Errorf("%w: -user and -permission are required", ErrUsage)
	}

	var required []rbac.Permission
	for _, p := range strings.Split(*permission, ",") {
		if p = strings.TrimSpace(p); p != "" {
			required = append(required, rbac.Permission(p))
		}
	}

	return withAdapter(ctx, env, *target, func(adapter rbac.Adapter) error {
		enforcer := rbac.NewEnforcer(rbac.NewResolver(adapter))
		err := enforcer.RequireAll(ctx, *user, required...)
		switch {
		case err == nil:
			fmt.Fprintf(env.Out, "ALLOWED %s %s\n", *user, *permission)
			return nil
		case rbac.IsForbidden(err):
			fmt.Fprintf(env.Out, "DENIED %s %s\n", *user, *permission)
		}
		return err
	})
}

func newRolesCommand(env *Env) *Command {
	return &Command{
		Name:        "roles",
		Description: "List roles and their permissions",
		Run: func(ctx context.Context, args []string) error {
			return runRoles(ctx, env, args)
		},
	}
}

func runRoles(ctx context.Context, env *Env, args []string) error {
	flags, target := newFlagSet(env, "roles")
	all := flags.Bool("all", false, "Include deleted roles")
	if err := parse(flags, args); err != nil {
		return err
	}

	return withAdapter(ctx, env, *target, func(adapter rbac.Adapter) error {
		store, ok := rbac.RoleStoreOf(adapter)
		if !ok {
			return rbac.ErrReadOnly
		}
		roles, err := store.ListRoles(ctx, *all)
		if err != nil {
			return fmt.Errorf("failed to list roles: %w", err)
		}

		tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSTATUS\tPERMISSIONS")
		for _, r := range roles {
			status := "active"
			if r.IsDeleted() {
				status = "deleted"
			}
			perms := make([]string, len(r.Permissions))
			for i, p := range r.Permissions {
				perms[i] = string(p)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, status, strings.Join(perms, ","))
		}
		return tw.Flush()
	})
}

func newDeleteRoleCommand(env *Env) *Command {
	return &Command{
		Name:        "delete-role",
		Description: "Soft-delete a role; its users resolve to no permissions",
		Run: func(ctx context.Context, args []string) error {
			return runDeleteRole(ctx, env, args)
		},
	}
}

func runDeleteRole(ctx context.Context, env *Env, args []string) error {
	flags, target := newFlagSet(env, "delete-role")
	name := flags.String("name", "", "Role name")
	if err := parse(flags, args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("%w: -name is required", ErrUsage)
	}

	return withAdapter(ctx, env, *target, func(adapter rbac.Adapter) error {
		store, ok := rbac.RoleStoreOf(adapter)
		if !ok {
			return rbac.ErrReadOnly
		}
		if err := store.SoftDeleteRole(ctx, *name); err != nil {
			return fmt.Errorf("failed to delete role %q: %w", *name, err)
		}
		fmt.Fprintf(env.Out, "Deleted role %s\n", *name)
		return nil
	})
}

func newAssignCommand(env *Env) *Command {
	return &Command{
		Name:        "assign",
		Description: "Assign a role to a user, or clear it with an empty -role",
		Run: func(ctx context.Context, args []string) error {
			return runAssign(ctx, env, args)
		},
	}
}

func runAssign(ctx context.Context, env *Env, args []string) error {
	flags, target := newFlagSet(env, "assign")
	user := flags.String("user", "", "User id")
	role := flags.String("role", "", "Role name")
	if err := parse(flags, args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("%w: -user is required", ErrUsage)
	}

	return withAdapter(ctx, env, *target, func(adapter rbac.Adapter) error {
		assigner, ok := rbac.AssignerOf(adapter)
		if !ok {
			return rbac.ErrReadOnly
		}
		if err := assigner.AssignUserRole(ctx, *user, *role); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		if *role == "" {
			fmt.Fprintf(env.Out, "Cleared role for %s\n", *user)
		} else {
			fmt.Fprintf(env.Out, "Assigned %s to %s\n", *role, *user)
		}
		return nil
	})
}

func newTokenCommand(env *Env) *Command {
	return &Command{
		Name:        "token",
		Description: "Generate an API token for a user and print its config entry",
		Run: func(ctx context.Context, args []string) error {
			return runToken(env, args)
		},
	}
}

func runToken(env *Env, args []string) error {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	flags.SetOutput(env.Out)
	user := flags.String("user", "", "User id the token authenticates as")
	if err := parse(flags, args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("%w: -user is required", ErrUsage)
	}

	token, hash, prefix, err := auth.NewTokenGenerator().GenerateToken()
	if err != nil {
		return err
	}
	env.Logger.WithField("user", *user).WithField("prefix", prefix).Info("generated API token")

	fmt.Fprintf(env.Out, "token: %s\n", token)
	fmt.Fprintf(env.Out, "GATEKEEPER_AUTH_API_TOKENS=%s=%s\n", *user, hash)
	return nil
}
