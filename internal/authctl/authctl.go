// Package authctl implements the operator commands of the auth service:
// bootstrapping the first admin, revoking a user's tokens and running a
// single token sweep against the configured storage.
package authctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/fieldauth/internal/flagx"
	"github.com/dmitrijs2005/fieldauth/internal/server/services"
)

const usage = `usage: authctl <command> [flags]

commands:
  create-admin  [-username name] [-email addr] [-full-name name]
  revoke-user   -user-id id
  sweep-once
`

// ErrUsage is returned for unknown commands and malformed command flags.
var ErrUsage = errors.New("usage error")

type Tools struct {
	Sessions *services.SessionService
	Revoker  *services.Revoker
	Sweeper  *services.Sweeper

	In  io.Reader
	Out io.Writer
}

// Run executes the command named by the first element of args.
func (t *Tools) Run(ctx context.Context, args []string) error {
	cmd, rest := flagx.Subcommand(args)
	switch cmd {
	case "create-admin":
		return t.createAdmin(ctx, rest)
	case "revoke-user":
		return t.revokeUser(ctx, rest)
	case "sweep-once":
		return t.sweepOnce(ctx)
	}
	fmt.Fprint(t.Out, usage)
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

// parse parses only the command's own flags; the rest of the process
// arguments belong to the config loader.
func parse(fs *flag.FlagSet, args []string) error {
	var allowed []string
	fs.VisitAll(func(f *flag.Flag) {
		allowed = append(allowed, "-"+f.Name, "--"+f.Name)
	})
	fs.SetOutput(io.Discard)
	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func (t *Tools) createAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	username := fs.String("username", "", "admin username")
	email := fs.String("email", "", "admin email")
	fullName := fs.String("full-name", "", "admin full name")
	if err := parse(fs, args); err != nil {
		return err
	}

	if strings.TrimSpace(*username) == "" {
		name, err := GetSimpleText(bufio.NewReader(t.In), "Admin username", t.Out)
		if err != nil {
			return err
		}
		*username = name
	}

	password, err := GetNewPassword(t.Out)
	if err != nil {
		return err
	}

	ident, err := t.Sessions.BootstrapAdmin(ctx, services.AdminFields{
		Username: *username,
		Email:    *email,
		Password: password,
		FullName: *fullName,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintf(t.Out, "admin %q created (id %s)\n", ident.Username, ident.ID)
	return nil
}

func (t *Tools) revokeUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke-user", flag.ContinueOnError)
	userID := fs.String("user-id", "", "user whose tokens are revoked")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("%w: -user-id is required", ErrUsage)
	}

	n, err := t.Revoker.RevokeAllForUser(ctx, *userID)
	if err != nil {
		return fmt.Errorf("revoke user: %w", err)
	}
	fmt.Fprintf(t.Out, "revoked %d token(s) of user %s\n", n, *userID)
	return nil
}

func (t *Tools) sweepOnce(ctx context.Context) error {
	n, err := t.Sweeper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(t.Out, "purged %d token(s)\n", n)
	return nil
}
