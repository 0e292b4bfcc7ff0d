package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/auth"
	"github.com/tendant/simple-blog/pkg/simpleblog/auth/sessioncache"
	"github.com/tendant/simple-blog/pkg/simpleblog/config"
	"github.com/tendant/simple-blog/pkg/simpleblog/hash"
)

const usage = `Simple Blog Admin CLI

A lightweight admin tool for blog content stores.

USAGE:
  blogctl <command> [options]

COMMANDS:
  init            Bootstrap a store (creates index, users and the default admin)
  list            List all document headers in the store
  users           List credential records (password hashes omitted)
  reset-password  Reset a user's password: blogctl reset-password <username> <password>
  check-login     Verify a username/password pair: blogctl check-login <username> <password>

ENVIRONMENT VARIABLES:
  BLOG_PROVIDER     Backend name: memory, fs or sqlite (default: memory)
  BLOG_CONNECTION   Provider connection string, e.g. "path=/var/lib/blog"
  BLOG_SESSION_TTL  Session token lifetime (default: 30m)

EXAMPLES:
  BLOG_PROVIDER=fs BLOG_CONNECTION="path=./data" blogctl init
  BLOG_PROVIDER=fs BLOG_CONNECTION="path=./data" blogctl list --json
  BLOG_PROVIDER=sqlite BLOG_CONNECTION="path=./blog.db" blogctl reset-password admin s3cret
`

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	provider, err := cfg.BuildProvider(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("build provider")
	}

	ctx := context.Background()
	if err := provider.Initialise(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialise provider")
	}

	switch command {
	case "init":
		log.Info().Str("provider", cfg.Provider).Msg("store initialised")
	case "list":
		err = runList(ctx, provider, args)
	case "users":
		err = runUsers(ctx, provider, args)
	case "reset-password":
		err = runResetPassword(ctx, provider, args, log)
	case "check-login":
		err = runCheckLogin(ctx, provider, cfg, args, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("command failed")
	}
}

func runList(ctx context.Context, provider simpleblog.StorageProvider, args []string) error {
	headers, err := provider.GetListing(ctx)
	if err != nil {
		return err
	}
	if hasFlag(args, "--json") {
		return json.NewEncoder(os.Stdout).Encode(headers)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tNAME\tAUTHOR\tUPDATED")
	for _, h := range headers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			h.ID, h.State, h.Name, h.Author, h.UpdatedDate.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runUsers(ctx context.Context, provider simpleblog.StorageProvider, args []string) error {
	users, err := provider.Users(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		users[i].PasswordHash = ""
		users[i].Token = ""
	}
	if hasFlag(args, "--json") {
		return json.NewEncoder(os.Stdout).Encode(users)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tEMAIL\tPERMISSIONS\tMUST CHANGE PASSWORD")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", u.Username, u.Email, u.Permissions, u.RequiresPasswordChange)
	}
	return w.Flush()
}

func runResetPassword(ctx context.Context, provider simpleblog.StorageProvider, args []string, log zerolog.Logger) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: blogctl reset-password <username> <password>")
	}
	username, password := args[0], args[1]

	users, err := provider.Users(ctx)
	if err != nil {
		return err
	}
	key := simpleblog.NormalizeUsername(username)
	for _, u := range users {
		if simpleblog.NormalizeUsername(u.Username) != key {
			continue
		}
		hashed, err := hash.Hash(password)
		if err != nil {
			return err
		}
		u.PasswordHash = hashed
		u.RequiresPasswordChange = true
		u.Token = ""
		if err := provider.PutUser(ctx, u); err != nil {
			return err
		}
		log.Info().Str("username", u.Username).Msg("password reset; change required at next login")
		return nil
	}
	return fmt.Errorf("no such user: %s", username)
}

func runCheckLogin(ctx context.Context, provider simpleblog.StorageProvider, cfg *config.StoreConfig, args []string, log zerolog.Logger) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: blogctl check-login <username> <password>")
	}
	sessions := sessioncache.New(cfg.SessionTTL)
	manager := auth.NewManager(provider, sessions)

	user, ok := manager.ValidateLogin(ctx, args[0], args[1], true)
	if !ok {
		log.Warn().Str("username", args[0]).Msg("login rejected")
		os.Exit(1)
	}
	log.Info().
		Str("username", user.Username).
		Bool("requires_password_change", user.RequiresPasswordChange).
		Time("token_expiry", user.TokenExpiry).
		Msg("login accepted")
	return nil
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
