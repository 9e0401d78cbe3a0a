package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Async-Ng/ElecLab-sub001/internal/cache"
	"github.com/Async-Ng/ElecLab-sub001/internal/client"
	"github.com/Async-Ng/ElecLab-sub001/internal/config"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	BaseURL    string
	UserID     string
	Roles      []string
	Restricted bool
	Output     string
	Verbose    bool
}

// app is built once per invocation in PersistentPreRunE
type app struct {
	opts    *rootOptions
	session *store.Session
	out     *printer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{opts: opts}

	cmd := &cobra.Command{
		Use:           "labctl",
		Short:         "Command line client for ElecLab lab requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.BaseURL, "base-url", "", "server base URL (default from config client.base_url)")
	f.StringVar(&opts.UserID, "user", "", "caller user id (default from config client.user_id)")
	f.StringSliceVar(&opts.Roles, "role", nil, "caller role, repeatable (default from config client.roles)")
	f.BoolVar(&opts.Restricted, "restricted", false, "use the user route family even with an elevated role")
	f.StringVarP(&opts.Output, "output", "o", "table", "output format: table or json")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "log API calls to stderr")

	cmd.AddCommand(newRequestsCmd(a))
	cmd.AddCommand(newCatalogCmd(a, "materials", "List the material catalog"))
	cmd.AddCommand(newCatalogCmd(a, "rooms", "List the room catalog"))
	cmd.AddCommand(newCatalogCmd(a, "users", "List the user directory (elevated roles only)"))
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cc := cfg.Client
	if a.opts.BaseURL != "" {
		cc.BaseURL = a.opts.BaseURL
	}
	if a.opts.UserID != "" {
		cc.UserID = a.opts.UserID
	}
	if len(a.opts.Roles) > 0 {
		cc.Roles = a.opts.Roles
	}
	if cmd.Flags().Changed("restricted") {
		cc.ForceRestricted = a.opts.Restricted
	}
	if strings.TrimSpace(cc.BaseURL) == "" {
		return errors.New("--base-url is required")
	}
	if strings.TrimSpace(cc.UserID) == "" {
		return errors.New("--user is required")
	}

	format := strings.ToLower(a.opts.Output)
	if format != "table" && format != "json" {
		return fmt.Errorf("unknown output format %q", a.opts.Output)
	}
	a.out = &printer{w: cmd.OutOrStdout(), json: format == "json"}

	logger := zap.NewNop()
	if a.opts.Verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}

	c := cache.New(cache.WithTTL(cc.CacheTTL), cache.WithLogger(logger))
	api := client.New(cc.BaseURL, c, client.WithTimeout(cc.Timeout), client.WithLogger(logger))
	api.SetForceRestricted(cc.ForceRestricted)

	a.session = store.NewSession(api, store.WithTTL(cc.StoreTTL))
	a.session.SwitchIdentity(identity.Identity{
		UserID: cc.UserID,
		Roles:  identity.NewRoleSet(cc.Roles...),
	})
	return nil
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
