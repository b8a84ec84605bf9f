package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"ragconsole/internal/access"
	"ragconsole/internal/backend"
	"ragconsole/internal/config"
	"ragconsole/internal/conversation"
	"ragconsole/internal/ingestion"
	"ragconsole/internal/logger"
	"ragconsole/internal/telemetry"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	api     string
	tenant  string
	user    string
	roles   string
	uiMode  string
	topK    int
	timeout time.Duration
	verbose bool

	cfg config.Config
	log logger.ILogger
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	o := &rootOptions{cfg: cfg}

	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Terminal client for the RAG backend",
		Long: `ragctl talks to the RAG backend directly: ask questions with the same
clarification flow as the web console, start source syncs and follow jobs.

Defaults come from the same environment as the console server
(RAG_API_BASE_URL, DEFAULT_TENANT_ID, RAG_TOP_K, ...).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.log == nil {
				level := zapcore.WarnLevel
				if o.verbose {
					level = zapcore.DebugLevel
				}
				o.log = logger.NewStderrLogger(level)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&o.api, "api", cfg.BackendBaseURL, "RAG backend base URL")
	f.StringVar(&o.tenant, "tenant", cfg.DefaultTenantID, "tenant id")
	f.StringVar(&o.user, "user", cfg.DefaultUserID, "user id")
	f.StringVar(&o.roles, "roles", strings.Join(cfg.DefaultRoles, ","), "comma-separated roles (viewer, admin, debug)")
	f.StringVar(&o.uiMode, "ui-mode", cfg.UIMode, "prod or debug")
	f.IntVar(&o.topK, "top-k", cfg.TopK, "chunks to retrieve per query (max 50)")
	f.DurationVar(&o.timeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		newAskCmd(o),
		newIngestCmd(o),
		newJobCmd(o),
		newJobsCmd(o),
		newHealthCmd(o),
		newHistoryCmd(o),
	)
	return root
}

func (o *rootOptions) transport(ctx context.Context) *backend.Transport {
	httpClient := backend.NewHTTPClient(ctx, backend.AuthConfig{
		TokenURL:     o.cfg.OAuthTokenURL,
		ClientID:     o.cfg.OAuthClientID,
		ClientSecret: o.cfg.OAuthClientSecret,
		Scopes:       o.cfg.OAuthScopes,
	}, o.timeout)
	return backend.NewTransport(strings.TrimRight(o.api, "/"), httpClient)
}

func (o *rootOptions) client(ctx context.Context) (*backend.Client, error) {
	if strings.TrimSpace(o.tenant) == "" {
		return nil, fmt.Errorf("tenant is required (--tenant or DEFAULT_TENANT_ID)")
	}
	return backend.NewClient(o.transport(ctx), o.tenant,
		backend.WithTopK(o.topK),
		backend.WithEmitter(telemetry.NewLogEmitter(o.log)),
	), nil
}

func (o *rootOptions) identity() conversation.Identity {
	return conversation.Identity{
		TenantID: o.tenant,
		UserID:   o.user,
		Roles:    access.ParseRoles(o.roles),
		UIMode:   access.ParseUIMode(o.uiMode),
	}
}

func (o *rootOptions) ingestion(ctx context.Context, interval time.Duration) (*ingestion.Service, error) {
	c, err := o.client(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := config.LoadProfile(o.cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	return ingestion.NewService(c,
		ingestion.WithSourceTypes(profile.Ingestion.SourceTypes),
		ingestion.WithPollInterval(interval),
		ingestion.WithLogger(o.log),
	), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
