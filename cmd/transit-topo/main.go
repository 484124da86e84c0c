// Command transit-topo synchronizes GTFS feeds into a Wikibase knowledge base
// describing transit topology.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"transit-topo/internal/config"
	"transit-topo/internal/known"
	"transit-topo/internal/metrics"
	"transit-topo/internal/wikibase"
)

var version = "dev"

func main() {
	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a := &app{}
	err := rootCmd(a).ExecuteContext(ctx)
	a.close()
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every subcommand shares once the configuration is loaded.
type app struct {
	configPath string
	apiURL     string
	sparqlURL  string
	topoIDID   string
	logLevel   string

	cfg     *config.Config
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *metrics.Collector
	closers []func()
}

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transit-topo",
		Short: "Synchronize GTFS feeds into a Wikibase transit topology",
		Long: `transit-topo maintains a transit topology (producers, routes, stops and
the links between them) in a Wikibase instance.

Logs go to stderr; stdout only carries command results such as entity ids.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	pf.StringVarP(&a.apiURL, "api", "a", "", "Endpoint of the wikibase api")
	pf.StringVarP(&a.sparqlURL, "sparql", "s", "", "Endpoint of the sparql query service")
	pf.StringVar(&a.topoIDID, "topo-id-id", "", "Identifier of the topo id property")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		prepopulateCmd(a),
		importCmd(a),
		producerCmd(a),
		entitiesCmd(a),
		schemaCmd(a),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no configuration needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "transit-topo version %s\n", version)
		},
	}
}

// setup loads the configuration, applies the global flags and configures
// logging to logOut and metrics.
func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(a.logger)

	if cfg.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	if cfg.MetricsAddr != "" {
		a.metrics = metrics.NewCollector()
		srv := a.metrics.Serve(cfg.MetricsAddr)
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	return nil
}

func (a *app) applyFlags(cfg *config.Config) {
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	if a.sparqlURL != "" {
		cfg.SPARQLURL = a.sparqlURL
	}
	if a.topoIDID != "" {
		cfg.TopoIDProperty = a.topoIDID
	}
	if a.logLevel != "" {
		cfg.LogLevel = strings.ToLower(a.logLevel)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (a *app) options() wikibase.Options {
	opts := wikibase.Options{
		HTTPClient: &http.Client{Timeout: a.cfg.HTTPTimeout},
		Limiter:    a.limiter,
		Logger:     a.logger,
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
	}
	return opts
}

func (a *app) sparqlClient() *wikibase.SPARQLClient {
	return wikibase.NewSPARQLClient(a.cfg.SPARQLURL, a.options())
}

func (a *app) apiClient(ctx context.Context) (*wikibase.APIClient, error) {
	creds := wikibase.Credentials{User: a.cfg.User, Password: a.cfg.Password}
	api, err := wikibase.NewAPIClient(ctx, a.cfg.APIURL, creds, a.options())
	if err != nil {
		return nil, fmt.Errorf("connect to wikibase api: %w", err)
	}
	return api, nil
}

// entities discovers the known entities through the configured marker property.
func (a *app) entities(ctx context.Context, q wikibase.Querier) (*known.Entities, error) {
	e, err := known.Discover(ctx, q, a.cfg.TopoIDProperty)
	if err != nil {
		return nil, fmt.Errorf("discover known entities (did you run prepopulate?): %w", err)
	}
	return e, nil
}
