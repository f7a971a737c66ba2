// syncmill mirrors remote record-keeping APIs into MySQL.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datamill-io/syncmill/internal/scheduler"
	"github.com/datamill-io/syncmill/pkg/alert"
	"github.com/datamill-io/syncmill/pkg/clients"
	"github.com/datamill-io/syncmill/pkg/config"
	"github.com/datamill-io/syncmill/pkg/logger"
	"github.com/datamill-io/syncmill/pkg/metrics"
	"github.com/datamill-io/syncmill/pkg/orchestrator"
	"github.com/datamill-io/syncmill/pkg/source"
	"github.com/datamill-io/syncmill/pkg/store"
)

// set via ldflags at build time
var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath  string
	envFile     string
	metricsAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "syncmill",
		Short:        "Incremental synchronization engine for remote record-keeping APIs",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "syncmill.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to env file (ignored if missing)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("syncmill %s (built %s)\n", version, buildTime)
		},
	}

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List configured jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, job := range cfg.Jobs {
				schedule := job.Schedule
				if schedule == "" {
					schedule = "on demand"
				}
				fmt.Printf("%-20s %-12s -> %-24s [%s]\n", job.Name, job.Pagination, job.Table, schedule)
			}
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run the named jobs once (all jobs when none named)",
		RunE:  runOnce,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler until interrupted",
		RunE:  serve,
	}
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9105", "Prometheus listen address (empty disables)")

	rootCmd.AddCommand(versionCmd, jobsCmd, runCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load(envFile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Encoding:    cfg.Log.Encoding,
		Development: cfg.Log.Development,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine wires the store, the notifier and every job's remote API
// into one orchestrator. Each source gets one shared HTTP client so its
// rate budget covers all of its jobs.
func buildEngine(cfg *config.Config) (*orchestrator.Orchestrator, store.Store, error) {
	st, err := store.NewMySQLStore(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	orch := orchestrator.New(st, alert.FromConfig(cfg.Alerting))

	httpClients := make(map[string]*clients.HTTPClient, len(cfg.Sources))
	for name, src := range cfg.Sources {
		hc := clients.DefaultHTTPConfig()
		hc.RateLimit = src.RateLimit
		hc.RateBurst = src.RateBurst
		httpClients[name] = clients.NewHTTPClient(hc, logger.Get())
	}

	for _, job := range cfg.Jobs {
		src := cfg.Sources[job.Source]
		fetcher := source.NewFetcher(
			httpClients[job.Source],
			source.NewBackoffPolicy(src.Retry),
			authHeaders(src),
		)
		orch.Register(job, source.NewHTTPAPI(fetcher, src, job))
	}
	return orch, st, nil
}

func authHeaders(src config.SourceConfig) map[string]string {
	switch src.AuthType {
	case "bearer":
		return map[string]string{"Authorization": "Bearer " + src.Token}
	case "basic":
		return map[string]string{"Authorization": "Basic " + basicAuth(src.Username, src.Password)}
	}
	return nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	orch, st, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	names := args
	if len(names) == 0 {
		for _, job := range cfg.Jobs {
			names = append(names, job.Name)
		}
	}
	for _, name := range names {
		if _, ok := cfg.Job(name); !ok {
			return fmt.Errorf("unknown job %q", name)
		}
	}

	ctx := cmd.Context()
	var wg sync.WaitGroup
	errs := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := orch.Run(ctx, name); err != nil {
				errs <- fmt.Errorf("job %s: %w", name, err)
			}
		}(name)
	}
	wg.Wait()
	close(errs)

	var failed bool
	for err := range errs {
		failed = true
		logger.Get().Error("run failed", zap.Error(err))
	}
	if failed {
		return fmt.Errorf("one or more jobs failed")
	}
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	orch, st, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sched := scheduler.New(orch)
	for _, job := range cfg.Jobs {
		if err := sched.Add(ctx, job); err != nil {
			return fmt.Errorf("scheduling job %s: %w", job.Name, err)
		}
	}
	sched.Start()
	defer sched.Stop()

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Get().Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	logger.Get().Info("scheduler started",
		zap.Int("jobs", len(cfg.Jobs)),
		zap.String("version", version))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Get().Info("shutting down")
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}
