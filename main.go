package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/livepeer/dubworker/api"
	"github.com/livepeer/dubworker/assets"
	"github.com/livepeer/dubworker/broker"
	"github.com/livepeer/dubworker/clients"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/handlers"
	"github.com/livepeer/dubworker/pipeline"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/scheduler"
	"github.com/livepeer/dubworker/store"
	"github.com/livepeer/dubworker/subtitles"
	"github.com/livepeer/dubworker/tokens"
	"github.com/livepeer/dubworker/video"
)

// Exit codes (§6 [ADDED]): distinguish "fix your config" from "a dependency
// is down" so an operator's alerting can tell them apart without grepping
// logs.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitBrokerDown       = 2
	exitRegistryDown     = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("dubworker", flag.ContinueOnError)
	cli := config.Cli{}

	fs.StringVar(&cli.HTTPAddress, "http-addr", "0.0.0.0:8989", "Address to bind the intake API")
	fs.StringVar(&cli.MetricsAddress, "metrics-addr", "0.0.0.0:9090", "Address to bind the Prometheus metrics endpoint")
	fs.StringVar(&cli.APIToken, "api-token", "", "Bearer token required on non-exempt endpoints")
	var allowedOrigins, allowedSourceHosts string
	fs.StringVar(&allowedOrigins, "allowed-origins", "", "Comma-separated list of CORS-allowed origins")
	fs.StringVar(&allowedSourceHosts, "allowed-source-hosts", "", "Comma-separated allow-list of hosts permitted in url/source_url (empty disables the check)")

	fs.StringVar(&cli.IntakeDir, "intake-dir", config.DefaultIntakeDir, "Directory /upload stages files into")
	fs.StringVar(&cli.WorkspaceDir, "workspace-dir", config.DefaultWorkspaceDir, "Per-task scratch workspace root")
	fs.StringVar(&cli.ArtifactsDir, "artifacts-dir", config.DefaultArtifactsDir, "Published artifact directory")
	fs.StringVar(&cli.AssetsDir, "assets-dir", config.DefaultAssetsDir, "Deduplicated logo asset directory")
	fs.StringVar(&cli.StatsDir, "stats-dir", config.DefaultStatsDir, "Directory for operational stats snapshots")

	fs.StringVar(&cli.BrokerURL, "broker-url", "", "AMQP broker URL")
	fs.StringVar(&cli.RegistryConnString, "registry-conn-string", "", "Postgres connection string for the Task Registry")

	fs.IntVar(&cli.WorkerConcurrency, "worker-concurrency", config.DefaultWorkerConcurrency, "Number of concurrent pipeline workers")
	fs.DurationVar(&cli.TaskSoftTimeLimit, "task-soft-time-limit", config.DefaultTaskSoftTimeLimit, "Soft per-task time limit")
	fs.DurationVar(&cli.TaskHardTimeLimit, "task-hard-time-limit", config.DefaultTaskHardTimeLimit, "Hard per-task time limit")
	fs.IntVar(&cli.MaxQueueDepth, "max-queue-depth", config.DefaultMaxQueueDepth, "Processing queue depth above which submissions are rejected with 503")

	fs.StringVar(&cli.DefaultModel, "default-model", "base", "Default transcribe_model when the caller omits one")
	fs.BoolVar(&cli.AllowModelDowngrade, "allow-model-downgrade", false, "Allow the large->medium->base->tiny fallback ladder on OOM")
	fs.BoolVar(&cli.EnableRemoteDownload, "enable-remote-download", true, "Enable /remote and /download-only")
	fs.IntVar(&cli.TranslationBatchSize, "translation-batch-size", config.DefaultTranslationBatchSize, "Segments per translation batch")
	fs.IntVar(&cli.TranslationParallel, "translation-parallelism", config.DefaultTranslationParallelism, "Concurrent in-flight translation batches")
	fs.StringVar(&cli.ModelsDir, "models-dir", "./data/models", "Directory holding local transcription model weights")

	fs.StringVar(&cli.RemoteTranscribeURL, "remote-transcribe-url", "", "Remote transcription API base URL")
	fs.StringVar(&cli.RemoteTranscribeKey, "remote-transcribe-key", "", "Remote transcription API key")
	fs.StringVar(&cli.FreeTranslationURL, "free-translation-url", "", "Free-tier translation service base URL")
	fs.StringVar(&cli.PaidTranslationURL, "paid-translation-url", "", "Paid translation API base URL")
	fs.StringVar(&cli.PaidTranslationKey, "paid-translation-key", "", "Paid translation API key")

	var maxFileSizeMB int64
	fs.Int64Var(&maxFileSizeMB, "max-file-size-mb", config.MaxInputFileSizeBytes/(1024*1024), "Maximum accepted upload size in MiB")
	fs.IntVar(&cli.ArtifactRetentionHours, "artifact-retention", config.DefaultArtifactRetentionHours, "Hours a published artifact is retained before the sweep removes it")
	fs.DurationVar(&cli.SweepInterval, "sweep-interval", config.DefaultSweepInterval, "Interval between retention sweeps")
	fs.DurationVar(&cli.LogoUnusedWindow, "logo-unused-window", config.DefaultLogoUnusedWindow, "How long an unreferenced logo asset survives before the sweep removes it")

	fs.DurationVar(&cli.DownloadTokenTTL, "download-token-ttl", config.DefaultDownloadTokenTTL, "Lifetime of a single-use download token")
	fs.StringVar(&cli.TokenSigningKey, "token-signing-key", "", "HMAC signing key for download tokens")

	fs.StringVar(&cli.S3Bucket, "s3-bucket", "", "Optional S3 bucket to mirror published artifacts into")
	fs.StringVar(&cli.S3Region, "s3-region", "", "S3 region")
	fs.StringVar(&cli.S3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")

	verbosity := fs.String("v", "", "Log verbosity {4|5|6}")
	version := fs.Bool("version", false, "Print application version and exit")
	_ = fs.String("config", "", "config file (optional)")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("SUBTITLER"),
	); err != nil {
		fmt.Fprintln(os.Stderr, "error parsing cli:", err)
		return exitConfigError
	}
	if *version {
		fmt.Println("dubworker version:", config.Version)
		return exitOK
	}
	if *verbosity != "" {
		if vFlag := flag.Lookup("v"); vFlag != nil {
			_ = vFlag.Value.Set(*verbosity)
		}
	}
	cli.AllowedOrigins = splitNonEmpty(allowedOrigins)
	cli.AllowedSourceHosts = splitNonEmpty(allowedSourceHosts)
	cli.MaxFileSizeBytes = maxFileSizeMB * 1024 * 1024

	if cli.BrokerURL == "" || cli.RegistryConnString == "" {
		fmt.Fprintln(os.Stderr, "both -broker-url and -registry-conn-string are required")
		return exitConfigError
	}
	if cli.TokenSigningKey == "" {
		fmt.Fprintln(os.Stderr, "-token-signing-key is required")
		return exitConfigError
	}

	for _, dir := range []string{cli.IntakeDir, cli.WorkspaceDir, cli.ArtifactsDir, cli.AssetsDir, cli.StatsDir, cli.ModelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "creating directory %s: %v\n", dir, err)
			return exitConfigError
		}
	}

	reg, err := registry.Open(cli.RegistryConnString)
	if err != nil {
		glog.Errorf("task registry unreachable: %v", err)
		return exitRegistryDown
	}
	defer reg.Close()

	br, err := broker.Dial(cli.BrokerURL)
	if err != nil {
		glog.Errorf("broker unreachable: %v", err)
		return exitBrokerDown
	}
	defer br.Close()

	tokenDB, err := sql.Open("postgres", cli.RegistryConnString)
	if err != nil {
		glog.Errorf("opening token signing database: %v", err)
		return exitRegistryDown
	}
	defer tokenDB.Close()
	tokenSvc, err := tokens.NewService(cli.TokenSigningKey, tokenDB)
	if err != nil {
		glog.Errorf("initializing token service: %v", err)
		return exitRegistryDown
	}

	st, err := store.New(cli)
	if err != nil {
		glog.Errorf("initializing artifact store: %v", err)
		return exitConfigError
	}
	assetStore, err := assets.New(cli.AssetsDir)
	if err != nil {
		glog.Errorf("initializing asset deduplicator: %v", err)
		return exitConfigError
	}

	prober := video.FFProbe{}
	modelCache, err := pipeline.NewModelCache(2)
	if err != nil {
		glog.Errorf("initializing model cache: %v", err)
		return exitConfigError
	}
	capabilities := clients.BuildCapabilityRegistry(cli, cli.ModelsDir, modelCache)

	engine := &pipeline.Engine{
		Registry:   reg,
		Store:      st,
		Broker:     br,
		Prober:     prober,
		Downloader: clients.NewHTTPDownloader(),
		Renderer:   clients.NewFFmpegRenderer(prober),
		EmitSRT: func(segments []pipeline.Segment, targetLang, destPath string) error {
			f, err := os.Create(destPath)
			if err != nil {
				return err
			}
			defer f.Close()
			return subtitles.Emit(f, segments, targetLang)
		},
		Caps:       capabilities,
		ModelCache: modelCache,
		Cli:        cli,
	}

	intake := handlers.New(cli, reg, br, st, assetStore, tokenSvc, prober)

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli, intake)
	})
	group.Go(func() error {
		return engine.Run(ctx)
	})
	group.Go(func() error {
		return serveMetrics(ctx, cli.MetricsAddress)
	})
	sched := scheduler.New(st, reg, assetStore, cli)
	group.Go(func() error {
		return sched.Run(ctx)
	})
	group.Go(func() error {
		return handleSignals(ctx)
	})

	if err := group.Wait(); err != nil {
		glog.Infof("shutdown: %v", err)
	}
	return exitOK
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			return fmt.Errorf("caught signal %v", s)
		case <-ctx.Done():
			return nil
		}
	}
}
