package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/histoforge/boundary-measure/core"
	"github.com/histoforge/boundary-measure/internal/api"
	"github.com/histoforge/boundary-measure/internal/config"
	"github.com/histoforge/boundary-measure/internal/logging"
	"github.com/histoforge/boundary-measure/internal/observability"
	"github.com/histoforge/boundary-measure/internal/runner"
	"github.com/histoforge/boundary-measure/kb"
)

func main() {
	// Optional; local deployments keep MEASURE_* settings in a .env file.
	_ = godotenv.Load()

	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "path to the engine YAML config (optional)")
	studyPath := flag.String("study", "", "study JSON document to preload (optional)")
	remeasure := flag.Duration("remeasure", 0, "periodic re-measurement interval (0 disables)")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error(ctx, "load config", logging.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "init tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewMeasureCollector(nil)
	if err != nil {
		log.Error(ctx, "register metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}

	store := kb.NewStudyStore()
	svc := core.NewMeasurementService(store)
	svc.Unit = cfg.Unit
	svc.Workers = cfg.Workers
	svc.Log = log
	svc.Metrics = collector
	for _, g := range cfg.Groups {
		svc.Groups = append(svc.Groups, core.GroupSpec{Label: g.Label, Color: g.Color})
	}

	if *studyPath != "" {
		f, err := os.Open(*studyPath)
		if err != nil {
			log.Error(ctx, "open study", logging.String("error", err.Error()))
			os.Exit(1)
		}
		summary, err := core.LoadStudy(store, f)
		f.Close()
		if err != nil {
			log.Error(ctx, "preload study", logging.String("error", err.Error()))
			os.Exit(1)
		}
		if cfg.PixelSizeUm > 0 {
			if err := store.SetPixelSize(cfg.PixelSizeUm); err != nil {
				log.Error(ctx, "apply pixel size override", logging.String("error", err.Error()))
				os.Exit(1)
			}
		}
		log.Info(ctx, "study preloaded",
			logging.Int("detections", len(summary.DetectionIDs)),
			logging.Int("groups", len(summary.GroupLabels)),
			logging.Int("polygons", summary.Polygons),
		)
		if _, _, err := svc.Run(ctx); err != nil {
			log.Error(ctx, "initial measurement run", logging.String("error", err.Error()))
			os.Exit(1)
		}
	}

	var runnerDone <-chan struct{}
	if *remeasure > 0 {
		r := runner.New(*remeasure)
		r.AddListener(func(ctx context.Context, _ time.Time) {
			if _, _, err := svc.Run(ctx); err != nil {
				log.Warn(ctx, "periodic measurement run failed",
					logging.String("error", err.Error()))
			}
		})
		runnerDone = r.Start(ctx)
		log.Info(ctx, "periodic re-measurement enabled",
			logging.String("interval", remeasure.String()))
	}

	server := api.NewServer(*addr, svc, collector.Handler(), log)
	server.Start()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	server.Stop()
	if runnerDone != nil {
		<-runnerDone
	}
}
