// Command planner runs the mesh-backhaul design pipeline once against a
// config file and a candidate topology, then writes the CSV/YAML design
// reports spec.md §6 names. It is a one-shot batch job rather than a
// server: grounded on the teacher's cmd/nbi-server main/run split (clean
// error propagation, no panics past main, optional metrics endpoint) but
// without the gRPC serving loop cmd/nbi-server owns.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/latticeforge/meshplanner/analyze"
	"github.com/latticeforge/meshplanner/config"
	"github.com/latticeforge/meshplanner/internal/logging"
	"github.com/latticeforge/meshplanner/internal/observability"
	"github.com/latticeforge/meshplanner/pipeline"
	"github.com/latticeforge/meshplanner/solver"
	"github.com/latticeforge/meshplanner/topology"
)

// cliConfig bundles the flags/env this command accepts, following the
// teacher's loadConfig() env-or-flag precedence.
type cliConfig struct {
	ConfigPath   string
	TopologyPath string
	MetricsAddr  string
	LogLevel     string
	LogFormat    string
}

func main() {
	cliCfg := loadCLIConfig()
	log := logging.New(logging.Config{
		Level:     cliCfg.LogLevel,
		Format:    cliCfg.LogFormat,
		AddSource: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cliCfg, log); err != nil {
		log.Error(context.Background(), "planner run failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

func loadCLIConfig() cliConfig {
	configPath := flag.String("config", envOrDefault("PLANNER_CONFIG", ""), "path to the optimizer_params/system_params YAML config")
	topologyPath := flag.String("topology", envOrDefault("PLANNER_TOPOLOGY", ""), "path to a candidate topology JSON file, overriding candidate_topology_file_path")
	metricsAddr := flag.String("metrics-address", envOrDefault("PLANNER_METRICS_ADDRESS", ""), "HTTP address for Prometheus /metrics during the run (empty disables it)")
	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", envOrDefault("LOG_FORMAT", "text"), "log format: text or json")
	flag.Parse()

	return cliConfig{
		ConfigPath:   *configPath,
		TopologyPath: *topologyPath,
		MetricsAddr:  *metricsAddr,
		LogLevel:     *logLevel,
		LogFormat:    *logFormat,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// run drives one end-to-end design: load config, load the candidate
// topology, run the pipeline driver, compute and persist the analysis
// reports. Every failure is returned as an error; main is the only place
// that may exit non-zero (spec.md §7, "no panics cross package boundaries").
func run(ctx context.Context, cliCfg cliConfig, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	if cliCfg.ConfigPath == "" {
		return fmt.Errorf("missing required -config flag (or PLANNER_CONFIG)")
	}

	root, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	traceShutdown := func(context.Context) error { return nil }
	if shutdown, terr := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log); terr != nil {
		log.Warn(ctx, "failed to initialise tracing", logging.String("error", terr.Error()))
	} else {
		traceShutdown = shutdown
	}
	defer observability.ShutdownWithTimeout(context.Background(), traceShutdown, log)

	collector, err := observability.NewPlannerCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}

	var metricsSrv *http.Server
	if cliCfg.MetricsAddr != "" {
		metricsSrv = serveMetrics(cliCfg.MetricsAddr, collector, log)
	}
	if metricsSrv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	topologyPath := cliCfg.TopologyPath
	if topologyPath == "" {
		topologyPath = root.Optimizer.CandidateTopologyFilePath
	}
	if topologyPath == "" {
		return fmt.Errorf("no candidate topology supplied: set -topology or optimizer_params.candidate_topology_file_path")
	}

	f, err := os.Open(topologyPath)
	if err != nil {
		return fmt.Errorf("open candidate topology %q: %w", topologyPath, err)
	}
	defer f.Close()

	topo, err := topology.LoadCandidateTopology(f, root.Optimizer.Devices)
	if err != nil {
		return fmt.Errorf("load candidate topology: %w", err)
	}

	log.Info(ctx, "loaded candidate topology",
		logging.Int("sites", len(topo.Sites())),
		logging.Int("links", len(topo.Links())),
		logging.Int("demand_sites", len(topo.DemandSites())),
	)

	driver := pipeline.NewDriver(log, collector, solver.NewRefProblem)
	result, err := driver.Run(ctx, topo, root.Optimizer)
	if err != nil {
		return fmt.Errorf("run optimization pipeline: %w", err)
	}
	log.Info(ctx, "pipeline finished", logging.Any("common_buffer_gbps", result.CommonBuffer))

	metrics, err := analyze.ComputeMetrics(topo, root.Optimizer)
	if err != nil {
		return fmt.Errorf("compute metrics: %w", err)
	}

	if err := analyze.WriteReports(topo, metrics, root.System.OutputDir); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}

	log.Info(ctx, "wrote design reports",
		logging.String("output_dir", root.System.OutputDir),
		logging.Int("active_sites", metrics.Counts.ActiveSites),
		logging.Int("active_links", metrics.Counts.ActiveBackhaulLinks+metrics.Counts.ActiveAccessLinks+metrics.Counts.ActiveWiredLinks),
	)
	return nil
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
