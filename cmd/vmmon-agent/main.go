package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"vmmonitor/internal/agent"
	"vmmonitor/internal/shared"
)

func usage() {
	fmt.Println("Usage: vmmon-agent <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init --api-url URL --name NAME   Register this VM and write the agent config")
	fmt.Println("  start                            Collect and push metrics until interrupted")
	fmt.Println("  status                           Show config, API reachability, and a metrics snapshot")
	fmt.Println("  recommend                        Suggest cheaper VM sizes from measured usage")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "recommend":
		err = runRecommend(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func configPathFlag(fs *flag.FlagSet) *string {
	def, err := shared.DefaultAgentConfigPath()
	if err != nil {
		def = "./vm-monitor.json"
	}
	return fs.String("config", def, "path to agent config json")
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	apiURL := fs.String("api-url", "", "remote API base URL")
	name := fs.String("name", "", "user-defined name for this VM instance")
	interval := fs.Int("interval", 60, "monitoring interval in seconds")
	batchSize := fs.Int("batch-size", 10, "number of metrics to batch before sending")
	configPath := configPathFlag(fs)
	_ = fs.Parse(args)

	if *apiURL == "" || *name == "" {
		return fmt.Errorf("init requires --api-url and --name")
	}

	if _, err := shared.LoadAgentConfig(*configPath); err == nil {
		slog.Warn("existing configuration found, re-initializing overwrites it", "path", *configPath)
	}

	apiKey, err := shared.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating api key: %w", err)
	}

	ctx := context.Background()
	provider := agent.DetectCloudProvider(ctx)
	slog.Info("cloud provider detected", "provider", provider)

	cfg := &shared.AgentConfig{
		InstanceID:      uuid.New(),
		InstanceName:    *name,
		APIURL:          *apiURL,
		APIKey:          apiKey,
		CloudProvider:   provider,
		IntervalSeconds: *interval,
		BatchSize:       *batchSize,
		InitializedAt:   time.Now().UTC(),
	}

	a := agent.NewFromConfig(*configPath, cfg)
	resp, err := a.Register(ctx)
	if err != nil {
		return fmt.Errorf("registering with remote API: %w", err)
	}
	slog.Info("registered with API", "message", resp.Message)

	if err := shared.SaveAgentConfig(*configPath, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	color.Green("vm-monitor agent initialized successfully")
	fmt.Printf("Instance ID:   %s\n", cfg.InstanceID)
	fmt.Printf("Instance Name: %s\n", cfg.InstanceName)
	fmt.Printf("API URL:       %s\n", cfg.APIURL)
	fmt.Printf("API Key:       %s... (stored in config)\n", maskKey(apiKey))
	fmt.Printf("Config file:   %s\n", *configPath)
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	interval := fs.Int("interval", 0, "override monitoring interval in seconds")
	configPath := configPathFlag(fs)
	_ = fs.Parse(args)

	a, err := agent.New(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration (run 'init' first): %w", err)
	}

	intervalSecs := a.Cfg.IntervalSeconds
	if *interval > 0 {
		intervalSecs = *interval
	}
	batchSize := a.Cfg.BatchSize

	slog.Info("agent starting",
		"instance_id", a.Cfg.InstanceID,
		"interval_seconds", intervalSecs,
		"batch_size", batchSize)
	fmt.Printf("vm-monitor agent started. Interval: %ds, Batch Size: %d. Press Ctrl+C to stop.\n",
		intervalSecs, batchSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collectTicker := time.NewTicker(time.Duration(intervalSecs) * time.Second)
	defer collectTicker.Stop()
	heartbeatTicker := time.NewTicker(5 * time.Minute)
	defer heartbeatTicker.Stop()

	var buffer []shared.SystemMetrics
	for {
		select {
		case <-collectTicker.C:
			m, err := agent.Collect(ctx, a.Cfg.InstanceID)
			if err != nil {
				slog.Error("metric collection failed", "err", err)
				continue
			}
			buffer = append(buffer, m)
			slog.Debug("metrics collected", "buffered", len(buffer))

			if len(buffer) >= batchSize {
				if err := a.SendMetricsBatch(ctx, buffer); err != nil {
					slog.Error("sending metrics batch failed", "err", err)
					// keep buffering for a retry, but never unbounded
					if len(buffer) > batchSize*5 {
						slog.Warn("metrics buffer too large, dropping", "dropped", len(buffer))
						buffer = nil
					}
					continue
				}
				slog.Info("metrics batch sent", "count", len(buffer))
				buffer = nil
			}

		case <-heartbeatTicker.C:
			if err := a.SendHeartbeat(ctx); err != nil {
				slog.Error("heartbeat failed", "err", err)
			} else {
				slog.Info("heartbeat sent")
			}

		case <-ctx.Done():
			if len(buffer) > 0 {
				slog.Info("sending remaining metrics before shutdown", "count", len(buffer))
				flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				if err := a.SendMetricsBatch(flushCtx, buffer); err != nil {
					slog.Error("final metrics batch failed", "err", err)
				}
				cancel()
			}
			slog.Info("agent shutting down")
			return nil
		}
	}
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := configPathFlag(fs)
	_ = fs.Parse(args)

	a, err := agent.New(*configPath)
	if err != nil {
		fmt.Printf("Configuration not found or unreadable: %v\n", err)
		fmt.Println("Run 'vmmon-agent init' to configure the agent.")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Println("vm-monitor agent status")
	fmt.Printf("  Instance ID:    %s\n", a.Cfg.InstanceID)
	fmt.Printf("  Instance Name:  %s\n", a.Cfg.InstanceName)
	fmt.Printf("  API URL:        %s\n", a.Cfg.APIURL)
	fmt.Printf("  API Key:        %s... (masked)\n", maskKey(a.Cfg.APIKey))
	fmt.Printf("  Cloud Provider: %s\n", a.Cfg.CloudProvider)
	fmt.Printf("  Interval:       %ds\n", a.Cfg.IntervalSeconds)
	fmt.Printf("  Batch Size:     %d\n", a.Cfg.BatchSize)
	fmt.Printf("  Initialized At: %s\n", a.Cfg.InitializedAt.Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.CheckHealth(ctx); err != nil {
		color.Red("\nAPI Connection: error: %v", err)
	} else {
		color.Green("\nAPI Connection: connected")
	}

	m, err := agent.Collect(ctx, a.Cfg.InstanceID)
	if err != nil {
		return fmt.Errorf("collecting metrics snapshot: %w", err)
	}
	const gb = float64(1 << 30)
	bold.Println("\nCurrent system metrics")
	fmt.Printf("  CPU Usage: %.2f%% (%d cores)\n", m.CPUMetrics.UsagePercent, m.CPUMetrics.CoreCount)
	fmt.Printf("  Memory:    %.2f GB / %.2f GB used (%.2f GB available)\n",
		float64(m.MemoryMetrics.UsedMemory)/gb,
		float64(m.MemoryMetrics.TotalMemory)/gb,
		float64(m.MemoryMetrics.AvailableMemory)/gb)
	fmt.Printf("  Swap:      %.2f GB / %.2f GB used\n",
		float64(m.MemoryMetrics.UsedSwap)/gb,
		float64(m.MemoryMetrics.TotalSwap)/gb)
	fmt.Printf("  Uptime:    %d seconds\n", m.SystemInfo.Uptime)
	fmt.Printf("  Disks:     %d\n", len(m.DiskMetrics))
	fmt.Printf("  Networks:  %d\n", len(m.NetworkMetrics))
	return nil
}

func runRecommend(args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	duration := fs.Int("duration", 60, "collect usage data for this many seconds before recommending")
	region := fs.String("region", "", "filter recommendations by region substring (e.g. 'us-east')")
	_ = fs.Parse(args)

	fmt.Printf("Collecting system usage data for %d seconds...\n", *duration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	avgCPU, avgMemGB, cores, err := agent.SampleUsage(ctx, time.Duration(*duration)*time.Second)
	if err != nil {
		return fmt.Errorf("sampling usage: %w", err)
	}

	fmt.Printf("\nAverage CPU Usage:  %.2f%%\n", avgCPU)
	fmt.Printf("Average Memory Used: %.2f GB\n", avgMemGB)
	fmt.Printf("Physical CPU Cores:  %d\n\n", cores)

	dataset, err := agent.LoadVMDataset()
	if err != nil {
		return fmt.Errorf("loading VM dataset: %w", err)
	}

	recs := agent.RecommendVMs(dataset, avgCPU, cores, avgMemGB, *region)
	if len(recs) == 0 {
		fmt.Println("No suitable VMs found. Try a wider region filter or check usage stats.")
		return nil
	}

	color.New(color.Bold).Println("Top VM recommendations (lower score is better):")
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tINSTANCE\tREGION\tVCPUS\tMEM (GB)\tHOURLY ($)\tSCORE")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\t%.4f\t%.6f\n",
			rec.Instance.Provider,
			rec.Instance.InstanceName,
			rec.Instance.Region,
			rec.Instance.VCPUs,
			rec.Instance.MemoryGB,
			rec.Instance.HourlyCost,
			rec.CostPerNeededResource)
	}
	return tw.Flush()
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
