package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/scour/internal/api"
	"github.com/kalambet/scour/internal/config"
	"github.com/kalambet/scour/internal/llm"
	"github.com/kalambet/scour/internal/report"
	"github.com/kalambet/scour/internal/research"
	"github.com/kalambet/scour/internal/search"
	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
	"github.com/kalambet/scour/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scour server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running scour server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scour system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP over stdin/stdout alongside HTTP")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "scour.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "scour version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	for _, env := range cfg.MissingSecrets() {
		printWarning("%s is not set", env)
	}

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only names the process.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Server.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("scour is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("scour is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	format, err := stream.ParseFormat(cfg.Stream.Format)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	searcher := newSearchManager(cfg, logger)
	model := resolveModel(ctx, cfg, logger)

	// Interfaces stay nil when no model resolved so collaborators fall back.
	var (
		classifierGen sentiment.Generator
		reportModel   report.Streamer
		titleGen      worker.Generator
	)
	if model != nil {
		classifierGen, reportModel, titleGen = model, model, model
	}

	orch := research.New(
		searcher,
		sentiment.NewClassifier(classifierGen, logger),
		report.NewSynthesizer(reportModel, logger),
		store,
		research.Options{
			MaxResults:    cfg.Search.MaxResults,
			VerdictDelay:  cfg.Stream.VerdictDelay(),
			FragmentDelay: cfg.Stream.FragmentDelay(),
			Logger:        logger,
			Metrics:       research.NewMetrics(reg),
		},
	)

	deps := api.Deps{
		Store:       store,
		Research:    orch,
		Format:      format,
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    reg,
		TitleJobs:   titleGen != nil,
		Logger:      logger,
	}

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "scour listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if titleGen != nil {
		w := worker.NewWorker(store, titleGen, 500*time.Millisecond, logger)
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		logger.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func newSearchManager(cfg config.Config, logger *slog.Logger) *search.Manager {
	m := search.NewManager(cfg.Search.Provider, logger)
	if cfg.Search.TavilyAPIKey != "" {
		m.Register(search.NewTavily(cfg.Search.TavilyAPIKey))
	}
	if cfg.Search.BraveAPIKey != "" {
		m.Register(search.NewBrave(cfg.Search.BraveAPIKey))
	}
	if !m.Configured() {
		logger.Warn("search provider not configured, research runs will find nothing", "provider", cfg.Search.Provider)
	}
	return m
}

// resolveModel returns nil when no model is usable. The server still starts;
// classification and reports then degrade to their fallbacks.
func resolveModel(ctx context.Context, cfg config.Config, logger *slog.Logger) *llm.Model {
	baseURL := cfg.LLM.BaseURL
	if cfg.LLM.Backend == llm.KindOllama && baseURL == "" {
		baseURL = cfg.Ollama.BaseURL
	}
	backend, err := llm.NewBackend(llm.BackendConfig{
		Kind:    cfg.LLM.Backend,
		BaseURL: baseURL,
		APIKey:  cfg.LLM.OpenRouterAPIKey,
	})
	if err != nil {
		logger.Warn("language model backend unavailable", "backend", cfg.LLM.Backend, "error", err)
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	model, err := llm.Resolve(resolveCtx, backend, cfg.LLM.Models, logger)
	if err != nil {
		logger.Warn("no language model available", "backend", backend.Name(), "error", err)
		return nil
	}
	return model
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("scour is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop scour (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to scour (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := "http://" + cfg.Server.Addr()
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("LLM backend", "%s", cfg.LLM.Backend)
	printStatus("Models", "%s", strings.Join(cfg.LLM.Models, ", "))
	printStatus("Search", "%s (max %d results)", cfg.Search.Provider, cfg.Search.MaxResults)
	printStatus("Stream format", "%s", cfg.Stream.Format)
	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		printStatus("Missing secrets", "%s", strings.Join(missing, ", "))
	}

	if running {
		chatsResp, err := client.Get(serverURL + "/api/chats?limit=100")
		if err == nil {
			var chats []json.RawMessage
			if json.NewDecoder(chatsResp.Body).Decode(&chats) == nil {
				printStatus("Chats", "%s", countLabel(len(chats), 100))
			}
			chatsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
