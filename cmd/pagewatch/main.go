// Command pagewatch monitors web pages for newly added content.
//
// It runs scheduled detection cycles over the sites in config.yaml, persists
// per-page snapshots in SQLite, and reports new sentences through the
// configured notifiers. An admin HTTP API (chi) exposes sites, history, and
// manual checks; MCP_TRANSPORT=stdio exposes the same operations as MCP
// tools instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagewatch/dbopen"
	"github.com/hazyhaar/pagewatch/monitor"
	"github.com/hazyhaar/pagewatch/snapshot"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one check of all sites and exit")
	flag.Parse()

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// First run: write a starter config and let the operator edit it.
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		if err := monitor.WriteDefaultConfig(*configPath); err != nil {
			slog.Error("write default config", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Created %s - please edit with your sites and run again\n", *configPath)
		os.Exit(0)
	}

	cfg, err := monitor.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := dbopen.Open(filepath.Join(cfg.DataDir, "pagewatch.db"),
		dbopen.WithMkdirAll(), dbopen.WithSchema(snapshot.Schema))
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := monitor.New(cfg, snapshot.NewStore(db), logger)
	if err != nil {
		slog.Error("monitor service", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config hot reload: edits to the config file swap the site list
	// without a restart.
	startConfigWatch := func() {
		watcher := monitor.NewConfigWatcher(*configPath, monitor.WatchOptions{
			Debounce: 2 * time.Second,
			Logger:   logger,
		})
		go watcher.OnChange(ctx, func() error {
			next, err := monitor.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			return svc.Reload(next)
		})
	}

	if *once {
		results := svc.CheckAll(ctx)
		changed := 0
		for _, res := range results {
			if res.Status == snapshot.StatusChanged {
				changed++
			}
			slog.Info("checked", "site", res.SiteID, "status", res.Status,
				"added", len(res.Added), "duration_ms", res.DurationMs)
		}
		slog.Info("check complete", "sites", len(results), "changed", changed)
		return
	}

	// Optional MCP stdio transport: the process becomes an MCP server and
	// the admin HTTP API is not started.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "pagewatch",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		if err := svc.Start(); err != nil {
			slog.Error("scheduler", "error", err)
			os.Exit(1)
		}
		defer svc.Stop()
		startConfigWatch()

		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp server", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := svc.Start(); err != nil {
		slog.Error("scheduler", "error", err)
		os.Exit(1)
	}
	defer svc.Stop()
	startConfigWatch()

	// Admin API.
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if password := os.Getenv("AUTH_PASSWORD"); password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				slog.Error("auth setup", "error", err)
				os.Exit(1)
			}
			r.Use(basicAuth(hash))
		}

		r.Get("/api/sites", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, svc.Sites())
		})

		r.Post("/api/sites/{siteID}/check", func(w http.ResponseWriter, r *http.Request) {
			res, err := svc.CheckSite(r.Context(), chi.URLParam(r, "siteID"))
			if err != nil {
				writeError(w, 404, err)
				return
			}
			if res.Err != nil {
				writeJSON(w, 502, res)
				return
			}
			writeJSON(w, 200, res)
		})

		r.Get("/api/sites/{siteID}/history", func(w http.ResponseWriter, r *http.Request) {
			entries, err := svc.History(r.Context(), chi.URLParam(r, "siteID"), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 404, err)
				return
			}
			writeJSON(w, 200, entries)
		})

		r.Get("/api/sites/{siteID}/snapshot", func(w http.ResponseWriter, r *http.Request) {
			snap, err := svc.Snapshot(r.Context(), chi.URLParam(r, "siteID"))
			if err != nil {
				writeError(w, 404, err)
				return
			}
			if snap == nil {
				writeError(w, 404, fmt.Errorf("no snapshot yet"))
				return
			}
			writeJSON(w, 200, snap)
		})

		r.Get("/api/changes", func(w http.ResponseWriter, r *http.Request) {
			entries, err := svc.RecentChanges(r.Context(), queryInt(r, "limit", 20))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, entries)
		})
	})

	port := env("PORT", "8086")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// basicAuth enforces HTTP Basic Auth against a bcrypt hash of the
// configured password. Any username is accepted.
func basicAuth(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, password, ok := r.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="pagewatch"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
