// Command multiplayer-phaser starts the multiplayer room server.
//
// It supports three modes:
//  1. "server" (default) – runs the HTTP server exposing the game client, the
//     /ws WebSocket endpoint, the REST API and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API
//     if none is available
//  3. "validate" – checks config files and prints the effective settings
//
// Configuration comes from defaults, an optional YAML file, MULTIPLAYER_*
// environment variables (a .env file is loaded first) and finally flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/Yquannn/multiplayer-phaser/api"
	"github.com/Yquannn/multiplayer-phaser/game/config"
	"github.com/Yquannn/multiplayer-phaser/game/coordinator"
	"github.com/Yquannn/multiplayer-phaser/game/room"
	"github.com/Yquannn/multiplayer-phaser/observability"
	"github.com/Yquannn/multiplayer-phaser/transport/mcp"
	"github.com/Yquannn/multiplayer-phaser/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Multiplayer Room Server"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Flags are shared by every mode.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "multiplayer-phaser",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				Sources: cli.EnvVars("MULTIPLAYER_CONFIG"),
			},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP server port"},
			&cli.StringFlag{Name: "static-dir", Usage: "directory served at / for the game client"},
			&cli.IntFlag{Name: "max-occupants", Usage: "room capacity"},
			&cli.StringFlag{Name: "empty-policy", Usage: "what happens to empty rooms: retain or delete"},
			&cli.StringFlag{Name: "rejoin-policy", Usage: "joining while seated: leave or reject"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token (or NGROK_AUTHTOKEN)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain"},
		},
		DefaultCommand: "server",
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run HTTP server with game client, WebSocket, REST API and MCP endpoint",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "run MCP stdio server, starting an internal HTTP server if needed",
				Action:  runStdioMCP,
			},
			{
				Name:      "validate",
				Usage:     "check config files and print the effective settings",
				ArgsUsage: "[file...]",
				Action:    runValidate,
			},
		},
	}
}

// configFromCommand loads the configuration and applies explicitly set flags.
func configFromCommand(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("static-dir") {
		cfg.Server.StaticDir = cmd.String("static-dir")
	}
	if cmd.IsSet("max-occupants") {
		cfg.Rooms.MaxOccupants = int(cmd.Int("max-occupants"))
	}
	if cmd.IsSet("empty-policy") {
		cfg.Rooms.EmptyPolicy = cmd.String("empty-policy")
	}
	if cmd.IsSet("rejoin-policy") {
		cfg.Rooms.RejoinPolicy = cmd.String("rejoin-policy")
	}
	if cmd.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	if cmd.Bool("ngrok") {
		cfg.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// application holds the wired components shared by both modes.
type application struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *room.Store
	coordinator *coordinator.Coordinator
	hub         *websocket.Hub
	api         *api.Server
}

func newApplication(cfg config.Config, logger *zap.Logger) *application {
	store := room.NewStore(
		room.WithMaxOccupants(cfg.Rooms.MaxOccupants),
		room.WithEmptyRoomPolicy(room.EmptyRoomPolicy(cfg.Rooms.EmptyPolicy)),
	)

	hub := websocket.NewHub(websocket.Config{
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, logger.Named("websocket"))

	coord := coordinator.New(store, hub,
		coordinator.WithLogger(logger.Named("coordinator")),
		coordinator.WithRejoinPolicy(coordinator.RejoinPolicy(cfg.Rooms.RejoinPolicy)),
	)
	hub.SetHandler(coord)

	return &application{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		coordinator: coord,
		hub:         hub,
		api: api.NewServer(coord, hub,
			api.WithStaticDir(cfg.Server.StaticDir),
			api.WithLogger(logger.Named("api")),
		),
	}
}

// start runs the background loops until ctx is done.
func (a *application) start(ctx context.Context) {
	go a.hub.Run(ctx)

	if ttl := a.cfg.Rooms.EmptyRoomTTL; ttl > 0 {
		a.logger.Info("empty room sweeper enabled",
			zap.Duration("ttl", ttl), zap.Duration("interval", a.cfg.Rooms.SweepInterval))
		go a.coordinator.RunSweeper(ctx, a.cfg.Rooms.SweepInterval, ttl)
	}
}

// handler mounts the API server at the root and the MCP endpoint at /mcp.
func (a *application) handler(mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", a.api)
	if mcpClient != nil {
		mainRouter.HandleFunc("/mcp", mcpHandler(mcpClient, a.logger))
	}
	return mainRouter
}

func mcpHandler(mcpClient *mcp.Client, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		responseData, err := json.Marshal(response)
		if err != nil {
			logger.Error("failed to marshal MCP response", zap.Error(err))
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	}
}

// loopbackURL is the address in-process clients use to reach the server.
func loopbackURL(s config.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(s.Port))
}

func setup(cmd *cli.Command) (config.Config, *zap.Logger, error) {
	cfg, err := configFromCommand(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// runServer starts the HTTP server and, if enabled, an ngrok tunnel serving
// the same handler. It blocks until SIGINT or SIGTERM.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version), zap.String("mode", "server"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApplication(cfg, logger)
	app.start(ctx)

	handler := app.handler(mcp.NewClient(loopbackURL(cfg.Server)))
	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws", addr)),
			zap.String("rest", fmt.Sprintf("http://%s/api", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
			stop()
		}
	}()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg.Ngrok, handler, logger.Named("ngrok"))
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("server stopped")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// runNgrok exposes handler through an ngrok tunnel until ctx is done.
func runNgrok(ctx context.Context, cfg config.NgrokConfig, handler http.Handler, logger *zap.Logger) {
	if cfg.AuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("websocket", url+"/ws"),
		zap.String("mcp", url+"/mcp"))

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses a server already listening
// on the configured port; otherwise it starts an internal one on a random
// loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := loopbackURL(cfg.Server)
	if !apiAvailable(ctx, baseURL) {
		logger.Info("no external API server found, starting internal HTTP server", zap.String("checked", baseURL))

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		app := newApplication(cfg, logger)
		app.start(ctx)

		internal := &http.Server{Handler: app.handler(nil)}
		go func() {
			if err := internal.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer internal.Close()

		baseURL = "http://" + listener.Addr().String()
	}

	logger.Info("MCP stdio server ready", zap.String("api", baseURL))

	if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func apiAvailable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runValidate loads each config file given as an argument, or the --config
// file when there are none, and reports whether it is valid.
func runValidate(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	files := cmd.Args().Slice()
	if len(files) == 0 {
		files = []string{cmd.String("config")}
	}

	invalid := 0
	for _, file := range files {
		name := file
		if name == "" {
			name = "(defaults and environment)"
		}
		fmt.Fprintf(out, "\n%s %s\n", strings.Repeat("=", 20), name)

		cfg, err := config.Load(file)
		if err != nil {
			invalid++
			fmt.Fprintln(out, "❌ INVALID")
			fmt.Fprintf(out, "  %v\n", err)
			continue
		}

		fmt.Fprintln(out, "✅ VALID")
		fmt.Fprintf(out, "  listen: %s\n", cfg.Server.Addr())
		fmt.Fprintf(out, "  rooms: capacity %d, empty %s, rejoin %s\n",
			cfg.Rooms.MaxOccupants, cfg.Rooms.EmptyPolicy, cfg.Rooms.RejoinPolicy)
		if cfg.Rooms.EmptyRoomTTL > 0 {
			fmt.Fprintf(out, "  sweeper: every %s, ttl %s\n", cfg.Rooms.SweepInterval, cfg.Rooms.EmptyRoomTTL)
		}
		fmt.Fprintf(out, "  logging: %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 40))
	if invalid > 0 {
		return fmt.Errorf("%d of %d configurations have errors", invalid, len(files))
	}
	fmt.Fprintln(out, "✅ All configurations are valid!")
	return nil
}
