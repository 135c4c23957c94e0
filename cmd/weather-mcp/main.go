// Command weather-mcp runs the paid weather MCP gateway: a streaming HTTP
// MCP endpoint at /mcp plus a stateless one-shot endpoint at /rpc, both
// gated by the payments backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/nevermined-io/weather-mcp-demo/capabilities"
	"github.com/nevermined-io/weather-mcp-demo/gateway"
	"github.com/nevermined-io/weather-mcp-demo/gateway/sessionstore"
	"github.com/nevermined-io/weather-mcp-demo/gateway/sessionstore/memorystore"
	"github.com/nevermined-io/weather-mcp-demo/gateway/sessionstore/redisstore"
	"github.com/nevermined-io/weather-mcp-demo/internal/logctx"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
	"github.com/nevermined-io/weather-mcp-demo/weather"
)

const serverName = "weather-mcp"
const serverVersion = "1.0.0"

type config struct {
	// Port the gateway listens on. ENV: PORT
	Port int `env:"PORT,default=3000"`
	// AllowedHosts is a comma-separated allow-list of hostnames for
	// transport-origin validation. Empty admits all. ENV: ALLOWED_HOSTS
	AllowedHosts string `env:"ALLOWED_HOSTS"`
	// BuilderKey authenticates this gateway to the payments backend.
	BuilderKey string `env:"NVM_API_KEY,required"`
	// AgentID identifies the capability owner being paid.
	AgentID string `env:"AGENT_ID,required"`
	// Environment selects the payments deployment ("live", "sandbox").
	Environment string `env:"NVM_ENVIRONMENT,required"`
	// RedisAddr enables the Redis session store when set.
	RedisAddr string `env:"REDIS_ADDR"`
	// ToolCredits prices the weather tool. ENV: WEATHER_TOOL_CREDITS
	ToolCredits int64 `env:"WEATHER_TOOL_CREDITS,default=1"`
	// PromptCredits prices the weather prompt. ENV: WEATHER_PROMPT_CREDITS
	PromptCredits int64 `env:"WEATHER_PROMPT_CREDITS,default=1"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("gateway.fatal", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(os.Stdout, nil)})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	payments, err := paywall.NewClient(cfg.Environment, cfg.BuilderKey)
	if err != nil {
		return fmt.Errorf("payments client: %w", err)
	}

	wc := weather.NewClient()

	registry := gateway.NewRegistry()
	if err := capabilities.RegisterWeather(registry, wc, capabilities.Config{
		ToolCredits:   cfg.ToolCredits,
		PromptCredits: cfg.PromptCredits,
	}); err != nil {
		return fmt.Errorf("register capabilities: %w", err)
	}

	meter := paywall.NewMeter(payments, cfg.AgentID, serverName, paywall.WithLogger(log))

	info := mcp.ImplementationInfo{Name: serverName, Version: serverVersion}
	newServer := func() *gateway.Server {
		return gateway.NewServer(registry, meter, info,
			gateway.WithInstructions("Paid weather capabilities. Every invocation requires an active subscription."),
			gateway.WithServerLogger(log),
		)
	}

	var store sessionstore.Store
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(redisstore.Config{RedisAddr: cfg.RedisAddr})
		if err != nil {
			return fmt.Errorf("redis session store: %w", err)
		}
		defer rs.Close()
		store = rs
		log.Info("sessions.store", slog.String("kind", "redis"))
	} else {
		store = memorystore.New()
		log.Info("sessions.store", slog.String("kind", "memory"))
	}

	sessions := gateway.NewSessionManager(store, newServer, gateway.WithSessionLogger(log))
	gate := gateway.NewGate(payments, cfg.AgentID, serverName, gateway.WithGateLogger(log))

	var handlerOpts []gateway.HandlerOption
	handlerOpts = append(handlerOpts, gateway.WithHandlerLogger(log))
	if cfg.AllowedHosts != "" {
		handlerOpts = append(handlerOpts, gateway.WithAllowedHosts(strings.Split(cfg.AllowedHosts, ",")))
	}

	handler, err := gateway.NewHandler("/mcp", gate, sessions, handlerOpts...)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}
	dispatcher := gateway.NewDispatcher(gate, newServer(), gateway.WithDispatcherLogger(log))

	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.Handle("/rpc", dispatcher)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway.listen", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("gateway.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
