// assistantd runs the assistant HTTP service: conversation turns plus the
// governed intent lifecycle, backed by SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChristianGroove/agency-manager-sub002/common/environment"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/action"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/engine"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/governance"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/guard"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/httpapi"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/intent"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/model"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/ratelimit"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(environment.StringOr("LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	dbPath := environment.StringOr("DATABASE_PATH", "./assistant.db")
	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	intents, err := loadIntents(logger)
	if err != nil {
		return err
	}

	actions := action.NewRegistry()
	if err := registerActions(actions, intents, logger); err != nil {
		return err
	}

	models := model.NewRegistry(
		model.NewKeywordAdapter(),
		environment.DurationOr("MODEL_TIMEOUT", model.DefaultCallTimeout),
		logger,
	)
	if apiKey := environment.StringOr("OPENAI_API_KEY", ""); apiKey != "" {
		remote := model.NewRemoteAdapter(model.RemoteConfig{
			AdapterID: environment.StringOr("REMOTE_MODEL_ID", "gpt"),
			APIKey:    apiKey,
			BaseURL:   environment.StringOr("OPENAI_BASE_URL", ""),
			Model:     environment.StringOr("OPENAI_MODEL", ""),
		})
		allowList := environment.StringSliceOr("REMOTE_MODEL_SPACES", nil)
		models.Register(remote, allowList)
		logger.Info("remote model registered", "adapter", remote.ID(), "spaces", allowList)
	}

	service := governance.NewService(intents, db, logger)
	executor := governance.NewExecutor(intents, actions, db, logger)

	eng := engine.New(engine.Config{
		Intents:      intents,
		Actions:      actions,
		Models:       models,
		Guard:        guard.New(intents),
		Service:      service,
		Executor:     executor,
		Store:        db,
		Limiter:      ratelimit.New(environment.IntOr("DAILY_QUOTA", ratelimit.DefaultDailyQuota)),
		TextModelID:  environment.StringOr("TEXT_MODEL_ID", model.DefaultAdapterID),
		VoiceModelID: environment.StringOr("VOICE_MODEL_ID", model.DefaultAdapterID),
		Logger:       logger,
	})

	server := httpapi.NewServer(eng, service, executor, db, identity.HeaderResolver{}, logger)

	srv := &http.Server{
		Addr:         ":" + environment.StringOr("PORT", "8080"),
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go eng.RunExpiry(ctx,
		environment.DurationOr("PROPOSAL_SWEEP_INTERVAL", time.Hour),
		environment.DurationOr("PROPOSAL_TTL", governance.DefaultProposalTTL),
	)

	go func() {
		logger.Info("listening", "addr", srv.Addr, "db", dbPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

// loadIntents uses the embedded catalog unless an operator points
// ASSISTANT_INTENT_CATALOG at a replacement file.
func loadIntents(logger *slog.Logger) (*intent.Registry, error) {
	path := environment.StringOr("ASSISTANT_INTENT_CATALOG", "")
	if path == "" {
		return intent.DefaultRegistry()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent catalog: %w", err)
	}
	defs, err := intent.LoadCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("load intent catalog %s: %w", path, err)
	}
	logger.Info("intent catalog loaded", "path", path, "intents", len(defs))
	return intent.NewRegistry(defs)
}

// registerActions binds every catalog action. The bodies here are
// placeholders that acknowledge the request; real deployments plug the CRM,
// billing and automation services in instead.
func registerActions(actions *action.Registry, intents *intent.Registry, logger *slog.Logger) error {
	narratives := map[string]string{
		"create_brief":       "Creé el brief para el cliente %s.",
		"create_quote":       "Preparé la cotización para el cliente %s.",
		"send_reminder":      "Le envié el recordatorio al cliente %s.",
		"pause_automation":   "Pausé la automatización %s.",
		"activate_flow":      "Activé el flujo %s.",
		"list_pending_tasks": "No tienes tareas pendientes por ahora.",
	}

	for _, def := range intents.List() {
		narrative, ok := narratives[def.Action]
		if !ok {
			narrative = "Listo, quedó hecho."
		}
		err := actions.Register(action.Registration{
			Name: def.Action,
			Handler: action.HandlerFunc(func(ctx context.Context, caller identity.Context, params map[string]string) (*action.Result, error) {
				logger.Info("action executed",
					"action", def.Action,
					"space_id", caller.SpaceID,
					"user_id", caller.UserID,
				)
				text := narrative
				if len(def.RequiredParams) > 0 {
					text = fmt.Sprintf(narrative, params[def.RequiredParams[0]])
				}
				return &action.Result{
					Success:      true,
					NarrativeLog: text,
					Data:         map[string]any{"action": def.Action, "params": params},
				}, nil
			}),
		})
		if err != nil {
			return fmt.Errorf("register action %s: %w", def.Action, err)
		}
	}
	return nil
}

func logLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
