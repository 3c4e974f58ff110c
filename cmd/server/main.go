package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fairlens/backend/internal/api"
	"github.com/fairlens/backend/internal/cache"
	"github.com/fairlens/backend/internal/chat"
	"github.com/fairlens/backend/internal/config"
	"github.com/fairlens/backend/internal/intake"
	"github.com/fairlens/backend/internal/logging"
	"github.com/fairlens/backend/internal/upstream"
	"github.com/fairlens/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Resolve config beside the executable so double-click deployments work
	exePath, err := os.Executable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get executable path")
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "fairlens.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(cfg.Advanced.LogLevel, cfg.Advanced.PrettyLogging)

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("failed to create directories")
	}

	// Check if running in embedded mode (dashboard built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Upload cache
	store, err := cache.Open(cfg.GetCacheDir())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open upload cache")
	}
	defer store.Close()

	// Intake controller
	controller := intake.NewController(intake.Config{
		SizeThreshold:     cfg.Intake.SizeThresholdBytes,
		PreviewByteBudget: cfg.Intake.PreviewByteBudget,
		PreviewCharBudget: cfg.Intake.PreviewCharBudget,
		MaxPreviewRows:    cfg.Intake.MaxPreviewRows,
		MaxPreviewCols:    cfg.Intake.MaxPreviewCols,
		HeuristicStep:     cfg.Intake.HeuristicStepPercent,
		HeuristicInterval: time.Duration(cfg.Intake.HeuristicIntervalMs) * time.Millisecond,
	}, store)

	// Upstream clients and conversation
	assistant := upstream.NewAssistantClient(cfg.Assistant.BaseURL)
	analysis := upstream.NewAnalysisClient(cfg.Analysis.BaseURL, time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)
	conversation := chat.NewConversation(assistant, chat.Options{
		HardTimeout: time.Duration(cfg.Assistant.HardTimeoutSeconds) * time.Second,
		GateWindow:  time.Duration(cfg.Assistant.ErrorGateSeconds) * time.Second,
	})

	// Assistant presets shipped with the install; missing file is fine
	presets, err := chat.LoadPresets(cfg.Assistant.PresetsFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Assistant.PresetsFile).Msg("failed to load presets")
		presets = &chat.Presets{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	if cfg.Advanced.EnableRequestLogging {
		e.Use(logging.RequestLogger())
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream" ||
				strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		if embeddedMode {
			origins := strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
			if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
				origins = []string{"*"}
			}
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: origins,
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		} else {
			// Development mode - only allow localhost dev servers
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{
					"http://localhost:5173", "http://127.0.0.1:5173",
					"http://localhost:3000", "http://127.0.0.1:3000",
				},
				AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
		}
	}

	// API routes
	handlers := api.NewHandlers(&api.Dependencies{
		Intake:   controller,
		Chat:     conversation,
		Cache:    store,
		Analyzer: analysis,
		Presets:  presets,
		Version:  Version,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, controller)

	// Register embedded dashboard if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warn().Err(err).Msg("failed to register static routes")
		} else {
			log.Info().Msg("serving embedded dashboard from binary")
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info().
		Str("version", Version).
		Str("buildTime", BuildTime).
		Bool("embedded", embeddedMode).
		Str("config", configPath).
		Str("listen", cfg.GetServerAddr()).
		Str("dataDir", cfg.GetDataDir()).
		Msg("fairlens server starting")

	e.Logger.Fatal(e.StartServer(s))
}
