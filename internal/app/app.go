// Package app wires configuration, storage, services and provider
// processors into a runnable core shared by cmd/ledgerd.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/ledgerd/internal/clients/simplefin"
	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/interfaces"
	"github.com/bobmcallan/ledgerd/internal/providers/brokerage"
	"github.com/bobmcallan/ledgerd/internal/providers/coinwatch"
	"github.com/bobmcallan/ledgerd/internal/providers/pdfimport"
	sfproc "github.com/bobmcallan/ledgerd/internal/providers/simplefin"
	"github.com/bobmcallan/ledgerd/internal/services/holdings"
	"github.com/bobmcallan/ledgerd/internal/services/liability"
	"github.com/bobmcallan/ledgerd/internal/services/syncer"
	"github.com/bobmcallan/ledgerd/internal/storage"
)

// App holds all initialized services and storage. It is the shared core
// behind the HTTP server and the background scheduler.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Registry    *syncer.Registry
	SyncService *syncer.Service
	StartupTime time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, services and provider processors.
// configPath may be empty, in which case LEDGERD_CONFIG and the binary
// directory are checked in turn.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("LEDGERD_CONFIG")
	}
	if configPath == "" {
		candidate := filepath.Join(binDir, "ledgerd.toml")
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage paths to the binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Storage.Raw.Path != "" && !filepath.IsAbs(config.Storage.Raw.Path) {
		config.Storage.Raw.Path = filepath.Join(binDir, config.Storage.Raw.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := storage.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	analyzer := liability.NewAnalyzer(storageManager, liability.ConfigFromCommon(config.Liability), logger)
	materializer := holdings.NewMaterializer(storageManager, logger)

	pipeline := &syncer.Pipeline{
		Storage:      storageManager,
		Logger:       logger,
		Analyzer:     analyzer,
		Materializer: materializer,
		Balances:     &logBalanceScheduler{logger: logger},
	}

	registry := syncer.NewRegistry()

	var sfClient interfaces.ProviderClient
	if config.Providers.SimpleFin.AccessURL != "" {
		sfClient = simplefin.NewClient(config.Providers.SimpleFin.AccessURL, logger,
			simplefin.WithRateLimit(config.Providers.SimpleFin.RateLimit),
			simplefin.WithTimeout(config.Providers.SimpleFin.GetTimeout()),
		)
	} else {
		logger.Warn().Msg("SimpleFIN access URL not configured - bank sync will be unavailable")
	}
	registry.Register(sfproc.NewProcessor(sfClient, pipeline, logger))

	// Brokerage and coinwatch processors register unconditionally; a sync
	// against an unconfigured provider fails with a clear message.
	registry.Register(brokerage.NewProcessor(nil, pipeline, logger))
	registry.Register(coinwatch.NewProcessor(nil, pipeline, logger))

	var pdfClient interfaces.ProviderClient
	if config.Providers.PDFImport.Path != "" {
		dir := pdfimport.NewDirectoryClient(config.Providers.PDFImport.Path, "")
		if dir.Exists() {
			pdfClient = dir
		} else {
			logger.Warn().Str("path", config.Providers.PDFImport.Path).Msg("PDF statement directory does not exist")
		}
	}
	registry.Register(pdfimport.NewProcessor(pdfClient, pipeline, logger))

	syncService := syncer.NewService(storageManager, registry, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Registry:    registry,
		SyncService: syncService,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: cancel scheduler, close storage.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
		a.Storage = nil
	}
}

// logBalanceScheduler is the default balance recompute hook. The actual
// calculation job runs out of process; here we only record the request.
type logBalanceScheduler struct {
	logger *common.Logger
}

func (s *logBalanceScheduler) ScheduleRecalc(ctx context.Context, accountIDs []string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	s.logger.Info().Int("accounts", len(accountIDs)).Msg("Balance recalculation scheduled")
	return nil
}
