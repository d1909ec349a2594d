// Package app composes the dashboard from its parts via fx.
package app

import (
	"context"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/backend"
	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/chat"
	"github.com/mushfiqur/botadmin/internal/config"
	"github.com/mushfiqur/botadmin/internal/lock"
	"github.com/mushfiqur/botadmin/internal/logging"
	"github.com/mushfiqur/botadmin/internal/media"
	"github.com/mushfiqur/botadmin/internal/playback"
	"github.com/mushfiqur/botadmin/internal/push"
	"github.com/mushfiqur/botadmin/internal/roster"
	"github.com/mushfiqur/botadmin/internal/status"
	"github.com/mushfiqur/botadmin/internal/store"
	intsync "github.com/mushfiqur/botadmin/internal/sync"
	"github.com/mushfiqur/botadmin/internal/tui"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the dashboard, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("dashboard",
		fx.Supply(p),
		fx.Provide(
			provideProfile,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideBackend,
			provideChatStore,
			providePlayback,
			provideRoster,
			provideEngine,
			provideRecorder,
			providePush,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideProfile(p Params) (config.Profile, error) {
	return config.ResolveProfile(p.ProfileName)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(config.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := config.EnsureDirs(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(config.ProfileDir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := config.CacheDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(profile config.Profile, logger *zap.Logger) *backend.Client {
	return backend.NewClient(profile.APIBaseURL, logger)
}

func provideChatStore(b *bus.Bus) *chat.Store {
	return chat.NewStore(b)
}

func providePlayback() *playback.Controller {
	return playback.NewController(&playback.HTTPLoader{})
}

func provideRoster(client *backend.Client, db *store.DB, b *bus.Bus, logger *zap.Logger) *roster.Manager {
	return roster.NewManager(client, db, b, logger)
}

func provideEngine(st *chat.Store, client *backend.Client, mgr *roster.Manager, profile config.Profile, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(st, client, client, mgr, b, logger, profile.PollInterval())
}

func provideRecorder(p Params, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *intsync.Recorder {
	device := intsync.NewExecDevice(filepath.Join(config.ProfileDir(p.ProfileName), "recordings"))
	return intsync.NewRecorder(device, engine, b, logger)
}

func providePush(profile config.Profile, b *bus.Bus, m *status.Machine, logger *zap.Logger) *push.Client {
	return push.NewClient(profile.SocketURL, b, m, logger)
}

func provideTUI(p Params, profile config.Profile, st *chat.Store, engine *intsync.Engine, recorder *intsync.Recorder, pb *playback.Controller, mgr *roster.Manager, m *status.Machine, b *bus.Bus, logger *zap.Logger) *tui.App {
	return tui.NewApp(tui.Deps{
		Store:    st,
		Engine:   engine,
		Recorder: recorder,
		Playback: pb,
		Roster:   mgr,
		Machine:  m,
		Bus:      b,
		Bases: media.Bases{
			APIBaseURL:   profile.APIBaseURL,
			MediaBaseURL: profile.MediaBaseURL,
		},
		Profile: p.ProfileName,
		Logger:  logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, ui *tui.App, pushClient *push.Client, engine *intsync.Engine, mgr *roster.Manager, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(runCtx)
			mgr.Start(runCtx)
			go pushClient.Run(runCtx)

			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("dashboard error", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			cancel()
			engine.Stop()
			mgr.Stop()
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("dashboard stopped")
			return nil
		},
	})
}
