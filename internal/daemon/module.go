package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chatsyncd/chatsync/internal/bus"
	"github.com/chatsyncd/chatsync/internal/config"
	"github.com/chatsyncd/chatsync/internal/lock"
	"github.com/chatsyncd/chatsync/internal/logging"
	"github.com/chatsyncd/chatsync/internal/notify"
	"github.com/chatsyncd/chatsync/internal/pending"
	"github.com/chatsyncd/chatsync/internal/reconcile"
	"github.com/chatsyncd/chatsync/internal/remote"
	"github.com/chatsyncd/chatsync/internal/session"
	"github.com/chatsyncd/chatsync/internal/store"
	"github.com/chatsyncd/chatsync/internal/syncer"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	AccountName string
	// Remote overrides the backend connection; nil wires the in-memory
	// loopback, which is what tests and the offline-only mode use.
	Remote remote.Store
	// Online starts the session connected.
	Online bool
	// Notifier overrides OS notification clearing; nil is a no-op.
	Notifier notify.Notifier
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRemote,
			provideNotifier,
			provideQueue,
			provideReplayer,
			provideReconciler,
			provideSyncer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// provideConfig tolerates a missing config file so a fresh install
// starts with the built-in defaults.
func provideConfig() (*config.Config, error) {
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.AccountName), p.AccountName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.AccountName); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.AccountName))
	l, err := lock.Acquire(session.Dir(p.AccountName))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.StoreDBPath(p.AccountName)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(p Params) remote.Store {
	if p.Remote != nil {
		return p.Remote
	}
	return remote.NewMemory()
}

func provideNotifier(p Params) notify.Notifier {
	if p.Notifier != nil {
		return p.Notifier
	}
	return notify.Noop{}
}

func provideQueue(p Params, db *store.DB) *pending.Queue {
	return pending.NewQueue(db, p.AccountName)
}

func provideReplayer(p Params, cfg *config.Config, db *store.DB, q *pending.Queue, rem remote.Store, b *bus.Bus, logger *zap.Logger) *pending.Replayer {
	policy := pending.Policy{
		RetryBudget:     cfg.RetryBudget,
		BackoffBase:     time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		DispatchTimeout: time.Duration(cfg.DispatchTimeoutMs) * time.Millisecond,
	}
	return pending.NewReplayer(db, q, rem, b, logger, p.AccountName, policy)
}

func provideReconciler(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) *reconcile.Reconciler {
	return reconcile.New(db, p.AccountName, b, logger)
}

func provideSyncer(p Params, cfg *config.Config, db *store.DB, q *pending.Queue, rep *pending.Replayer, rec *reconcile.Reconciler, rem remote.Store, b *bus.Bus, n notify.Notifier, logger *zap.Logger) *syncer.Syncer {
	opts := syncer.Options{
		PageSize:        cfg.PageSize,
		PinLimit:        cfg.PinLimit,
		DispatchTimeout: time.Duration(cfg.DispatchTimeoutMs) * time.Millisecond,
	}
	return syncer.New(db, q, rep, rec, rem, b, n, logger, p.AccountName, opts)
}

func registerLifecycle(p Params, lc fx.Lifecycle, s *syncer.Syncer, rep *pending.Replayer, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Start(ctx, p.Online); err != nil {
				return err
			}
			// Background replay keeps retrying backed-off actions while
			// the session stays up.
			rep.Start(context.Background())
			logger.Info("daemon started", zap.String("account", p.AccountName), zap.Bool("online", p.Online))
			return nil
		},
		OnStop: func(_ context.Context) error {
			rep.Stop()
			s.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
