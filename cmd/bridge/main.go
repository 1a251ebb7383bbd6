package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"

	"github.com/smartstock-pro/zkbridge-go/internal/config"
	"github.com/smartstock-pro/zkbridge-go/internal/domain/device"
	appHTTP "github.com/smartstock-pro/zkbridge-go/internal/handler/http"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/cron"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/database"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/devlock"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/logbuf"
	"github.com/smartstock-pro/zkbridge-go/internal/pkg/zk"
	"github.com/smartstock-pro/zkbridge-go/internal/repository/postgresql"
	"github.com/smartstock-pro/zkbridge-go/internal/service/identity"
	"github.com/smartstock-pro/zkbridge-go/internal/service/monitor"
	"github.com/smartstock-pro/zkbridge-go/internal/service/reconcile"
	"github.com/smartstock-pro/zkbridge-go/internal/service/sweep"
	"github.com/smartstock-pro/zkbridge-go/internal/service/syncer"
)

var errDatastoreDown = errors.New("datastore is not connected")

// bridgeApp holds the engine once the datastore is reachable. The control
// surface starts regardless so operators can diagnose a broken database
// remotely; the engine attaches on the first successful init.
type bridgeApp struct {
	cfg    *config.Config
	locks  *devlock.Manager
	dialer device.Dialer

	mu         sync.RWMutex
	db         *database.DB
	resolver   *identity.Resolver
	sweeper    *sweep.Service
	syncSvc    *syncer.Service
	supervisor *monitor.Supervisor
	scheduler  *cron.Scheduler
	initErr    error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	logFormat := httplog.SchemaECS.Concise(false)
	tail := logbuf.NewHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	}), 50)
	logger := slog.New(tail).With(
		slog.String("app", "zkbridge"),
		slog.String("version", "v1.0.0"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	app := &bridgeApp{
		cfg:    cfg,
		locks:  devlock.NewManager(),
		dialer: zk.NewDialer(cfg.Device.ConnectTimeout, cfg.Location()),
	}

	if err := app.initialize(); err != nil {
		slog.Error("Starting in degraded mode, datastore unavailable", "error", err)
		go app.retryLoop()
	}

	bridgeHandler := appHTTP.NewBridgeHandler(appHTTP.BridgeDeps{
		CheckDatabase:  app.checkDatabase,
		CacheSize:      app.cacheSize,
		ActiveSessions: app.activeSessions,
		LogTail:        tail.Tail,
		Sweeper:        sweeperProxy{app},
		Syncer:         syncerProxy{app},
		DefaultIP:      cfg.Device.DefaultIP,
		DefaultPort:    cfg.Device.DefaultPort,
	})

	router := appHTTP.NewRouter(logger, bridgeHandler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		slog.Info("Control surface listening", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("Shutting down")
	app.shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// initialize connects the datastore and starts the engine: repositories,
// identity cache, reconciler, per-device supervisors, and the periodic
// jobs.
func (a *bridgeApp) initialize() error {
	dsn := a.cfg.DatabaseURL()
	if dsn == "" {
		err := fmt.Errorf("DB_PASSWORD is not set")
		a.setInitErr(err)
		return err
	}

	db, err := database.NewPostgreSQLDB(dsn)
	if err != nil {
		a.setInitErr(err)
		return err
	}

	employeeRepo := postgresql.NewEmployeeRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db)
	deviceRepo := postgresql.NewDeviceRepository(db)
	branchRepo := postgresql.NewBranchRepository(db)

	loc := a.cfg.Location()
	resolver := identity.NewResolver(employeeRepo, branchRepo)
	reconciler := reconcile.NewService(attendanceRepo, reconcile.Policy{
		OnTimeEndHour:  a.cfg.Engine.OnTimeEndHour,
		LateCutoffHour: a.cfg.Engine.LateCutoffHour,
		CutoffStatus:   a.cfg.Engine.CutoffStatus,
		Debounce:       time.Duration(a.cfg.Engine.DebounceSeconds) * time.Second,
	}, loc)
	sweeper := sweep.NewService(
		attendanceRepo,
		employeeRepo,
		a.cfg.Engine.AbsentSweepTime,
		a.cfg.Engine.AbsentSweepOffDay,
		loc,
	)

	catchupWindow := time.Duration(a.cfg.Engine.CatchupWindowDays) * 24 * time.Hour
	supervisor := monitor.NewSupervisor(deviceRepo, a.dialer, resolver, reconciler, a.locks, monitor.Config{
		ReconnectDelay: a.cfg.Device.ReconnectDelay,
		CatchupRetry:   a.cfg.Device.CatchupRetry,
		LockPoll:       a.cfg.Device.LockPoll,
		CatchupWindow:  catchupWindow,
		Dispatch:       int64(a.cfg.Engine.DispatchConcurrency),
		Fallback: &device.Device{
			Name:      "Default",
			IPAddress: a.cfg.Device.DefaultIP,
			Port:      a.cfg.Device.DefaultPort,
			IsActive:  true,
		},
	})

	syncSvc := syncer.NewService(a.dialer, a.locks, resolver, reconciler, catchupWindow)

	scheduler := cron.NewScheduler()
	scheduler.AddJob("identity_cache_refresh", a.cfg.Engine.CacheRefreshInterval, true, resolver.Refresh)
	scheduler.AddJob("device_rescan", a.cfg.Device.RescanInterval, true, supervisor.Rescan)
	scheduler.AddJob("absence_sweep_gate", time.Minute, true, sweeper.RunScheduled)
	scheduler.Start()

	a.mu.Lock()
	a.db = db
	a.resolver = resolver
	a.sweeper = sweeper
	a.syncSvc = syncSvc
	a.supervisor = supervisor
	a.scheduler = scheduler
	a.initErr = nil
	a.mu.Unlock()

	slog.Info("Engine started", "devices_rescan", a.cfg.Device.RescanInterval.String())
	return nil
}

// retryLoop keeps trying to attach the engine while the process runs
// degraded.
func (a *bridgeApp) retryLoop() {
	for {
		time.Sleep(30 * time.Second)
		if a.engineUp() {
			return
		}
		if err := a.initialize(); err != nil {
			slog.Error("Datastore still unavailable", "error", err)
			continue
		}
		return
	}
}

func (a *bridgeApp) shutdown() {
	a.mu.RLock()
	scheduler, supervisor, db := a.scheduler, a.supervisor, a.db
	a.mu.RUnlock()

	if scheduler != nil {
		scheduler.Stop()
	}
	if supervisor != nil {
		supervisor.Stop()
	}
	if db != nil {
		db.Close()
	}
}

func (a *bridgeApp) engineUp() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db != nil
}

func (a *bridgeApp) setInitErr(err error) {
	a.mu.Lock()
	a.initErr = err
	a.mu.Unlock()
}

func (a *bridgeApp) checkDatabase(ctx context.Context) error {
	a.mu.RLock()
	db, initErr := a.db, a.initErr
	a.mu.RUnlock()

	if db == nil {
		if initErr != nil {
			return initErr
		}
		return errDatastoreDown
	}
	return db.Ping(ctx)
}

func (a *bridgeApp) cacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.resolver == nil {
		return 0
	}
	return a.resolver.Size()
}

func (a *bridgeApp) activeSessions() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.supervisor == nil {
		return nil
	}
	return a.supervisor.ActiveSessions()
}

// sweeperProxy and syncerProxy guard the degraded-mode window between
// startup and the first successful datastore connection.

type sweeperProxy struct{ app *bridgeApp }

func (p sweeperProxy) Run(ctx context.Context) (int, error) {
	p.app.mu.RLock()
	sweeper := p.app.sweeper
	p.app.mu.RUnlock()
	if sweeper == nil {
		return 0, errDatastoreDown
	}
	return sweeper.Run(ctx)
}

type syncerProxy struct{ app *bridgeApp }

func (p syncerProxy) SyncUsers(ctx context.Context, addr string, port int) (syncer.UserSyncResult, error) {
	p.app.mu.RLock()
	svc := p.app.syncSvc
	p.app.mu.RUnlock()
	if svc == nil {
		return syncer.UserSyncResult{}, errDatastoreDown
	}
	return svc.SyncUsers(ctx, addr, port)
}

func (p syncerProxy) SyncLogs(ctx context.Context, addr string, port int, cutoff *time.Time) (syncer.LogSyncResult, error) {
	p.app.mu.RLock()
	svc := p.app.syncSvc
	p.app.mu.RUnlock()
	if svc == nil {
		return syncer.LogSyncResult{}, errDatastoreDown
	}
	return svc.SyncLogs(ctx, addr, port, cutoff)
}
