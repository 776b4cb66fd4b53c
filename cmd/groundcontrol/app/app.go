package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roman-kulish/uav-ground-control/internal/autopilot"
	"github.com/roman-kulish/uav-ground-control/internal/bridge"
	"github.com/roman-kulish/uav-ground-control/internal/engine"
	"github.com/roman-kulish/uav-ground-control/internal/mavlink"
	"github.com/roman-kulish/uav-ground-control/internal/metrics"
	"github.com/roman-kulish/uav-ground-control/internal/mission"
	"github.com/roman-kulish/uav-ground-control/internal/navigation"
	"github.com/roman-kulish/uav-ground-control/internal/operator"
	"github.com/roman-kulish/uav-ground-control/internal/simulator"
	"github.com/roman-kulish/uav-ground-control/internal/storage"
	"github.com/roman-kulish/uav-ground-control/internal/telemetry"
	"github.com/roman-kulish/uav-ground-control/internal/upload"
	"github.com/roman-kulish/uav-ground-control/internal/vehicle"
)

const (
	storageFile     = "groundcontrol.sqlite"
	tickInterval    = time.Second
	shutdownTimeout = 5 * time.Second
)

// App holds the wired components of a ground station run
type App struct {
	config *Config
	logger *slog.Logger

	metrics  *metrics.Metrics
	store    *storage.SqliteStore
	session  int64
	bridge   *bridge.Bridge
	uploader *upload.Orchestrator
	loopback *autopilot.Loopback
	engine   *engine.Engine
	history  *telemetry.History
	registry *vehicle.Registry
	missions *mission.Store
	facade   *operator.Facade

	// frames sent on behalf of the vehicle towards the ground station
	vehicleEncoder *mavlink.Encoder
	booted         time.Time
}

// Run wires every component from config and serves until ctx is done
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	a, err := New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Serve(ctx)
}

// New builds the component graph. Nothing is started yet.
func New(ctx context.Context, config *Config, logger *slog.Logger) (*App, error) {
	a := App{
		config:         config,
		logger:         logger,
		metrics:        metrics.New(),
		vehicleEncoder: mavlink.NewEncoder(config.MAVLink.TargetSystemID, config.MAVLink.TargetComponentID),
		booted:         time.Now(),
	}

	live := config.Live()
	mc := &config.MAVLink

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		a.store = store

		if a.session, err = store.CreateSession(ctx, config.Mode(), config); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("creating session: %w", err)
		}
	}

	history, err := telemetry.NewHistory(config.Mission.Execution.HistorySize)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating telemetry history: %w", err)
	}
	a.history = history

	missionOptions := []func(*mission.Store){mission.WithLogger(logger)}
	if a.store != nil {
		missionOptions = append(missionOptions, mission.WithPersister(a.store))
	}
	a.missions = mission.NewStore(missionOptions...)

	if a.store != nil {
		persisted, err := a.store.Missions(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("loading missions: %w", err)
		}
		a.missions.Restore(persisted)
		logger.Info("missions restored", slog.Int("count", len(persisted)))
	}

	a.registry = vehicle.NewRegistry(config.vehicleNames(), vehicle.WithLogger(logger), vehicle.WithMetrics(a.metrics))

	a.uploader = upload.New(mavlink.NewEncoder(mc.SystemID, mc.ComponentID), mc.TargetSystemID, mc.TargetComponentID,
		upload.WithLogger(logger),
		upload.WithMetrics(a.metrics),
		upload.WithVehicleEncoder(a.vehicleEncoder))

	start := config.Mission.Execution.StartPosition
	a.engine = engine.New(
		engine.WithLogger(logger),
		engine.WithLiveMode(live),
		engine.WithDefaultSpeed(config.Mission.Execution.DefaultSpeed),
		engine.WithStartPosition(navigation.Position{Latitude: start.Latitude, Longitude: start.Longitude}),
		engine.WithFinishFunc(a.missionFinished))

	a.bridge = bridge.New(bridge.Config{
		SerialEnabled: mc.Serial.Enabled,
		SerialPort:    mc.Serial.Port,
		BaudRate:      mc.Serial.BaudRate,
		ReadTimeout:   time.Duration(mc.Serial.Timeout),
		ListenPort:    mc.listenPort(),
		PeerHost:      config.MAVProxy.Host,
		PeerPort:      config.MAVProxy.Port,
	},
		bridge.WithLogger(logger),
		bridge.WithMetrics(a.metrics),
		bridge.WithFrameHandler(a.handleFrame),
		bridge.WithBindHandler(a.groundStationBound))

	if live {
		a.uploader.Bind(upload.TransportFunc(a.bridge.SendToAutopilot))
	} else {
		a.loopback = autopilot.New(mc.TargetSystemID, mc.TargetComponentID, a.handleLoopbackFrame,
			autopilot.WithLogger(logger))
		a.uploader.Bind(a.loopback)
	}

	facadeOptions := []func(*operator.Facade){
		operator.WithLogger(logger),
		operator.WithLiveMode(live),
		operator.WithSimulator(simulator.New(
			simulator.WithLogger(logger),
			simulator.WithDefaultSpeed(config.Mission.Execution.DefaultSpeed))),
		operator.WithHistory(a.history),
		operator.WithRegistry(a.registry),
		operator.WithDiagnostics(a.bridge),
	}
	if a.store != nil {
		facadeOptions = append(facadeOptions, operator.WithParameterStore(a.store))
	}
	a.facade = operator.New(a.missions, a.engine, a.uploader, facadeOptions...)

	return &a, nil
}

// Operator returns the in-process API of the ground station
func (a *App) Operator() *operator.Facade {
	return a.facade
}

// Serve starts the bridge and the periodic tasks and blocks until ctx is
// done or the bridge stops on its own
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done, err := a.bridge.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer a.bridge.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runTicker(ctx)
	}()

	if a.loopback != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.loopback.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			a.runHeartbeat(ctx)
		}()
	}

	if a.config.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.serveMetrics(ctx)
		}()
	}

	a.logger.Info("ground control started",
		slog.String("mode", a.config.Mode()),
		slog.Int("listenerPort", a.bridge.Diagnostics().ListenerPort),
		slog.Bool("serial", a.config.MAVLink.Serial.Enabled),
		slog.Bool("storage", a.store != nil),
		slog.Bool("metrics", a.config.Metrics.Enabled))

	select {
	case <-ctx.Done():
	case <-done:
		a.logger.Warn("bridge stopped")
	}

	cancel()
	wg.Wait()
	return nil
}

// Close ends the storage session and releases the database
func (a *App) Close() {
	if a.store == nil {
		return
	}

	if a.session != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.store.EndSession(ctx, a.session); err != nil {
			a.logger.Error(fmt.Sprintf("ending session: %s", err.Error()))
		}
		cancel()
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error(fmt.Sprintf("closing storage: %s", err.Error()))
	}
	a.store = nil
}

func (a *App) missionFinished(id string, outcome engine.Outcome, err error) {
	// the facade is built after the engine
	if a.facade != nil {
		a.facade.MissionFinished(id, outcome, err)
	}
}

// handleFrame sees every frame crossing the bridge
func (a *App) handleFrame(src bridge.Source, f *mavlink.Frame) {
	if src != bridge.SourceSerial {
		return
	}

	a.registry.HandleFrame(f)
	if err := a.uploader.HandleFrame(f); err != nil {
		a.logger.Debug(fmt.Sprintf("autopilot frame not handled: %s", err.Error()), slog.String("frame", f.String()))
	}
}

func (a *App) handleLoopbackFrame(f *mavlink.Frame) {
	if err := a.uploader.HandleFrame(f); err != nil {
		a.logger.Debug(fmt.Sprintf("loopback frame not handled: %s", err.Error()), slog.String("frame", f.String()))
	}
}

// groundStationBound runs on the bridge receive loop, so the broadcast is
// moved off it
func (a *App) groundStationBound(addr *net.UDPAddr) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.uploader.BroadcastParameters(ctx, upload.TransportFunc(a.bridge.SendToGroundStation)); err != nil {
			a.logger.Warn(fmt.Sprintf("broadcasting parameters: %s", err.Error()), slog.String("groundStation", addr.String()))
		}
	}()
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	server := &http.Server{
		Addr:              a.config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.logger.Info("serving metrics", slog.String("listen", a.config.Metrics.Listen))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(fmt.Sprintf("metrics server failed: %s", err.Error()))
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
	case err != nil:
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	case !stat.IsDir():
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(filepath.Join(dir, storageFile)), nil
}
