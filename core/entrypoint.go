package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"runtime/trace"
	"slices"
	"syscall"
	"time"

	"github.com/encodeous/tint"
	"github.com/encodeous/weft/perf"
	"github.com/encodeous/weft/state"
	"github.com/jonboulle/clockwork"
	slogmulti "github.com/samber/slog-multi"
)

// Options carries what the embedder supplies beyond the node config
type Options struct {
	// Clock defaults to the real clock
	Clock clockwork.Clock
	// Aux is exposed to the modules as state.Env.Aux, see the Aux* keys
	Aux map[string]any
	// OnReady is called once every module is initialized, before the main loop starts
	OnReady func(s *state.State)
	// HandleSignals installs a SIGINT/SIGTERM handler that stops the node
	HandleSignals bool
}

func setupDebugging() func() {
	stop := func() {}
	if state.DBG_trace {
		f, err := os.Create("trace.out")
		if err != nil {
			log.Fatal(err)
		}
		err = trace.Start(f)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("Started tracing")
		stop = func() {
			trace.Stop()
			_ = f.Close()
		}
	}
	if state.DBG_debug {
		go func() {
			log.Println(http.ListenAndServe(state.DebugAddr, nil))
		}()
	}
	return stop
}

// Bootstrap reads, validates and runs the node config at nodePath until the node is stopped
func Bootstrap(nodePath, logPath string, verbose bool) error {
	stopDebugging := setupDebugging()
	defer stopDebugging()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	nodeCfg, err := state.ReadNodeConfig(nodePath)
	if err != nil {
		return err
	}
	if logPath != "" {
		nodeCfg.LogPath = logPath
	}
	state.ExpandNodeConfig(nodeCfg)
	err = state.NodeConfigValidator(nodeCfg)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", nodePath, err)
	}
	return Start(*nodeCfg, level, Options{HandleSignals: true})
}

// newLogger returns the node logger and a func that closes its log file, if there is one
func newLogger(ncfg *state.NodeCfg, logLevel slog.Level) (*slog.Logger, func() error, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: ncfg.Id,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	closeLog := func() error { return nil }
	if ncfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(ncfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(ncfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
		closeLog = f.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeLog, nil
}

// Start runs a node until its context is cancelled. The config must already be expanded and validated.
func Start(ncfg state.NodeCfg, logLevel slog.Level, opts Options) error {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	dispatch := make(chan func(env *state.State) error, 128)

	logger, closeLog, err := newLogger(&ncfg, logLevel)
	if err != nil {
		return err
	}
	// runs after Stop, so cleanup is still logged to the file
	defer func() {
		if err := closeLog(); err != nil {
			logger.Error("failed to close log file", "path", ncfg.LogPath, "error", err)
		}
	}()

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	aux := opts.Aux
	if aux == nil {
		aux = make(map[string]any)
	}

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			NodeCfg:         ncfg,
			Log:             logger,
			Clock:           clock,
			Aux:             aux,
		},
	}

	s.Log.Info("init modules")
	err = initModules(&s)
	if err != nil {
		s.Cancel(err)
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("weft has been initialized. To gracefully exit, send SIGINT or Ctrl+C.", "address", s.OperatorAddress)

	if opts.HandleSignals {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			defer signal.Stop(c)
			select {
			case <-c:
				s.Cancel(errors.New("received shutdown signal"))
			case <-ctx.Done():
				return
			}
		}()
	}

	if opts.OnReady != nil {
		opts.OnReady(&s)
	}
	return MainLoop(&s, dispatch)
}

func initModules(s *state.State) error {
	modules := []state.NyModule{
		&Accounts{},
		&Ledger{},
		&Router{},
		&LinkMgr{},
		&SettlementMgr{},
		&Weft{},
		&IpcServer{},
	}

	for _, module := range modules {
		name := reflect.TypeOf(module).String()
		s.Modules[name] = module
		s.ModuleOrder = append(s.ModuleOrder, name)
		if err := module.Init(s); err != nil {
			return fmt.Errorf("failed to init %s: %w", name, err)
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatchThreshold {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

// Stop cancels the node and cleans up modules in reverse initialization order
func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for _, moduleName := range slices.Backward(s.ModuleOrder) {
		err := s.Modules[moduleName].Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
