// Package runtime assembles a full conduit instance: configuration,
// logging, the Playwright driver, the verification engine, the command
// dispatcher, and the socket server, with one Run call supervising the
// whole graph.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/conduit/pkg/config"
	"github.com/entrhq/conduit/pkg/dispatch"
	"github.com/entrhq/conduit/pkg/driver/playwrightdrv"
	"github.com/entrhq/conduit/pkg/ipc"
	"github.com/entrhq/conduit/pkg/logging"
	"github.com/entrhq/conduit/pkg/types"
	"github.com/entrhq/conduit/pkg/verify"
)

// Options selects the instance identity and config source.
type Options struct {
	// Instance names this process's socket. Required.
	Instance types.InstanceID

	// ConfigPath overrides the default config location. Empty means
	// ~/.conduit/config.yaml.
	ConfigPath string

	// SocketDir overrides the config's socket directory when non-empty.
	SocketDir string

	// Headless forces all startup contexts headless regardless of their
	// per-context setting.
	Headless bool
}

// Runtime is one assembled conduit instance.
type Runtime struct {
	opts    Options
	cfg     config.Config
	log     *logging.Logger
	manager *playwrightdrv.SessionManager
	driver  *playwrightdrv.Driver
	server  *ipc.Server
}

// New loads configuration and builds the component graph. The browser
// engine is not started yet; Run does that.
func New(opts Options) (*Runtime, error) {
	if opts.Instance == "" {
		return nil, fmt.Errorf("instance id is required")
	}

	path := opts.ConfigPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.SocketDir != "" {
		cfg.SocketDir = opts.SocketDir
	}

	log, err := logging.NewLogger("runtime")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	manager := playwrightdrv.NewSessionManager()
	driver := playwrightdrv.NewDriver(manager, log)
	channel := verify.NewChannel()
	probes := playwrightdrv.NewProbes(driver, channel, log)
	verifier := verify.NewVerifier(driver, probes, channel, verify.Timing{
		HitTestTimeout: cfg.HitTestTimeout(),
		SettleDelay:    cfg.SettleDelay(),
	})

	dispatcher, err := dispatch.New(driver, verifier, cfg)
	if err != nil {
		return nil, err
	}

	server := ipc.NewServer(opts.Instance, dispatcher.Handle,
		ipc.WithServerSocketDir(cfg.SocketDir))

	return &Runtime{
		opts:    opts,
		cfg:     cfg,
		log:     log,
		manager: manager,
		driver:  driver,
		server:  server,
	}, nil
}

// Config returns the loaded configuration.
func (r *Runtime) Config() config.Config {
	return r.cfg
}

// SocketFile returns the path of the instance socket.
func (r *Runtime) SocketFile() string {
	return r.server.SocketFile()
}

// Run starts the browser engine and the socket server, then blocks until
// ctx is canceled. Startup contexts from the config are opened in
// parallel; any failure aborts startup and tears down what was opened.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.log.Close()

	r.log.Infof("starting instance %s", r.opts.Instance)

	if err := r.manager.Initialize(); err != nil {
		return err
	}
	defer r.manager.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range r.cfg.Contexts {
		spec := spec
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, err := r.manager.StartContext(types.ContextID(spec.ID), playwrightdrv.ContextOptions{
				Headless:   spec.Headless || r.opts.Headless,
				InitialURL: spec.URL,
			})
			if err != nil {
				return fmt.Errorf("startup context %s: %w", spec.ID, err)
			}
			r.log.Infof("opened context %s", spec.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.server.Start(); err != nil {
		return err
	}
	r.log.Infof("listening on %s", r.server.SocketFile())

	if err := r.selfTest(); err != nil {
		r.server.Stop()
		return err
	}

	sg, sctx := errgroup.WithContext(ctx)
	sg.Go(func() error {
		<-sctx.Done()
		return sctx.Err()
	})
	sg.Go(func() error {
		return r.sweepIdle(sctx)
	})
	err := sg.Wait()

	r.log.Infof("shutting down instance %s", r.opts.Instance)
	r.server.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// selfTest sends one status command to our own socket through a small
// pool, proving the transport and dispatcher are live before we report
// the instance as serving.
func (r *Runtime) selfTest() error {
	pool, err := ipc.NewPool(r.cfg.SocketDir, r.opts.Instance, 2)
	if err != nil {
		return fmt.Errorf("loopback self-test: %w", err)
	}
	defer pool.Close()

	reply, err := pool.SendCommand(`{"op":"status"}`, r.cfg.SendTimeout())
	if err != nil {
		return fmt.Errorf("loopback self-test: %w", err)
	}
	r.log.Debugf("self-test reply: %s", reply)
	return nil
}

// sweepIdle periodically closes browser contexts that have gone unused.
func (r *Runtime) sweepIdle(ctx context.Context) error {
	idle := r.cfg.ContextIdleTimeout()
	if idle <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	r.manager.SetIdleTimeout(idle)

	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range r.manager.CleanupIdle() {
				r.log.Infof("closed idle context %s", id)
			}
		}
	}
}
