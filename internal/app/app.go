package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/buildgridgo/internal/addr"
	"github.com/vk/buildgridgo/internal/buildfile"
	"github.com/vk/buildgridgo/internal/cache"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/registry"
	"github.com/vk/buildgridgo/internal/session"
)

// App encapsulates one application instance: its logger, registry, and
// session. Instances are isolated; two Apps share no state.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	session  *session.Session
}

// NewApp constructs a fully initialized App: logger, registered modules,
// validated registry, artifact cache, session, and loaded build graph.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All modules registered.", "count", len(modules))

	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, fmt.Errorf("registry validation failed: %w", err)
	}

	artifactCache, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}

	sess, err := session.LocalFactory{}.NewSession(ctx, session.Options{
		Workdir:              cfg.Workdir,
		Workers:              cfg.Workers,
		Cache:                artifactCache,
		NoCache:              cfg.NoCache,
		InvalidateDependents: cfg.InvalidateDependents,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		session:  sess,
	}

	if err := a.loadGraph(ctx); err != nil {
		sess.Close(ctx)
		return nil, err
	}
	return a, nil
}

// loadGraph parses the configured manifests and injects their targets
// into the session graph, validating each declaration against the
// registered target types.
func (a *App) loadGraph(ctx context.Context) error {
	if a.config.BuildPath == "" {
		a.logger.Warn("No build path configured; graph starts empty.")
		return nil
	}

	decls, err := buildfile.NewLoader().Load(ctx, a.config.BuildPath)
	if err != nil {
		return fmt.Errorf("load manifests: %w", err)
	}

	if len(a.config.TargetSpecs) > 0 {
		roots := make([]addr.Address, 0, len(a.config.TargetSpecs))
		for _, spec := range a.config.TargetSpecs {
			root, err := addr.Parse(spec)
			if err != nil {
				return fmt.Errorf("target spec %q: %w", spec, err)
			}
			roots = append(roots, root)
		}
		if err := buildfile.InjectSpecClosure(ctx, a.session.Graph(), decls, roots); err != nil {
			return fmt.Errorf("build graph: %w", err)
		}
	} else if err := buildfile.Inject(ctx, a.session.Graph(), decls); err != nil {
		return fmt.Errorf("build graph: %w", err)
	}

	for _, t := range a.session.Graph().Targets(nil) {
		if err := a.registry.ValidateTarget(t); err != nil {
			return fmt.Errorf("%s: %w", t.Address.Spec(), err)
		}
	}

	a.logger.Debug("Build graph loaded.", "targets", a.session.Graph().Len())
	return nil
}

func buildCache(cfg *Config) (cache.Cache, error) {
	var local, remote cache.Cache

	if cfg.CacheDir != "" {
		l, err := cache.OpenLocal(cache.LocalConfig{Path: cfg.CacheDir})
		if err != nil {
			return nil, err
		}
		local = l
	}
	if cfg.RemoteCacheURL != "" {
		r, err := cache.NewRemote(cache.RemoteConfig{BaseURL: cfg.RemoteCacheURL})
		if err != nil {
			if local != nil {
				local.Close()
			}
			return nil, err
		}
		remote = r
	}

	switch {
	case local == nil && remote == nil:
		return cache.Noop{}, nil
	case remote == nil:
		return local, nil
	case local == nil:
		return remote, nil
	default:
		return cache.NewTiered(local, remote), nil
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Session returns the application's session. This is primarily for testing.
func (a *App) Session() *session.Session {
	return a.session
}

// Close releases the app's session and cache.
func (a *App) Close(ctx context.Context) error {
	return a.session.Close(ctxlog.WithLogger(ctx, a.logger))
}
