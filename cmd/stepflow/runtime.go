package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rendis/stepflow/internal/connections"
	"github.com/rendis/stepflow/internal/engine"
	"github.com/rendis/stepflow/internal/metrics"
	"github.com/rendis/stepflow/internal/pieces"
	"github.com/rendis/stepflow/internal/secrets"
	"github.com/rendis/stepflow/internal/storage"
	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/internal/validation"
	"github.com/rendis/stepflow/pkg/schema"
)

// runtime bundles the collaborators a command needs and releases them on
// Close in reverse order of acquisition.
type runtime struct {
	store     *store.LibSQLStore
	vault     *secrets.AESVault // nil unless a passphrase is configured
	registry  *pieces.Registry
	validator *validation.FlowValidator
	executor  engine.Executor

	closers []func() error
}

func (r *runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Close releases every resource, collecting all errors.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// newValidationRuntime prepares the piece registry and validator only.
func newValidationRuntime(ctx context.Context, c Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	if err := rt.initPieces(ctx, c, logger); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// newRuntime prepares everything needed to execute flows.
func newRuntime(ctx context.Context, c Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	if err := rt.init(ctx, c, logger); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *runtime) init(ctx context.Context, c Config, logger *slog.Logger) error {
	if err := r.initPieces(ctx, c, logger); err != nil {
		return err
	}

	st, err := openStore(ctx, c.DBPath)
	if err != nil {
		return err
	}
	r.store = st
	r.onClose(st.Close)

	if c.Vault.Passphrase != "" {
		if r.vault, err = openVault(st, c.Vault); err != nil {
			return err
		}
	}

	storageSvc, err := r.storageService(c, logger)
	if err != nil {
		return err
	}
	connSvc, err := r.connectionService(c, logger)
	if err != nil {
		return err
	}

	observers := []engine.Observer{store.NewEventLog(st, logger)}
	if c.MetricsAddr != "" {
		collector, err := r.serveMetrics(c.MetricsAddr, logger)
		if err != nil {
			return err
		}
		observers = append(observers, collector)
	}

	r.executor = engine.NewExecutor(engine.ExecutorConfig{
		Pieces:      r.registry,
		Storage:     storageSvc,
		Connections: connSvc,
		Store:       st,
		Observer:    engine.Observers(observers...),
		Logger:      logger,
	})
	return nil
}

// initPieces registers the built-in pieces plus every configured MCP piece
// and builds the flow validator over the resulting registry.
func (r *runtime) initPieces(ctx context.Context, c Config, logger *slog.Logger) error {
	inputs, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}
	r.registry = pieces.NewRegistry(pieces.WithValidator(inputs), pieces.WithLogger(logger))
	if err := pieces.RegisterBuiltins(r.registry, pieces.HTTPConfig{DefaultTimeout: duration(c.HTTPTimeout)}); err != nil {
		return err
	}

	for _, pc := range c.Pieces {
		p, err := pieces.StartMCPPiece(ctx, pc, logger)
		if err != nil {
			return err
		}
		r.onClose(p.Close)
		if err := r.registry.Register(p); err != nil {
			return err
		}
		logger.Debug("mcp piece registered", slog.String("piece", pc.Name), slog.Int("actions", len(p.Actions())))
	}

	r.validator, err = validation.NewFlowValidator(r.registry)
	return err
}

func (r *runtime) storageService(c Config, logger *slog.Logger) (storage.Service, error) {
	sc := c.Storage
	switch sc.Backend {
	case "", "none":
		return nil, nil
	case "http":
		if sc.URL == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "storage backend http requires storage.url")
		}
		return storage.NewHTTPService(storage.HTTPConfig{
			BaseURL: sc.URL,
			Token:   sc.Token,
			Timeout: duration(c.HTTPTimeout),
		}, logger), nil
	case "redis":
		svc := storage.NewRedisService(sc.RedisAddr, sc.RedisPassword, sc.RedisDB,
			storage.WithPrefix(sc.RedisPrefix),
			storage.WithTTL(duration(sc.RedisTTL)),
		)
		r.onClose(svc.Close)
		return svc, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown storage backend %q", sc.Backend)
	}
}

func (r *runtime) connectionService(c Config, logger *slog.Logger) (connections.Service, error) {
	cc := c.Connections
	switch cc.Backend {
	case "", "none":
		return nil, nil
	case "http":
		if cc.URL == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "connections backend http requires connections.url")
		}
		return connections.NewHTTPService(connections.HTTPConfig{
			BaseURL: cc.URL,
			Token:   cc.Token,
			Timeout: duration(c.HTTPTimeout),
		}, logger), nil
	case "vault":
		if r.vault == nil {
			return nil, errNoPassphrase
		}
		return connections.NewVaultService(r.vault), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown connections backend %q", cc.Backend)
	}
}

// serveMetrics exposes run metrics on addr until the runtime is closed.
func (r *runtime) serveMetrics(addr string, logger *slog.Logger) (*metrics.Collector, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	r.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	logger.Info("serving metrics", slog.String("addr", addr))
	return collector, nil
}

var errNoPassphrase = schema.NewError(schema.ErrCodeVault,
	"vault passphrase not configured; set STEPFLOW_VAULT_PASSPHRASE")

// openStore opens and migrates the run database, creating its directory.
func openStore(ctx context.Context, path string) (*store.LibSQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "create db dir: %v", err).WithCause(err)
		}
	}
	st, err := store.NewLibSQLStore("file:" + path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func openVault(st *store.LibSQLStore, vc VaultConfig) (*secrets.AESVault, error) {
	if vc.Passphrase == "" {
		return nil, errNoPassphrase
	}
	return secrets.NewAESVault(st, secrets.VaultConfig{
		Passphrase: vc.Passphrase,
		Salt:       []byte(vc.Salt),
	})
}
