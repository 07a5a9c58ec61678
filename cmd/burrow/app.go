package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/cache"
	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/credentials"
	"github.com/cuemby/burrow/pkg/dns"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/syncer"
	"github.com/cuemby/burrow/pkg/types"
	berrors "go.etcd.io/bbolt/errors"
)

// app is the wired component graph shared by serve and the local commands
type app struct {
	cfg       *config.Config
	store     *storage.BoltStore
	broker    *events.Broker
	servers   *credentials.Store
	cache     *cache.RuleCache
	appliance *client.Client
	engine    *syncer.Engine
	monitor   *health.Monitor
	service   *api.Service
}

// newApp opens the database and wires every component. The broker and the
// health monitor are only created for long-running processes.
func newApp(cfg *config.Config, daemon bool) (*app, error) {
	tlsConfig, err := security.ClientTLSConfig(cfg.Client.CAFile, cfg.Client.InsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, fmt.Errorf("database in %s is locked; stop \"burrow serve\" or use the HTTP API", cfg.DataDir)
		}
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	if daemon {
		a.broker = events.NewBroker()
	}

	a.servers = credentials.New(store, security.NewCodec(store), a.broker)
	a.cache = cache.New(store)
	g := gate.New(cfg.Gate.Options())
	a.appliance = client.New(g, tlsConfig)
	a.engine = syncer.New(a.servers, a.appliance, a.cache, store, a.broker)
	if daemon && cfg.Health.IsEnabled() {
		a.monitor = health.NewMonitor(a.servers, a.appliance, cfg.Health.Options(), a.broker)
	}

	// Left as a nil interface when disabled
	var resolver api.Resolver
	if cfg.DNS.IsEnabled() {
		resolver = dns.NewResolver(g, cfg.DNS.Options())
	}

	a.service = api.NewService(api.Deps{
		Servers:   a.servers,
		Engine:    a.engine,
		Appliance: a.appliance,
		Cache:     a.cache,
		Settings:  store,
		Resolver:  resolver,
		Monitor:   a.monitor,
		Broker:    a.broker,
	})
	return a, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

// dispatch runs one operation with args marshalled as its argument object.
// Failures reported inside sync results are turned into errors so the
// process exits non-zero.
func (a *app) dispatch(ctx context.Context, op string, args any) (any, error) {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	result, err := a.service.Dispatch(ctx, op, raw)
	if err != nil {
		return nil, errors.New(api.Message(err))
	}
	return result, nil
}

// resultError extracts the failure carried by a result object, if any
func resultError(result any) error {
	switch r := result.(type) {
	case *types.SyncResult:
		if !r.Success {
			return errors.New(r.Error)
		}
	case *types.SyncAllResult:
		if !r.Success && r.Error != "" {
			return errors.New(r.Error)
		}
		if !r.Success {
			return fmt.Errorf("none of %d servers refreshed", len(r.Results))
		}
	case *api.TestConnectionResult:
		if !r.Success {
			return errors.New(r.Error)
		}
	}
	return nil
}

// withApp opens a local app for the duration of fn
func withApp(fn func(a *app) error) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// runOp dispatches op against the local database and prints the result
func runOp(ctx context.Context, op string, args any) error {
	return withApp(func(a *app) error {
		result, err := a.dispatch(ctx, op, args)
		if err != nil {
			return err
		}
		if err := printResult(result); err != nil {
			return err
		}
		return resultError(result)
	})
}
