package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cuemby/burrow/pkg/cache"
	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/credentials"
	"github.com/cuemby/burrow/pkg/dns"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/syncer"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownOperation is returned for an operation name outside the
	// supported set
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidArguments is returned when an argument object cannot be
	// decoded or misses a required field
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Operation names accepted by Dispatch
const (
	OpGetServers         = "getServers"
	OpSaveServer         = "saveServer"
	OpDeleteServer       = "deleteServer"
	OpRefreshServerRules = "refreshServerRules"
	OpRefreshAllServers  = "refreshAllServers"
	OpGetServerRules     = "getServerRules"
	OpTestConnection     = "testConnection"
	OpGetSettings        = "getSettings"
	OpSaveSettings       = "saveSettings"
	OpSetRules           = "setRules"
	OpAddRule            = "addRule"
	OpRemoveRule         = "removeRule"
	OpGetStatus          = "getStatus"
	OpGetFiltering       = "getFilteringStatus"
	OpGetStats           = "getStats"
	OpGetQueryLog        = "getQueryLog"
	OpCheckHost          = "checkHost"
	OpToggleProtection   = "toggleProtection"
	OpAddFilterURL       = "addFilterUrl"
	OpRemoveFilterURL    = "removeFilterUrl"
	OpClearCache         = "clearCache"
	OpGetServerHealth    = "getServerHealth"
	OpDNSLookup          = "dnsLookup"
)

// Appliance is the subset of the appliance client the service calls directly
type Appliance interface {
	health.Prober
	Status(ctx context.Context, srv *types.Server) (*client.Status, error)
	FilteringStatus(ctx context.Context, srv *types.Server) (*client.FilteringStatus, error)
	Stats(ctx context.Context, srv *types.Server) (*client.Stats, error)
	QueryLog(ctx context.Context, srv *types.Server, limit int) (*client.QueryLog, error)
	CheckHost(ctx context.Context, srv *types.Server, name string) (*client.HostCheck, error)
	SetProtection(ctx context.Context, srv *types.Server, enabled bool) error
	AddFilterURL(ctx context.Context, srv *types.Server, name, listURL string, whitelist bool) error
	RemoveFilterURL(ctx context.Context, srv *types.Server, listURL string, whitelist bool) error
}

// SettingsStore reads and writes user settings
type SettingsStore interface {
	GetSettings() (types.Settings, error)
	PutSettings(settings types.Settings) error
}

// Resolver answers DNS lookups through an appliance
type Resolver interface {
	Lookup(ctx context.Context, srv *types.Server, name, qtype string) (*dns.Answer, error)
}

// Deps are the components a Service dispatches to. Resolver, Monitor and
// Broker may be nil.
type Deps struct {
	Servers   *credentials.Store
	Engine    *syncer.Engine
	Appliance Appliance
	Cache     *cache.RuleCache
	Settings  SettingsStore
	Resolver  Resolver
	Monitor   *health.Monitor
	Broker    *events.Broker
}

type handler func(ctx context.Context, args json.RawMessage) (any, error)

// Service is the message boundary: a closed set of named operations taking
// a JSON argument object and returning a JSON-encodable result
type Service struct {
	deps     Deps
	handlers map[string]handler
}

// NewService creates the operation dispatcher
func NewService(deps Deps) *Service {
	s := &Service{deps: deps}
	s.handlers = map[string]handler{
		OpGetServers:         s.getServers,
		OpSaveServer:         s.saveServer,
		OpDeleteServer:       s.deleteServer,
		OpRefreshServerRules: s.refreshServerRules,
		OpRefreshAllServers:  s.refreshAllServers,
		OpGetServerRules:     s.getServerRules,
		OpTestConnection:     s.testConnection,
		OpGetSettings:        s.getSettings,
		OpSaveSettings:       s.saveSettings,
		OpSetRules:           s.setRules,
		OpAddRule:            s.addRule,
		OpRemoveRule:         s.removeRule,
		OpGetStatus:          s.getStatus,
		OpGetFiltering:       s.getFilteringStatus,
		OpGetStats:           s.getStats,
		OpGetQueryLog:        s.getQueryLog,
		OpCheckHost:          s.checkHost,
		OpToggleProtection:   s.toggleProtection,
		OpAddFilterURL:       s.addFilterURL,
		OpRemoveFilterURL:    s.removeFilterURL,
		OpClearCache:         s.clearCache,
		OpGetServerHealth:    s.getServerHealth,
		OpDNSLookup:          s.dnsLookup,
	}
	return s
}

// Operations returns the supported operation names
func (s *Service) Operations() []string {
	ops := make([]string, 0, len(s.handlers))
	for op := range s.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Dispatch runs op with args. Operations whose outcome is a sync result
// report failures inside the result; every other failure is returned as an
// error whose message is safe to show to the user.
func (s *Service) Dispatch(ctx context.Context, op string, args json.RawMessage) (any, error) {
	h, ok := s.handlers[op]
	if !ok {
		metrics.APIRequestsTotal.WithLabelValues("unknown", "error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	timer := metrics.NewTimer()
	result, err := h(ctx, args)
	timer.ObserveDurationVec(metrics.APIRequestDuration, op)

	status := "ok"
	if err != nil {
		status = "error"
		logger := log.WithOperation(op)
		logger.Debug().Err(err).Msg("Operation failed")
	}
	metrics.APIRequestsTotal.WithLabelValues(op, status).Inc()
	return result, err
}

// Argument objects

// serverArgs skips struct validation; credentials.Store.Save validates the
// server itself so its messages reach the caller unchanged
type serverArgs struct {
	Server *types.Server `json:"server" validate:"-"`
}

type idArgs struct {
	ID string `json:"id" validate:"required"`
}

type serverIDArgs struct {
	ServerID string `json:"serverId" validate:"required"`
}

type refreshArgs struct {
	ServerID string `json:"serverId" validate:"required"`
	Force    bool   `json:"force"`
}

type refreshAllArgs struct {
	Force bool `json:"force"`
}

type connectionArgs struct {
	Host     string `json:"host" validate:"required,url,http_url"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type settingsArgs struct {
	Settings *types.Settings `json:"settings" validate:"required"`
}

type rulesArgs struct {
	ServerID string   `json:"serverId" validate:"required"`
	Rules    []string `json:"rules"`
}

type ruleArgs struct {
	ServerID string `json:"serverId" validate:"required"`
	Rule     string `json:"rule" validate:"required"`
}

type queryLogArgs struct {
	ServerID string `json:"serverId" validate:"required"`
	Limit    int    `json:"limit" validate:"gte=0,lte=5000"`
}

type checkHostArgs struct {
	ServerID string `json:"serverId" validate:"required"`
	Name     string `json:"name" validate:"required,hostname_rfc1123"`
}

type lookupArgs struct {
	ServerID string `json:"serverId" validate:"required"`
	Name     string `json:"name" validate:"required,hostname_rfc1123"`
	Type     string `json:"type" validate:"omitempty,alpha"`
}

type protectionArgs struct {
	ServerID string `json:"serverId" validate:"required"`
	Enabled  bool   `json:"enabled"`
}

type filterURLArgs struct {
	ServerID  string `json:"serverId" validate:"required"`
	Name      string `json:"name"`
	URL       string `json:"url" validate:"required,url"`
	Whitelist bool   `json:"whitelist"`
}

type clearCacheArgs struct {
	ServerID string `json:"serverId"`
}

var argValidator = newArgValidator()

func newArgValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// decode unmarshals args into T and validates it. Missing args decode as
// the zero value so argument-less operations accept an empty body.
func decode[T any](args json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return v, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}

	if err := argValidator.Struct(&v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return v, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		problems := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			if fe.Tag() == "required" {
				problems = append(problems, fe.Field()+" is required")
			} else {
				problems = append(problems, fmt.Sprintf("%s is not valid (%s)", fe.Field(), fe.Tag()))
			}
		}
		return v, fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
	}
	return v, nil
}

// server loads a server that is about to be called
func (s *Service) server(id string) (*types.Server, error) {
	srv, err := s.deps.Servers.Get(id)
	if err != nil {
		return nil, err
	}
	if srv.Password == "" {
		return nil, errors.New(syncer.MsgPasswordUnreadable)
	}
	return srv, nil
}

// Servers

func (s *Service) getServers(_ context.Context, _ json.RawMessage) (any, error) {
	servers, err := s.deps.Servers.List()
	if err != nil {
		return nil, err
	}
	if servers == nil {
		servers = []*types.Server{}
	}
	return servers, nil
}

func (s *Service) saveServer(_ context.Context, args json.RawMessage) (any, error) {
	a, err := decode[serverArgs](args)
	if err != nil {
		return nil, err
	}
	if a.Server == nil {
		return nil, fmt.Errorf("%w: server is required", ErrInvalidArguments)
	}
	return s.deps.Servers.Save(a.Server)
}

func (s *Service) deleteServer(_ context.Context, args json.RawMessage) (any, error) {
	a, err := decode[idArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Servers.Delete(a.ID)
}

// TestConnectionResult is the outcome of testConnection
type TestConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Version string `json:"version,omitempty"`
}

// testConnection probes unsaved credentials once. Nothing is stored.
func (s *Service) testConnection(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[connectionArgs](args)
	if err != nil {
		return nil, err
	}

	srv := &types.Server{
		Host:     strings.TrimSpace(a.Host),
		Username: strings.TrimSpace(a.Username),
		Password: a.Password,
	}
	result := health.NewApplianceChecker(s.deps.Appliance, srv).Check(ctx)
	if !result.Healthy {
		return &TestConnectionResult{Error: result.Message}, nil
	}
	return &TestConnectionResult{
		Success: true,
		Message: result.Message,
		Version: result.Version,
	}, nil
}

func (s *Service) getServerHealth(_ context.Context, _ json.RawMessage) (any, error) {
	if s.deps.Monitor == nil {
		return map[string]health.Status{}, nil
	}
	return s.deps.Monitor.Snapshot(), nil
}

// Rules

func (s *Service) refreshServerRules(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[refreshArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.Refresh(ctx, a.ServerID, a.Force), nil
}

func (s *Service) refreshAllServers(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[refreshAllArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.RefreshAll(ctx, a.Force), nil
}

func (s *Service) getServerRules(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[serverIDArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.GetRules(ctx, a.ServerID), nil
}

func (s *Service) setRules(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[rulesArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.SetRules(ctx, a.ServerID, a.Rules), nil
}

func (s *Service) addRule(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[ruleArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.AddRule(ctx, a.ServerID, a.Rule), nil
}

func (s *Service) removeRule(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[ruleArgs](args)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.RemoveRule(ctx, a.ServerID, a.Rule), nil
}

func (s *Service) clearCache(_ context.Context, args json.RawMessage) (any, error) {
	a, err := decode[clearCacheArgs](args)
	if err != nil {
		return nil, err
	}

	if a.ServerID == "" {
		if err := s.deps.Cache.ClearAll(); err != nil {
			return nil, err
		}
		s.deps.Broker.Publish(&events.Event{Type: events.EventCacheCleared})
		return true, nil
	}

	existed, err := s.deps.Cache.Clear(a.ServerID)
	if err != nil {
		return nil, err
	}
	if existed {
		s.deps.Broker.Publish(&events.Event{Type: events.EventCacheCleared, ServerID: a.ServerID})
	}
	return existed, nil
}

// Settings

func (s *Service) getSettings(_ context.Context, _ json.RawMessage) (any, error) {
	return s.deps.Settings.GetSettings()
}

func (s *Service) saveSettings(_ context.Context, args json.RawMessage) (any, error) {
	a, err := decode[settingsArgs](args)
	if err != nil {
		return nil, err
	}

	settings := *a.Settings
	settings.Normalize()
	if err := s.deps.Settings.PutSettings(settings); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}

	s.deps.Broker.Publish(&events.Event{Type: events.EventSettingsSaved})
	return settings, nil
}

// Appliance passthrough

func (s *Service) getStatus(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[serverIDArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	return s.deps.Appliance.Status(ctx, srv)
}

func (s *Service) getFilteringStatus(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[serverIDArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	return s.deps.Appliance.FilteringStatus(ctx, srv)
}

func (s *Service) getStats(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[serverIDArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	return s.deps.Appliance.Stats(ctx, srv)
}

func (s *Service) getQueryLog(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[queryLogArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	return s.deps.Appliance.QueryLog(ctx, srv, a.Limit)
}

func (s *Service) checkHost(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[checkHostArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	return s.deps.Appliance.CheckHost(ctx, srv, a.Name)
}

func (s *Service) toggleProtection(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[protectionArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Appliance.SetProtection(ctx, srv, a.Enabled); err != nil {
		return nil, err
	}
	return a.Enabled, nil
}

func (s *Service) addFilterURL(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[filterURLArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = a.URL
	}
	if err := s.deps.Appliance.AddFilterURL(ctx, srv, name, a.URL, a.Whitelist); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Service) removeFilterURL(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[filterURLArgs](args)
	if err != nil {
		return nil, err
	}
	srv, err := s.server(a.ServerID)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Appliance.RemoveFilterURL(ctx, srv, a.URL, a.Whitelist); err != nil {
		return nil, err
	}
	return true, nil
}

// Message turns an operation error into the short string shown to users
func Message(err error) string {
	var verr *credentials.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, storage.ErrNotFound):
		return syncer.MsgServerNotFound
	default:
		return err.Error()
	}
}

// errNoResolver is returned by dnsLookup when the process runs without one
var errNoResolver = errors.New("DNS lookups are not enabled")

func (s *Service) dnsLookup(ctx context.Context, args json.RawMessage) (any, error) {
	a, err := decode[lookupArgs](args)
	if err != nil {
		return nil, err
	}
	if s.deps.Resolver == nil {
		return nil, errNoResolver
	}
	srv, err := s.deps.Servers.Get(a.ServerID)
	if err != nil {
		return nil, err
	}
	return s.deps.Resolver.Lookup(ctx, srv, a.Name, a.Type)
}
