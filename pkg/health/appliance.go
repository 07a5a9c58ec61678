package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/types"
)

// Prober makes a single status call to an appliance
type Prober interface {
	Probe(ctx context.Context, srv *types.Server) (*client.Status, error)
}

// ApplianceChecker checks that an appliance answers its status endpoint
// with the configured credentials
type ApplianceChecker struct {
	prober  Prober
	server  *types.Server
	timeout time.Duration
}

// NewApplianceChecker creates a checker for srv
func NewApplianceChecker(prober Prober, srv *types.Server) *ApplianceChecker {
	return &ApplianceChecker{
		prober:  prober,
		server:  srv,
		timeout: DefaultConfig().Timeout,
	}
}

// WithTimeout sets the probe timeout
func (a *ApplianceChecker) WithTimeout(timeout time.Duration) *ApplianceChecker {
	a.timeout = timeout
	return a
}

// Check performs the appliance health check
func (a *ApplianceChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	status, err := a.prober.Probe(ctx, a.server)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   describe(err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	message := "Connected"
	if status.Version != "" {
		message = fmt.Sprintf("Connected to AdGuard Home %s", status.Version)
	}
	if !status.Running {
		message += " (DNS server not running)"
	}

	return Result{
		Healthy:   true,
		Message:   message,
		Version:   status.Version,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (a *ApplianceChecker) Type() CheckType {
	return CheckTypeAppliance
}

// describe turns a probe error into a message a user can act on
func describe(err error) string {
	var httpErr *client.HTTPError
	switch {
	case errors.As(err, &httpErr) && (httpErr.StatusCode == 401 || httpErr.StatusCode == 403):
		return "Authentication failed: check username and password"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("Appliance answered HTTP %d", httpErr.StatusCode)
	case errors.Is(err, gate.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return "Connection timed out"
	case errors.Is(err, client.ErrMalformedResponse):
		return "Host answered but is not an AdGuard Home control API"
	default:
		return fmt.Sprintf("Connection failed: %v", err)
	}
}
