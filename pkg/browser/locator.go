package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/cdp"
	"github.com/grovetools/remit/pkg/process"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const debugPortFlag = "remote-debugging-port"

// Endpoint is a responsive DevTools endpoint owned by a control target process.
type Endpoint struct {
	PID     int
	Port    int
	Targets []cdp.Target
}

// Addr is the host:port of the endpoint.
func (e *Endpoint) Addr() string {
	return cdp.Endpoint(e.Port)
}

// Locator turns a live control target pid into an attached Target.
type Locator struct {
	ports        []int
	probeTimeout time.Duration
	strict       bool

	alive   func(pid int) bool
	cmdline func(pid int) ([]string, error)
	attach  func(ctx context.Context, addr string, page cdp.Target) (Page, error)
	logger  *logrus.Entry
}

// NewLocator creates a locator using the configured well-known ports.
func NewLocator(cfg config.BrowserConfig) *Locator {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Locator{
		ports:        append([]int(nil), cfg.DebugPorts...),
		probeTimeout: timeout,
		strict:       cfg.StrictLocation,
		alive:        process.IsProcessAlive,
		cmdline:      process.CmdlineArgs,
		attach:       attachPage,
		logger:       logging.NewLogger("browser"),
	}
}

// launchPort reads --remote-debugging-port from the pid's launch arguments.
func (l *Locator) launchPort(pid int) (int, bool) {
	args, err := l.cmdline(pid)
	if err != nil {
		return 0, false
	}
	v, ok := process.FlagValue(args, debugPortFlag)
	if !ok {
		return 0, false
	}
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// DiscoverEndpoint finds the DevTools endpoint of pid. The recorded port and
// the configured ports are probed in parallel, each bounded by the probe
// timeout; the first responder in candidate order wins. When the pid's launch
// arguments name a port, only that port is accepted so that a different
// browser on a well-known port is never mistaken for ours. If no candidate
// responds, the launch-argument port is probed on its own.
func (l *Locator) DiscoverEndpoint(ctx context.Context, pid, recordedPort int) (*Endpoint, error) {
	owned, haveOwned := l.launchPort(pid)

	candidates := make([]int, 0, len(l.ports)+1)
	seen := make(map[int]bool)
	for _, p := range append([]int{recordedPort}, l.ports...) {
		if p <= 0 || seen[p] {
			continue
		}
		seen[p] = true
		candidates = append(candidates, p)
	}

	results := make([][]cdp.Target, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, port := range candidates {
		g.Go(func() error {
			targets, err := l.probe(gctx, port)
			if err != nil {
				l.logger.WithField("port", port).Debug("No debug endpoint")
				return nil
			}
			results[i] = targets
			return nil
		})
	}
	_ = g.Wait()

	for i, port := range candidates {
		if results[i] == nil {
			continue
		}
		if haveOwned && port != owned {
			l.logger.WithFields(logrus.Fields{"port": port, "pid": pid}).Debug("Endpoint belongs to another browser")
			continue
		}
		return &Endpoint{PID: pid, Port: port, Targets: results[i]}, nil
	}

	if haveOwned && !seen[owned] {
		if targets, err := l.probe(ctx, owned); err == nil {
			return &Endpoint{PID: pid, Port: owned, Targets: targets}, nil
		}
	}
	return nil, fmt.Errorf("no debug endpoint found for pid %d (probed %v)", pid, candidates)
}

func (l *Locator) probe(ctx context.Context, port int) ([]cdp.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, l.probeTimeout)
	defer cancel()
	targets, err := cdp.ListTargets(ctx, cdp.Endpoint(port))
	if err != nil {
		return nil, err
	}
	if targets == nil {
		targets = []cdp.Target{}
	}
	return targets, nil
}

// Attach binds a new control connection to the page identified by token, or
// to the first page of the endpoint when the token is unknown. It never
// starts a browser.
func (l *Locator) Attach(ctx context.Context, ep *Endpoint, token string) (*Target, error) {
	var page cdp.Target
	found := false
	for _, t := range ep.Targets {
		if token != "" && t.ID == token && t.IsPage() {
			page, found = t, true
			break
		}
	}
	if !found {
		page, found = cdp.FirstPage(ep.Targets)
	}
	if !found {
		return nil, fmt.Errorf("endpoint %s has no page target", ep.Addr())
	}
	if token != "" && page.ID != token {
		l.logger.WithFields(logrus.Fields{"token": token, "target": page.ID}).Warn("Recorded page is gone, attaching to first page")
	}

	p, err := l.attach(ctx, ep.Addr(), page)
	if err != nil {
		return nil, err
	}
	return &Target{PID: ep.PID, Port: ep.Port, Page: p}, nil
}

// VerifyLocation compares the page location with the one recorded at hand-off.
// A containment match returns true. On mismatch the page is navigated to the
// expected location and false is returned; the caller decides whether that
// is fatal.
func (l *Locator) VerifyLocation(ctx context.Context, t *Target, expected string) (bool, error) {
	if expected == "" {
		return true, nil
	}
	current, err := t.Page.Location(ctx)
	if err != nil {
		return false, fmt.Errorf("read current location: %w", err)
	}
	if strings.Contains(current, expected) {
		return true, nil
	}

	l.logger.WithFields(logrus.Fields{
		"expected": expected,
		"current":  current,
	}).Warn("Control target is not at the recorded location")
	if l.strict {
		return false, nil
	}
	if err := t.Page.Navigate(ctx, expected); err != nil {
		l.logger.WithError(err).Warn("Failed to navigate back to recorded location")
	}
	return false, nil
}

// Reattach finds and attaches to the control target recorded in rec.
// It returns ControlTargetDead when the pid is gone and ReattachFailed when
// the endpoint cannot be found or attached.
func (l *Locator) Reattach(ctx context.Context, rec *sessions.Record) (*Target, error) {
	pid := rec.ControlTargetPID
	if !l.alive(pid) {
		return nil, errors.ControlTargetDead(pid)
	}

	ep, err := l.DiscoverEndpoint(ctx, pid, rec.DebugPort)
	if err != nil {
		return nil, errors.ReattachFailed(pid, err)
	}
	target, err := l.Attach(ctx, ep, rec.ControlSessionToken)
	if err != nil {
		return nil, errors.ReattachFailed(pid, err)
	}
	target.ProfileDir = rec.ProfileDir

	matched, err := l.VerifyLocation(ctx, target, rec.CurrentLocation)
	if err != nil {
		_ = target.Detach()
		return nil, errors.ReattachFailed(pid, err)
	}
	if !matched && l.strict {
		_ = target.Detach()
		return nil, errors.ReattachFailed(pid, fmt.Errorf("control target is not at %s", rec.CurrentLocation))
	}

	l.logger.WithFields(logrus.Fields{
		"pid":        pid,
		"port":       ep.Port,
		"session_id": rec.SessionID,
	}).Info("Reattached to control target")
	return target, nil
}
