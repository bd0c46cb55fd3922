package browser

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/errors"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/cdp"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/pkg/process"
	"github.com/sirupsen/logrus"
)

// binaryCandidates are looked up on PATH when no binary is configured.
var binaryCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// Launcher starts fresh control targets.
type Launcher struct {
	cfg      config.BrowserConfig
	lookPath func(string) (string, error)
	attach   func(ctx context.Context, addr string, page cdp.Target) (Page, error)
	logger   *logrus.Entry
}

// NewLauncher creates a launcher for the configured browser.
func NewLauncher(cfg config.BrowserConfig) *Launcher {
	return &Launcher{
		cfg:      cfg,
		lookPath: exec.LookPath,
		attach:   attachPage,
		logger:   logging.NewLogger("browser"),
	}
}

func (l *Launcher) binary() (string, error) {
	if l.cfg.Binary != "" {
		return l.lookPath(l.cfg.Binary)
	}
	for _, name := range binaryCandidates {
		if path, err := l.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no Chrome or Chromium executable found on PATH (tried %v)", binaryCandidates)
}

// args builds the command line for a browser listening on port.
func (l *Launcher) args(port int, userDataDir string) []string {
	args := []string{
		"--" + debugPortFlag + "=" + strconv.Itoa(port),
		"--remote-allow-origins=*",
		"--user-data-dir=" + userDataDir,
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--window-size=1920,1080",
		"--disable-blink-features=AutomationControlled",
		"--no-first-run",
		"--no-default-browser-check",
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, l.cfg.ExtraArgs...)
	return append(args, "about:blank")
}

// Launch starts a browser in its own process group, waits for its DevTools
// endpoint and attaches to its first page. The browser outlives the calling
// process; call Target.Release to stop it.
func (l *Launcher) Launch(ctx context.Context) (*Target, error) {
	bin, err := l.binary()
	if err != nil {
		return nil, errors.BrowserLaunchFailed(l.cfg.Binary, err)
	}

	port, err := pickPort(l.cfg.DebugPorts)
	if err != nil {
		return nil, errors.BrowserLaunchFailed(bin, err)
	}

	userDataDir, ownProfile := l.cfg.UserDataDir, ""
	if userDataDir == "" {
		if err := os.MkdirAll(paths.ProfilesDir(), 0700); err != nil {
			return nil, errors.BrowserLaunchFailed(bin, err)
		}
		userDataDir, err = os.MkdirTemp(paths.ProfilesDir(), "profile-*")
		if err != nil {
			return nil, errors.BrowserLaunchFailed(bin, err)
		}
		ownProfile = userDataDir
	}
	fail := func(pid int, err error) (*Target, error) {
		if pid > 0 {
			_ = process.Terminate(pid, 2*time.Second)
		}
		_ = RemoveProfile(ownProfile)
		return nil, errors.BrowserLaunchFailed(bin, err)
	}

	cmd := exec.Command(bin, l.args(port, userDataDir)...)
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return fail(0, err)
	}
	pid := cmd.Process.Pid
	// Not waited on: the browser has to survive this process.
	_ = cmd.Process.Release()

	l.logger.WithFields(logrus.Fields{
		"pid":  pid,
		"port": port,
		"bin":  bin,
	}).Info("Launched control target")

	page, err := l.waitForPage(ctx, port)
	if err != nil {
		return fail(pid, err)
	}

	p, err := l.attach(ctx, cdp.Endpoint(port), page)
	if err != nil {
		return fail(pid, err)
	}
	return &Target{PID: pid, Port: port, Page: p, ProfileDir: ownProfile}, nil
}

func (l *Launcher) waitForPage(ctx context.Context, port int) (cdp.Target, error) {
	timeout := l.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := cdp.Endpoint(port)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if targets, err := cdp.ListTargets(ctx, addr); err == nil {
			if page, ok := cdp.FirstPage(targets); ok {
				return page, nil
			}
			if t, err := cdp.NewTarget(ctx, addr, "about:blank"); err == nil {
				return *t, nil
			}
		}
		select {
		case <-ctx.Done():
			return cdp.Target{}, fmt.Errorf("debug endpoint on port %d did not come up within %s", port, timeout)
		case <-ticker.C:
		}
	}
}

// pickPort returns the first of the configured ports nothing is listening
// on, so a later process can find the browser by probing the same list.
// When all of them are taken the kernel picks one.
func pickPort(ports []int) (int, error) {
	for _, port := range ports {
		if port <= 0 || port > 65535 {
			continue
		}
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return freePort()
}

// freePort asks the kernel for an unused local port.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate debug port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
