package transfer

import (
	"context"

	"github.com/grovetools/remit/pkg/browser"
	"github.com/grovetools/remit/pkg/sessions"
)

// Page is the element-interaction capability the flow drives. Selectors
// starting with '/' or '(' are XPath, everything else is CSS.
type Page interface {
	Exists(ctx context.Context, selector string) (bool, error)
	SetValue(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	Attribute(ctx context.Context, selector, name string) (string, error)
	FillInputsFromLabels(ctx context.Context, containerSelector string) (int, error)
	Location(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Source(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	PressEnter(ctx context.Context) error
}

// Control is an attached control target.
type Control struct {
	PID   int
	Port  int
	Token string
	Page  Page

	// ProfileDir is the throwaway browser profile to remove with the target.
	ProfileDir string

	// Detach drops the connection and leaves the target running.
	Detach func() error
	// Release terminates the target.
	Release func(ctx context.Context) error
}

func (c *Control) detach() {
	if c != nil && c.Detach != nil {
		_ = c.Detach()
	}
}

func (c *Control) release(ctx context.Context) {
	if c != nil && c.Release != nil {
		_ = c.Release(ctx)
	}
}

// Driver produces controls: a fresh one, or the one recorded in a session.
type Driver interface {
	Launch(ctx context.Context) (*Control, error)
	Reattach(ctx context.Context, rec *sessions.Record) (*Control, error)
}

// BrowserDriver drives real Chrome/Chromium targets.
type BrowserDriver struct {
	launcher *browser.Launcher
	locator  *browser.Locator
}

// NewBrowserDriver combines a launcher and a locator.
func NewBrowserDriver(launcher *browser.Launcher, locator *browser.Locator) *BrowserDriver {
	return &BrowserDriver{launcher: launcher, locator: locator}
}

func (d *BrowserDriver) Launch(ctx context.Context) (*Control, error) {
	t, err := d.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	return fromTarget(t), nil
}

func (d *BrowserDriver) Reattach(ctx context.Context, rec *sessions.Record) (*Control, error) {
	t, err := d.locator.Reattach(ctx, rec)
	if err != nil {
		return nil, err
	}
	return fromTarget(t), nil
}

func fromTarget(t *browser.Target) *Control {
	return &Control{
		PID:        t.PID,
		Port:       t.Port,
		Token:      t.Token(),
		Page:       t.Page,
		ProfileDir: t.ProfileDir,
		Detach:     t.Detach,
		Release:    t.Release,
	}
}
