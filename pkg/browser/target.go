// Package browser launches the control target and finds it again from a
// later, unrelated process.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/remit/pkg/cdp"
	"github.com/grovetools/remit/pkg/paths"
	"github.com/grovetools/remit/pkg/process"
)

// Page is an attached page of the control target.
type Page interface {
	TargetID() string
	Close() error
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

// attachPage is the default way of binding to a page of an endpoint.
func attachPage(ctx context.Context, addr string, page cdp.Target) (Page, error) {
	return cdp.Attach(ctx, addr, page)
}

// Target is an attached control target: the browser process, the DevTools
// port it listens on, and the page being driven.
type Target struct {
	PID  int
	Port int
	Page Page

	// ProfileDir is set when the profile was created for this launch and
	// has to be removed with the browser.
	ProfileDir string
}

// Token is the opaque handle stored in a session record to find the same
// page on reattach.
func (t *Target) Token() string {
	if t == nil || t.Page == nil {
		return ""
	}
	return t.Page.TargetID()
}

// Detach closes the control connection and leaves the browser running, so
// another process can attach to it later.
func (t *Target) Detach() error {
	if t == nil || t.Page == nil {
		return nil
	}
	return t.Page.Close()
}

// Release detaches, terminates the browser process group and removes the
// throwaway profile.
func (t *Target) Release(ctx context.Context) error {
	if t == nil {
		return nil
	}
	_ = t.Detach()
	var err error
	if t.PID > 0 {
		grace := 5 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < grace {
				grace = left
			}
		}
		err = process.Terminate(t.PID, grace)
	}
	if rmErr := RemoveProfile(t.ProfileDir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// RemoveProfile deletes a profile directory created by Launch. Paths outside
// the profiles directory are refused, so a hand-edited session record cannot
// point it elsewhere.
func RemoveProfile(dir string) error {
	if dir == "" {
		return nil
	}
	root, err := filepath.Abs(paths.ProfilesDir())
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s: not under %s", dir, root)
	}
	return os.RemoveAll(abs)
}
