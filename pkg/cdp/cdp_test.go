package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevTools serves the HTTP half of a DevTools endpoint.
func fakeDevTools(t *testing.T, browserURL string) string {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	addr := strings.TrimPrefix(srv.URL, "http://")

	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Target{
			{ID: "worker", Type: "service_worker", URL: "https://bank.example/sw.js"},
			{ID: "PAGE1", Type: "page", URL: "https://bank.example/otp", WebSocketDebuggerURL: "ws://" + addr + "/devtools/page/PAGE1"},
		})
	})
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VersionInfo{Browser: "Chrome/120.0", WebSocketDebuggerURL: browserURL})
	})
	t.Cleanup(srv.Close)
	return addr
}

func TestListTargetsAndVersion(t *testing.T) {
	addr := fakeDevTools(t, "ws://127.0.0.1:1/devtools/browser/x")

	targets, err := ListTargets(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	page, ok := FirstPage(targets)
	require.True(t, ok)
	assert.Equal(t, "PAGE1", page.ID)

	info, err := Version(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "Chrome/120.0", info.Browser)
}

func TestListTargetsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := ListTargets(ctx, addr)
	assert.Error(t, err)
}

func TestFirstPageNone(t *testing.T) {
	_, ok := FirstPage([]Target{{Type: "page"}, {Type: "iframe", WebSocketDebuggerURL: "ws://x"}})
	assert.False(t, ok)
}

func TestAttachWithoutBrowserURL(t *testing.T) {
	addr := fakeDevTools(t, "")
	_, err := Attach(context.Background(), addr, Target{ID: "PAGE1", Type: "page"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no websocket url")
}

func TestAttachBrowserGone(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gone := ln.Addr().String()
	require.NoError(t, ln.Close())
	addr := fakeDevTools(t, "ws://"+gone+"/devtools/browser/x")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Attach(ctx, addr, Target{ID: "PAGE1", Type: "page"})
	assert.Error(t, err)
}

func TestIsXPath(t *testing.T) {
	assert.True(t, IsXPath("//input[@name='otp']"))
	assert.True(t, IsXPath("(//button)[2]"))
	assert.False(t, IsXPath("#btnConfirm"))
}

const otpForm = `<!doctype html><html><body>
<form id="f" onsubmit="document.getElementById('out').textContent = 'sent ' + document.getElementById('otp').value; return false;">
  <div id="grid"><label>A1</label><label>B2</label><input name="c0"><input name="c1"></div>
  <input id="otp" name="otp" data-kind="sms">
  <button id="confirm" type="submit">Confirm</button>
</form>
<p id="out"></p>
</body></html>`

// startChrome launches a headless browser for the integration tests.
// They run only with REMIT_CHROME_TESTS=1 and a Chrome binary on PATH.
func startChrome(t *testing.T) (string, Target) {
	t.Helper()
	if os.Getenv("REMIT_CHROME_TESTS") != "1" {
		t.Skip("set REMIT_CHROME_TESTS=1 to run against a real browser")
	}
	var bin string
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if p, err := exec.LookPath(name); err == nil {
			bin = p
			break
		}
	}
	if bin == "" {
		t.Skip("no Chrome or Chromium on PATH")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, otpForm)
	}))
	t.Cleanup(site.Close)

	cmd := exec.Command(bin,
		"--headless=new", "--no-sandbox", "--disable-gpu", "--no-first-run",
		"--remote-debugging-port="+strconv.Itoa(port),
		"--user-data-dir="+t.TempDir(),
		site.URL+"/otp")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	addr := Endpoint(port)
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		if targets, err := ListTargets(context.Background(), addr); err == nil {
			if page, ok := FirstPage(targets); ok && strings.HasPrefix(page.URL, site.URL) {
				return addr, page
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("browser did not come up")
	return "", Target{}
}

func TestPageAgainstChrome(t *testing.T) {
	addr, target := startChrome(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := Attach(ctx, addr, target)
	require.NoError(t, err)
	assert.Equal(t, target.ID, page.TargetID())

	loc, err := page.Location(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc, "/otp"))

	ok, err := page.Exists(ctx, "#otp")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = page.Exists(ctx, "//input[@name='otp']")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = page.Exists(ctx, "#missing")
	require.NoError(t, err)
	assert.False(t, ok)

	kind, err := page.Attribute(ctx, "#otp", "data-kind")
	require.NoError(t, err)
	assert.Equal(t, "sms", kind)

	filled, err := page.FillInputsFromLabels(ctx, "#grid")
	require.NoError(t, err)
	assert.Equal(t, 2, filled)
	_, err = page.FillInputsFromLabels(ctx, "#nogrid")
	assert.ErrorIs(t, err, ErrNoElement)

	require.NoError(t, page.SetValue(ctx, "#otp", "123456"))
	require.NoError(t, page.Click(ctx, "//button[@id='confirm']"))
	require.Eventually(t, func() bool {
		text, err := page.Text(ctx, "#out")
		return err == nil && text == "sent 123456"
	}, 5*time.Second, 100*time.Millisecond)

	err = page.Click(ctx, "#missing")
	assert.ErrorIs(t, err, ErrNoElement)

	html, err := page.Source(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `id="confirm"`)

	png, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.Greater(t, len(png), 8)

	// Closing drops the connection only; the page is still listed afterwards.
	require.NoError(t, page.Close())
	targets, err := ListTargets(context.Background(), addr)
	require.NoError(t, err)
	again, ok := FirstPage(targets)
	require.True(t, ok)
	assert.Equal(t, target.ID, again.ID)

	_, err = page.Location(ctx)
	assert.Error(t, err)

	// A later attach reaches the same page.
	page2, err := Attach(ctx, addr, again)
	require.NoError(t, err)
	defer page2.Close()
	require.NoError(t, page2.Navigate(ctx, strings.TrimSuffix(loc, "/otp")+"/next"))
	loc, err = page2.Location(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc, "/next"))
}
