package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/remit/config"
	"github.com/grovetools/remit/logging"
	"github.com/grovetools/remit/pkg/banks"
	"github.com/grovetools/remit/pkg/sessions"
	"github.com/sirupsen/logrus"
)

// fakePage is an in-memory page. Clicking an element can reveal others,
// which is how each test scripts a bank's screens.
type fakePage struct {
	mu       sync.Mutex
	present  map[string]bool
	classes  map[string]string
	texts    map[string]string
	values   map[string]string
	clicks   []string
	onClick  map[string]func(p *fakePage)
	location string
	source   string
	enters   int
	labels   int
}

func newFakePage() *fakePage {
	return &fakePage{
		present: make(map[string]bool),
		classes: make(map[string]string),
		texts:   make(map[string]string),
		values:  make(map[string]string),
		onClick: make(map[string]func(p *fakePage)),
		source:  "<html><body><p>Bem-vindo</p></body></html>",
	}
}

// show must be called with p.mu held or before the page is in use.
func (p *fakePage) show(selectors ...string) {
	for _, s := range selectors {
		p.present[s] = true
	}
}

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.present[selector], nil
}

func (p *fakePage) SetValue(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return fmt.Errorf("%s: no element", selector)
	}
	p.values[selector] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.present[selector] {
		return fmt.Errorf("%s: no element", selector)
	}
	p.clicks = append(p.clicks, selector)
	if fn := p.onClick[selector]; fn != nil {
		fn(p)
	}
	return nil
}

func (p *fakePage) Text(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[selector], nil
}

func (p *fakePage) Attribute(_ context.Context, selector, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name != "class" {
		return "", nil
	}
	return p.classes[selector], nil
}

func (p *fakePage) FillInputsFromLabels(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels++
	return 2, nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = url
	return nil
}

func (p *fakePage) Source(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source, nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (p *fakePage) PressEnter(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enters++
	return nil
}

func (p *fakePage) value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

func (p *fakePage) clicked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

var testBank = banks.Bank{
	ID:       "testbank",
	Name:     "Test Bank",
	LoginURL: "https://bank.test/login",
	Selectors: banks.Selectors{
		UsernameField:        "#user",
		PasswordField:        "#pass",
		LoginButton:          "#login",
		TransferMenu:         "#transfers",
		IbanField:            "#iban",
		AmountField:          "#amount",
		DescriptionField:     "#desc",
		BeneficiaryNameField: "#beneficiary",
		ConfirmButton:        "#confirm",
		OTPInputField:        "#otp",
		OTPValidationButton:  "#validate",
		SuccessMessage:       ".result",
	},
}

// bankScript describes how the scripted bank behaves after confirm.
type bankScript struct {
	otp         bool
	resultClass string
	resultText  string
	noResult    bool
}

// scriptedPage builds a page that walks login -> transfers -> form -> confirm
// -> (otp ->) result.
func scriptedPage(s bankScript) *fakePage {
	p := newFakePage()
	if s.resultClass == "" {
		s.resultClass = "alert alert-success"
	}
	if s.resultText == "" {
		s.resultText = "TRANSFERÊNCIA EFECTUADA"
	}
	showResult := func(p *fakePage) {
		if s.noResult {
			return
		}
		p.show(".result")
		p.classes[".result"] = s.resultClass
		p.texts[".result"] = s.resultText
	}

	p.show("#user", "#pass", "#login")
	p.onClick["#login"] = func(p *fakePage) { p.show("#transfers") }
	p.onClick["#transfers"] = func(p *fakePage) { p.show("#iban", "#amount", "#desc", "#beneficiary", "#confirm") }
	p.onClick["#confirm"] = func(p *fakePage) {
		if s.otp {
			p.show("#otp", "#validate")
			p.location = "https://bank.test/transfer/otp"
			return
		}
		showResult(p)
	}
	p.onClick["#validate"] = showResult
	return p
}

// fakeDriver hands out scripted pages and remembers which pids were released.
type fakeDriver struct {
	mu         *sync.Mutex
	script     bankScript
	nextPID    int
	pages      map[int]*fakePage
	launched   []*fakePage
	launches   int
	reattaches int
	released   []int
	detached   []int
	reattachF  func(rec *sessions.Record) error
}

func newFakeDriver(s bankScript) *fakeDriver {
	return &fakeDriver{mu: &sync.Mutex{}, script: s, nextPID: 1000, pages: make(map[int]*fakePage)}
}

func (d *fakeDriver) control(pid int, page *fakePage) *Control {
	return &Control{
		PID:   pid,
		Port:  9300 + pid%100,
		Token: fmt.Sprintf("TARGET-%d", pid),
		Page:  page,

		ProfileDir: fmt.Sprintf("/profiles/profile-%d", pid),
		Detach: func() error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.detached = append(d.detached, pid)
			return nil
		},
		Release: func(context.Context) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.released = append(d.released, pid)
			delete(d.pages, pid)
			return nil
		},
	}
}

func (d *fakeDriver) Launch(context.Context) (*Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	d.nextPID++
	page := scriptedPage(d.script)
	d.pages[d.nextPID] = page
	d.launched = append(d.launched, page)
	return d.control(d.nextPID, page), nil
}

func (d *fakeDriver) Reattach(_ context.Context, rec *sessions.Record) (*Control, error) {
	d.mu.Lock()
	d.reattaches++
	d.mu.Unlock()
	if d.reattachF != nil {
		if err := d.reattachF(rec); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	page, ok := d.pages[rec.ControlTargetPID]
	if !ok {
		return nil, fmt.Errorf("no browser with pid %d", rec.ControlTargetPID)
	}
	return d.control(rec.ControlTargetPID, page), nil
}

// share makes another driver see the browsers of d, the way a second process
// sees the same running browsers.
func (d *fakeDriver) share() *fakeDriver {
	return &fakeDriver{mu: d.mu, script: d.script, nextPID: 5000, pages: d.pages}
}

func (d *fakeDriver) page(pid int) *fakePage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[pid]
}

func (d *fakeDriver) wasReleased(pid int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.released {
		if p == pid {
			return true
		}
	}
	return false
}

func (d *fakeDriver) wasDetached(pid int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.detached {
		if p == pid {
			return true
		}
	}
	return false
}

func testConfig(screenshots string) *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Timeouts = config.TimeoutsConfig{
		Field:        300 * time.Millisecond,
		OTPDetect:    100 * time.Millisecond,
		Dialog:       30 * time.Millisecond,
		Verify:       200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
	cfg.OTP = config.OTPConfig{Wait: 5 * time.Second, PollInterval: 20 * time.Millisecond}
	cfg.Screenshots.Dir = screenshots
	return cfg
}

func testRequest() Request {
	return Request{
		Bank:         testBank,
		Username:     "alice",
		Password:     "s3cret",
		ReceiverIBAN: "AO06000600000100037131174",
		Amount:       250000,
		Description:  "Renda",
	}
}

func (d *fakeDriver) counts() (launches, reattaches int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches, d.reattaches
}

func (d *fakeDriver) lastPage(t *testing.T) *fakePage {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.launched) == 0 {
		t.Fatal("no page launched")
	}
	return d.launched[len(d.launched)-1]
}

func newHarnessLogger() *logrus.Entry {
	return logging.NewLogger("transfer")
}
