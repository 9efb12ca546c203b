// Package browser drives a real Chrome session over the DevTools protocol.
// The web app renders listings through virtual scrolling, so the driver only
// navigates and authenticates; the actual item data comes from intercepted
// network traffic (see intercept.go).
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"neatsync/internal/domain"
)

const (
	appURL = "https://app.neat.com/"

	// The app lands on a /files/folders route once the session is live.
	loggedInMarker = "files/folders"

	emailSelector    = `input[type="email"], input[name="username"]`
	passwordSelector = `input[type="password"]`
	submitSelector   = `button[type="submit"]`

	cabinetSelector    = `[data-testid="sidebar-item-mycabinet"]`
	folderItemSelector = `[data-testid^="mycabinet-"]`
	toggleSelector     = `[data-testid="toggle-folder-open"]`
	toggleOpenClass    = "is-open"
	paginationSelector = `[data-testid="pagination-button"]`

	// How long a human gets to solve a CAPTCHA before the run gives up.
	captchaWait = 60 * time.Second
	// Login itself can be slow (redirects, SSO roundtrips).
	loginWait = 90 * time.Second

	pollInterval = 500 * time.Millisecond
)

var captchaSelectors = []string{
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`[class*="captcha"]`,
}

// Driver implements domain.SessionDriver on top of go-rod. It is not safe for
// concurrent use; the backup walk is strictly sequential.
type Driver struct {
	log         *zap.SugaredLogger
	status      domain.StatusFunc
	headless    bool
	waitTimeout time.Duration

	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page

	pageSizeSet bool

	shutdownOnce sync.Once
	shutdownErr  error
}

func NewDriver(log *zap.SugaredLogger, status domain.StatusFunc, headless bool, waitTimeout time.Duration) *Driver {
	return &Driver{
		log:         log,
		status:      status,
		headless:    headless,
		waitTimeout: waitTimeout,
	}
}

// start launches Chrome and opens the app page. Called lazily from Login so a
// construction failure surfaces as a login (fatal) error.
func (d *Driver) start(ctx context.Context) error {
	if d.browser != nil {
		return nil
	}

	d.launch = launcher.New().Headless(d.headless)
	controlURL, err := d.launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("open page: %w", err)
	}

	d.browser = browser
	d.page = page
	d.log.Debugw("chrome started", "headless", d.headless)
	return nil
}

func (d *Driver) Login(ctx context.Context, username, password string) error {
	if err := d.start(ctx); err != nil {
		return err
	}

	page := d.page.Context(ctx)
	if err := page.Timeout(loginWait).Navigate(appURL); err != nil {
		return fmt.Errorf("navigate to app: %w", err)
	}
	if err := page.Timeout(d.waitTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("wait for app page: %w", err)
	}

	if d.loggedIn() {
		d.status("Existing session still active, skipping login", domain.LevelInfo)
		return nil
	}

	if err := d.fillCredentials(page, username, password); err != nil {
		return err
	}

	if d.captchaPresent() {
		d.status("CAPTCHA detected, please solve it in the browser window", domain.LevelWarning)
		if err := d.awaitCaptcha(ctx); err != nil {
			return err
		}
	}

	if err := d.awaitLoggedIn(ctx); err != nil {
		return err
	}
	d.status("Logged in", domain.LevelSuccess)
	return nil
}

func (d *Driver) fillCredentials(page *rod.Page, username, password string) error {
	email, err := page.Timeout(d.waitTimeout).Element(emailSelector)
	if err != nil {
		return fmt.Errorf("locate username field: %w", err)
	}
	if err := email.Input(username); err != nil {
		return fmt.Errorf("enter username: %w", err)
	}

	pass, err := page.Timeout(d.waitTimeout).Element(passwordSelector)
	if err != nil {
		return fmt.Errorf("locate password field: %w", err)
	}
	if err := pass.Input(password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}

	submit, err := page.Timeout(d.waitTimeout).Element(submitSelector)
	if err != nil {
		return fmt.Errorf("locate submit button: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		// Overlays can swallow the synthetic mouse event; a DOM click does not
		// care about element visibility.
		if _, evalErr := submit.Eval(`() => this.click()`); evalErr != nil {
			return fmt.Errorf("submit login form: %w", err)
		}
	}
	return nil
}

func (d *Driver) loggedIn() bool {
	info, err := d.page.Info()
	if err != nil {
		return false
	}
	return strings.Contains(info.URL, loggedInMarker)
}

func (d *Driver) captchaPresent() bool {
	for _, sel := range captchaSelectors {
		if has, _, err := d.page.Has(sel); err == nil && has {
			return true
		}
	}
	return false
}

// awaitCaptcha polls until the challenge disappears or the user gives up.
func (d *Driver) awaitCaptcha(ctx context.Context) error {
	deadline := time.Now().Add(captchaWait)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !d.captchaPresent() || d.loggedIn() {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("captcha not solved within %s", captchaWait)
			}
		}
	}
}

func (d *Driver) awaitLoggedIn(ctx context.Context) error {
	deadline := time.Now().Add(loginWait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.loggedIn() {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("login not confirmed within %s (wrong credentials?)", loginWait)
			}
		}
	}
}

func (d *Driver) TopLevelFolders(ctx context.Context) ([]domain.FolderHandle, error) {
	page := d.page.Context(ctx)

	cabinet, err := page.Timeout(d.waitTimeout).Element(cabinetSelector)
	if err != nil {
		return nil, fmt.Errorf("locate cabinet in sidebar: %w", err)
	}
	if err := d.ensureExpanded(cabinet); err != nil {
		return nil, fmt.Errorf("expand cabinet: %w", err)
	}

	items, err := page.Timeout(d.waitTimeout).Elements(folderItemSelector)
	if err != nil {
		return nil, fmt.Errorf("list sidebar folders: %w", err)
	}
	return d.toHandles(items, "")
}

func (d *Driver) SubfolderHandles(ctx context.Context, parent domain.FolderHandle) ([]domain.FolderHandle, error) {
	page := d.page.Context(ctx)

	el, err := page.Timeout(d.waitTimeout).Element(parent.Selector)
	if err != nil {
		return nil, fmt.Errorf("locate folder %q: %w", parent.Name, err)
	}
	if err := d.ensureExpanded(el); err != nil {
		d.log.Debugw("folder has no expandable children", "folder", parent.Name, "err", err)
		return nil, nil
	}

	nested, err := el.Elements(folderItemSelector)
	if err != nil {
		return nil, fmt.Errorf("list subfolders of %q: %w", parent.Name, err)
	}
	return d.toHandles(nested, parent.ID)
}

// ensureExpanded clicks the element's open/close toggle unless it already
// carries the open marker class. Elements without a toggle are leaves.
func (d *Driver) ensureExpanded(el *rod.Element) error {
	toggle, err := el.Element(toggleSelector)
	if err != nil {
		return err
	}
	class, err := toggle.Attribute("class")
	if err == nil && class != nil && strings.Contains(*class, toggleOpenClass) {
		return nil
	}
	if _, err := toggle.Eval(`() => this.click()`); err != nil {
		return err
	}
	// Give the sidebar animation a beat to attach the children.
	time.Sleep(pollInterval)
	return nil
}

func (d *Driver) toHandles(items rod.Elements, parentID string) ([]domain.FolderHandle, error) {
	handles := make([]domain.FolderHandle, 0, len(items))
	for _, it := range items {
		testID, err := it.Attribute("data-testid")
		if err != nil || testID == nil || *testID == "" {
			continue
		}
		if *testID == parentID {
			continue
		}
		name, err := it.Text()
		if err != nil {
			name = ""
		}
		handles = append(handles, domain.FolderHandle{
			ID:       *testID,
			Name:     strings.TrimSpace(name),
			Selector: fmt.Sprintf(`[data-testid=%q]`, *testID),
		})
	}
	return handles, nil
}

func (d *Driver) OpenFolder(ctx context.Context, h domain.FolderHandle) error {
	page := d.page.Context(ctx)

	el, err := page.Timeout(d.waitTimeout).Element(h.Selector)
	if err != nil {
		return fmt.Errorf("locate folder %q: %w", h.Name, err)
	}
	if err := el.ScrollIntoView(); err != nil {
		d.log.Debugw("scroll into view failed", "folder", h.Name, "err", err)
	}
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("open folder %q: %w", h.Name, err)
	}

	if !d.pageSizeSet {
		d.pageSizeSet = true
		if err := d.maximizePageSize(page); err != nil {
			d.status("Could not raise the listing page size, large folders may be slow", domain.LevelWarning)
			d.log.Debugw("page size selection failed", "err", err)
		}
	}
	return nil
}

// maximizePageSize bumps the per-page item count to the largest choice the app
// offers. Attempted once per run; the selection is sticky across folders.
func (d *Driver) maximizePageSize(page *rod.Page) error {
	btn, err := page.Timeout(d.waitTimeout).Element(paginationSelector)
	if err != nil {
		return fmt.Errorf("locate pagination control: %w", err)
	}
	if _, err := btn.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("open pagination menu: %w", err)
	}
	opt, err := page.Timeout(d.waitTimeout).ElementR(`li, button, [role="option"]`, `^100$`)
	if err != nil {
		return fmt.Errorf("locate page size option: %w", err)
	}
	if _, err := opt.Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("select page size: %w", err)
	}
	return nil
}

// AuthenticatedClient snapshots the live session's cookies into a plain
// http.Client so downloads can bypass the browser entirely.
func (d *Driver) AuthenticatedClient(ctx context.Context) (*http.Client, error) {
	if d.page == nil {
		return nil, fmt.Errorf("no browser session")
	}

	res, err := proto.NetworkGetCookies{}.Call(d.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("read session cookies: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	for _, c := range res.Cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		u := &url.URL{Scheme: "https", Host: host, Path: "/"}
		jar.SetCookies(u, []*http.Cookie{{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}})
	}

	return &http.Client{Jar: jar}, nil
}

func (d *Driver) Shutdown() error {
	d.shutdownOnce.Do(func() {
		if d.browser != nil {
			d.shutdownErr = d.browser.Close()
		}
		if d.launch != nil {
			d.launch.Cleanup()
		}
	})
	return d.shutdownErr
}
