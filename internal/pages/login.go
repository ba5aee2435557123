package pages

import (
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/logutil"
)

var (
	loginUsername     = BySelector("#username")
	loginPassword     = BySelector("#password")
	loginSubmit       = ByRole("button", "Sign In")
	loginInterstitial = ByRole("button", "Visit Site")
	loginErrorToast   = BySelector(`[data-sonner-toast][data-type="error"]`)
)

// LoginPage drives the sign-in screen.
type LoginPage struct {
	*Base
	log *slog.Logger
}

// NewLoginPage returns the sign-in page object bound to base's tab.
func NewLoginPage(base *Base) *LoginPage {
	return &LoginPage{Base: base, log: base.log.With("page", "login")}
}

// Goto opens the application root. Unauthenticated users are routed to the
// sign-in form from there.
func (p *LoginPage) Goto() error {
	return p.NavigateTo("/")
}

func (p *LoginPage) EnterUsername(username string) error {
	return p.fill(loginUsername, username)
}

func (p *LoginPage) EnterPassword(password string) error {
	return p.fill(loginPassword, password)
}

func (p *LoginPage) ClickSignIn() error {
	return p.click(loginSubmit)
}

// DismissInterstitial clicks through a tunnel warning page when one is
// shown and reports whether it was present. Absence is the normal case.
func (p *LoginPage) DismissInterstitial() bool {
	return p.AttemptOptionalStep("dismiss interstitial", func(timeout time.Duration) error {
		return p.Resolve(loginInterstitial).Click(playwright.LocatorClickOptions{
			Timeout: millis(timeout),
		})
	})
}

// Login signs in and waits for the dashboard. A Timeout error means the
// credentials were rejected or the redirect never happened.
func (p *LoginPage) Login(username, password string) error {
	p.log.Info("login", logutil.RedactAttrs("username", username, "password", password)...)

	p.DismissInterstitial()

	if err := p.EnterUsername(username); err != nil {
		return err
	}
	if err := p.EnterPassword(password); err != nil {
		return err
	}
	if err := p.ClickSignIn(); err != nil {
		return err
	}
	return p.WaitForURL(DashboardPattern, p.timeouts.Short)
}

// ErrorMessage returns the text of the error toast shown after a rejected
// sign-in, or a Timeout error when none appears.
func (p *LoginPage) ErrorMessage() (string, error) {
	toast := p.Resolve(loginErrorToast).First()
	if err := toast.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(p.timeouts.Short),
	}); err != nil {
		return "", waitError("login error toast", err)
	}
	text, err := toast.InnerText()
	if err != nil {
		return "", errs.Wrap(errs.Internal, "read login error toast", err)
	}
	return text, nil
}
