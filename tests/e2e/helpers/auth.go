package helpers

import (
	"fmt"
	"regexp"

	"github.com/playwright-community/playwright-go"
)

var (
	loginRoute   = regexp.MustCompile(`#/login`)
	managerRoute = regexp.MustCompile(`#/manager`)
)

// AuthHelper drives the role selection on the bank's landing page. The demo
// app has no credentials; picking a role is the login.
type AuthHelper struct {
	browser *BrowserHelper
}

// NewAuthHelper creates a new authentication helper
func NewAuthHelper(browser *BrowserHelper) *AuthHelper {
	return &AuthHelper{
		browser: browser,
	}
}

// Button returns the button with the given accessible name.
func (a *AuthHelper) Button(name string) playwright.Locator {
	return a.browser.Page.Locator(fmt.Sprintf("button:has-text(%q)", name)).First()
}

// OpenLanding navigates to the app root and waits for the login route.
func (a *AuthHelper) OpenLanding() error {
	if err := a.browser.NavigateTo(""); err != nil {
		return err
	}
	if err := a.browser.Page.WaitForURL(loginRoute); err != nil {
		return fmt.Errorf("landing page did not redirect to #/login: %w", err)
	}
	return a.Button("Bank Manager Login").WaitFor()
}

// LoginAsManager opens the manager dashboard.
func (a *AuthHelper) LoginAsManager() error {
	if err := a.OpenLanding(); err != nil {
		return err
	}
	if err := a.Button("Bank Manager Login").Click(); err != nil {
		return fmt.Errorf("failed to click Bank Manager Login: %w", err)
	}
	if err := a.browser.Page.WaitForURL(managerRoute); err != nil {
		return fmt.Errorf("manager dashboard did not load: %w", err)
	}
	return nil
}

// OpenCustomerLogin opens the customer selection panel.
func (a *AuthHelper) OpenCustomerLogin() error {
	if err := a.OpenLanding(); err != nil {
		return err
	}
	if err := a.Button("Customer Login").Click(); err != nil {
		return fmt.Errorf("failed to click Customer Login: %w", err)
	}
	return a.browser.WaitForAngular()
}

// OpenManagerTab clicks one of the manager tabs: Add Customer, Open Account
// or Customers.
func (a *AuthHelper) OpenManagerTab(name string) error {
	if err := a.Button(name).Click(); err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	return a.browser.WaitForAngular()
}

// Logout returns to the landing page from the manager or customer area.
func (a *AuthHelper) Logout() error {
	logout := a.Button("Logout")
	if count, _ := logout.Count(); count > 0 {
		if err := logout.Click(); err != nil {
			return fmt.Errorf("failed to click Logout: %w", err)
		}
		return a.browser.Page.WaitForURL(loginRoute)
	}
	home := a.browser.Page.Locator("button.home")
	if err := home.Click(); err != nil {
		return fmt.Errorf("failed to click Home: %w", err)
	}
	return a.browser.Page.WaitForURL(loginRoute)
}
