package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/probeworks/sitescan/internal/logger"
)

// BrowserLogin drives the login form through a live browser page. The
// browser is owned by the caller; a fresh page is opened and closed here.
// The final page URL after submission becomes the session start URL.
func BrowserLogin(ctx context.Context, browser *rod.Browser, opts Options, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create login page: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	page = page.Context(navCtx)

	if err := page.Navigate(opts.LoginURL); err != nil {
		return nil, fmt.Errorf("navigate to login page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load login page: %w", err)
	}

	usernameSelectors := []string{
		"input[type='email']",
		"input[type='text'][name*='user']",
		"input[type='text'][name*='login']",
		"input#username",
		"input#email",
	}
	if opts.UsernameField != "" {
		usernameSelectors = append([]string{fmt.Sprintf("input[name='%s']", opts.UsernameField)}, usernameSelectors...)
	}
	usernameElement := firstElement(page, usernameSelectors)
	if usernameElement == nil {
		return nil, fmt.Errorf("could not find username field on %s", opts.LoginURL)
	}
	if err := usernameElement.SelectAllText(); err == nil {
		_ = usernameElement.Input(opts.Username)
	}

	passwordSelectors := []string{
		"input[type='password']",
		"input#password",
	}
	if opts.PasswordField != "" {
		passwordSelectors = append([]string{fmt.Sprintf("input[name='%s']", opts.PasswordField)}, passwordSelectors...)
	}
	passwordElement := firstElement(page, passwordSelectors)
	if passwordElement == nil {
		return nil, fmt.Errorf("could not find password field on %s", opts.LoginURL)
	}
	if err := passwordElement.SelectAllText(); err == nil {
		_ = passwordElement.Input(opts.Password)
	}

	submitElement := firstElement(page, []string{
		"button[type='submit']",
		"input[type='submit']",
	})
	if submitElement != nil {
		_ = submitElement.Click(proto.InputMouseButtonLeft, 1)
	} else {
		_ = passwordElement.Type(input.Enter)
	}

	_ = page.WaitLoad()
	time.Sleep(500 * time.Millisecond)

	cookies := make(map[string]string)
	if rodCookies, err := page.Cookies(nil); err == nil {
		for _, c := range rodCookies {
			cookies[c.Name] = c.Value
		}
	}

	startURL := opts.StartURL
	if info, err := page.Info(); err == nil && info.URL != "" && info.URL != "about:blank" {
		startURL = info.URL
	}

	session := &Session{Cookies: cookies, StartURL: startURL, Verified: true}
	if looksLikeLoginURL(session.StartURL) && session.StartURL != opts.StartURL {
		session.Verified = false
		session.Warning = "post-login page still points at the login form"
		session.StartURL = opts.StartURL
		log.Warn(session.Warning)
	}
	return session, nil
}

func firstElement(page *rod.Page, selectors []string) *rod.Element {
	for _, selector := range selectors {
		el, err := page.Timeout(2 * time.Second).Element(selector)
		if err == nil && el != nil {
			return el
		}
	}
	return nil
}
