// Package auth performs the one-shot form-login preamble before a crawl.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/probeworks/sitescan/internal/logger"
)

// statusCSRFMismatch is the non-standard status Laravel-style stacks return
// on a stale CSRF token.
const statusCSRFMismatch = 419

// Options configures a login attempt.
type Options struct {
	LoginURL string
	Username string
	Password string
	// UsernameField and PasswordField override form-field auto-detection.
	UsernameField string
	PasswordField string
	// StartURL is the operator-supplied crawl seed, used as the fallback
	// start and for login-page verification.
	StartURL string
	Timeout  time.Duration
	Headers  map[string]string
}

// Session is the authenticator's output: the merged cookie jar and the URL
// the crawl should start from.
type Session struct {
	Cookies  map[string]string
	StartURL string
	// Verified is false when the post-login page still looks like the
	// login form.
	Verified bool
	Warning  string
}

var loginPageTokens = []string{"login", "đăng nhập", "dang-nhap"}

// Login drives the HTTP form-login flow: fetch the login page, discover the
// CSRF token and field names, post credentials, merge cookies, and retry once
// on CSRF mismatch.
func Login(ctx context.Context, opts Options, log *logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	cookies := make(map[string]string)

	page, err := fetchLoginPage(ctx, client, opts, cookies)
	if err != nil {
		return nil, err
	}

	form := discoverForm(page, opts, cookies)
	log.Debugf("login form: action=%s method=%s user=%s pass=%s token=%t",
		form.Action, form.Method, form.UsernameField, form.PasswordField, form.CSRFToken != "")

	status, redirect, err := postCredentials(ctx, client, opts, form, cookies)
	if err != nil {
		return nil, err
	}

	if status == statusCSRFMismatch {
		log.Warn("CSRF token rejected, refreshing token and retrying once")
		page, err = fetchLoginPage(ctx, client, opts, cookies)
		if err != nil {
			return nil, err
		}
		form = discoverForm(page, opts, cookies)
		_, redirect, err = postCredentials(ctx, client, opts, form, cookies)
		if err != nil {
			return nil, err
		}
	}

	startURL := opts.StartURL
	if redirect != "" {
		startURL = resolveAgainst(opts.LoginURL, redirect)
	}

	session := &Session{Cookies: cookies, StartURL: startURL, Verified: true}
	verifyLogin(ctx, client, opts, session, log)
	return session, nil
}

// formInfo is what discoverForm learns from the login page.
type formInfo struct {
	Action        string
	Method        string
	UsernameField string
	PasswordField string
	CSRFToken     string
	JSONBody      bool
}

func fetchLoginPage(ctx context.Context, client *http.Client, opts Options, cookies map[string]string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.LoginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	applyHeaders(req, opts, cookies)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch login page: %w", err)
	}
	defer resp.Body.Close()

	mergeCookies(cookies, resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read login page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	return doc, nil
}

// discoverForm finds the CSRF token, the form fields, and the post target.
// Operator-supplied field names win over auto-detection. The XSRF-TOKEN
// cookie is the token source of last resort.
func discoverForm(doc *goquery.Document, opts Options, cookies map[string]string) formInfo {
	info := formInfo{
		Action:        opts.LoginURL,
		Method:        http.MethodPost,
		UsernameField: opts.UsernameField,
		PasswordField: opts.PasswordField,
	}

	for _, name := range []string{"_token", "csrf_token", "authenticity_token"} {
		if v, ok := doc.Find(`input[name="` + name + `"]`).Attr("value"); ok {
			info.CSRFToken = v
			break
		}
	}
	if info.CSRFToken == "" {
		for _, name := range []string{"csrf-token", "_token"} {
			if v, ok := doc.Find(`meta[name="` + name + `"]`).Attr("content"); ok {
				info.CSRFToken = v
				break
			}
		}
	}
	if info.CSRFToken == "" {
		info.CSRFToken = cookies["XSRF-TOKEN"]
	}

	form := doc.Find("form").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sel.Find(`input[type="password"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		form = doc.Find("form").First()
	}

	if form.Length() > 0 {
		if action, ok := form.Attr("action"); ok && strings.TrimSpace(action) != "" {
			info.Action = resolveAgainst(opts.LoginURL, action)
		}
		if method, ok := form.Attr("method"); ok && method != "" {
			info.Method = strings.ToUpper(method)
		}
		if enctype, ok := form.Attr("enctype"); ok && strings.Contains(strings.ToLower(enctype), "json") {
			info.JSONBody = true
		}
	}

	if info.UsernameField == "" {
		form.Find(`input[type="text"], input[type="email"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			name, _ := sel.Attr("name")
			id, _ := sel.Attr("id")
			needle := strings.ToLower(name + " " + id)
			if strings.Contains(needle, "user") || strings.Contains(needle, "login") {
				info.UsernameField = name
				return false
			}
			return true
		})
	}
	if info.UsernameField == "" {
		info.UsernameField = "username"
	}

	if info.PasswordField == "" {
		if name, ok := form.Find(`input[type="password"]`).First().Attr("name"); ok {
			info.PasswordField = name
		}
	}
	if info.PasswordField == "" {
		info.PasswordField = "password"
	}

	return info
}

// postCredentials submits the form. Returns the response status and any
// redirect Location.
func postCredentials(ctx context.Context, client *http.Client, opts Options, form formInfo, cookies map[string]string) (int, string, error) {
	fields := map[string]string{
		form.UsernameField: opts.Username,
		form.PasswordField: opts.Password,
	}
	if form.CSRFToken != "" {
		fields["_token"] = form.CSRFToken
		fields["csrf_token"] = form.CSRFToken
		fields["authenticity_token"] = form.CSRFToken
	}

	var body io.Reader
	contentType := "application/x-www-form-urlencoded"
	if form.JSONBody {
		raw, err := json.Marshal(fields)
		if err != nil {
			return 0, "", fmt.Errorf("encode login body: %w", err)
		}
		body = strings.NewReader(string(raw))
		contentType = "application/json"
	} else {
		values := url.Values{}
		for name, value := range fields {
			values.Set(name, value)
		}
		body = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, form.Method, form.Action, body)
	if err != nil {
		return 0, "", fmt.Errorf("build credential post: %w", err)
	}
	applyHeaders(req, opts, cookies)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Referer", opts.LoginURL)
	if origin := originOf(opts.LoginURL); origin != "" {
		req.Header.Set("Origin", origin)
	}
	if form.CSRFToken != "" {
		req.Header.Set("X-XSRF-TOKEN", form.CSRFToken)
		req.Header.Set("X-CSRF-TOKEN", form.CSRFToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post credentials: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	mergeCookies(cookies, resp)

	redirect := ""
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		redirect = resp.Header.Get("Location")
	}
	return resp.StatusCode, redirect, nil
}

// verifyLogin checks that the effective start page no longer looks like the
// login form; on failure the start URL reverts to the operator's seed.
func verifyLogin(ctx context.Context, client *http.Client, opts Options, session *Session, log *logger.Logger) {
	if session.StartURL == "" || session.StartURL == opts.StartURL {
		return
	}

	if looksLikeLoginURL(session.StartURL) {
		session.Verified = false
		session.Warning = "post-login redirect still points at the login page"
		session.StartURL = opts.StartURL
		log.Warn(session.Warning)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, session.StartURL, nil)
	if err != nil {
		return
	}
	applyHeaders(req, opts, session.Cookies)

	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	lower := strings.ToLower(string(body))
	for _, token := range loginPageTokens {
		if strings.Contains(lower, token) && strings.Contains(lower, "password") {
			session.Verified = false
			session.Warning = "post-login page still contains the login form"
			session.StartURL = opts.StartURL
			log.Warn(session.Warning)
			return
		}
	}
}

func looksLikeLoginURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, token := range loginPageTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func applyHeaders(req *http.Request, opts Options, cookies map[string]string) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}
	if len(cookies) > 0 {
		pairs := make([]string, 0, len(cookies))
		for name, value := range cookies {
			pairs = append(pairs, name+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
}

// mergeCookies folds response Set-Cookie values into the jar, last write
// wins by name. Values are URL-decoded.
func mergeCookies(jar map[string]string, resp *http.Response) {
	for _, c := range resp.Cookies() {
		value := c.Value
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		jar[c.Name] = value
	}
}

func resolveAgainst(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
