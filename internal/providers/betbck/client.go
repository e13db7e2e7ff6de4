// Package betbck talks to the target book: a cookie session behind a form
// login, a search origin page, and a search form returning matching games.
package betbck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const (
	// Hidden inputs on the origin page that every search must echo back
	FieldWagerNumber    = "inetWagerNumber"
	FieldSportSelection = "inetSportSelection"

	defaultSportSelection = "sport"
	maxBodyBytes          = 5 << 20
)

// Config holds the site endpoints and credentials
type Config struct {
	LoginPageURL    string
	LoginActionURL  string
	MainPageURL     string
	SearchActionURL string
	Username        string
	Password        string
	UsernameField   string
	PasswordField   string
	UserAgent       string
	Timeout         time.Duration
}

// Client implements contracts.Upstream over HTTP
type Client struct {
	cfg Config
}

// New creates a new target book client
func New(cfg Config) *Client {
	if cfg.UsernameField == "" {
		cfg.UsernameField = "customerID"
	}
	if cfg.PasswordField == "" {
		cfg.PasswordField = "password"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg}
}

// Login creates a fresh cookie session, submits the login form and loads
// the search prerequisites from the origin page
func (c *Client) Login(ctx context.Context) (*models.Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := &http.Client{Jar: jar, Timeout: c.cfg.Timeout}

	// Visit the login page first so the site sets its pre-login cookies
	if _, _, err := c.get(ctx, hc, c.cfg.LoginPageURL); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(c.cfg.UsernameField, c.cfg.Username)
	form.Set(c.cfg.PasswordField, c.cfg.Password)

	status, body, err := c.post(ctx, hc, c.cfg.LoginActionURL, form, c.cfg.LoginPageURL)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: login returned status %d", models.ErrTransientNetwork, status)
	}
	if !loggedIn(body) {
		return nil, fmt.Errorf("%w: login rejected (status %d)", models.ErrAuthenticationFailed, status)
	}

	status, body, err = c.get(ctx, hc, c.cfg.MainPageURL)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: origin page returned status %d", models.ErrTransientNetwork, status)
	}

	values := searchPrerequisites(body)
	if values[FieldWagerNumber] == "" {
		return nil, fmt.Errorf("%w: origin page has no %s", models.ErrAuthenticationFailed, FieldWagerNumber)
	}

	return &models.Session{Client: hc, Values: values}, nil
}

// Origin re-navigates to the search origin page and refreshes the
// session's search prerequisites when the page carries new ones
func (c *Client) Origin(ctx context.Context, session *models.Session) (int, error) {
	if session == nil || session.Client == nil {
		return 0, models.ErrAuthenticationExpired
	}

	status, body, err := c.get(ctx, session.Client, c.cfg.MainPageURL)
	if err != nil {
		return 0, err
	}
	if status == http.StatusOK {
		if v := searchPrerequisites(body); v[FieldWagerNumber] != "" {
			session.Values = v
		}
	}
	return status, nil
}

// Search submits the search form and returns the raw response
func (c *Client) Search(ctx context.Context, session *models.Session, searchTerm string) (*models.UpstreamResponse, error) {
	if session == nil || session.Client == nil {
		return nil, models.ErrAuthenticationExpired
	}

	sport := session.Values[FieldSportSelection]
	if sport == "" {
		sport = defaultSportSelection
	}

	form := url.Values{}
	form.Set("action", "Search")
	form.Set("keyword_search", searchTerm)
	form.Set(FieldWagerNumber, session.Values[FieldWagerNumber])
	form.Set(FieldSportSelection, sport)

	status, body, err := c.post(ctx, session.Client, c.cfg.SearchActionURL, form, c.cfg.MainPageURL)
	if err != nil {
		return nil, err
	}

	return &models.UpstreamResponse{StatusCode: status, Body: body}, nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	return c.do(hc, req)
}

func (c *Client) post(ctx context.Context, hc *http.Client, target string, form url.Values, referer string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return c.do(hc, req)
}

func (c *Client) do(hc *http.Client, req *http.Request) (int, []byte, error) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", models.ErrTransientNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading %s: %w", models.ErrTransientNetwork, req.URL.Path, err)
	}
	return resp.StatusCode, body, nil
}

// loggedIn reports whether a post-login page shows an authenticated user
func loggedIn(body []byte) bool {
	text := strings.ToLower(string(body))
	return strings.Contains(text, "logout") && !strings.Contains(text, "invalid user")
}

// searchPrerequisites pulls the hidden search inputs out of the origin page
func searchPrerequisites(body []byte) map[string]string {
	values := map[string]string{}
	z := html.NewTokenizer(strings.NewReader(string(body)))

	for {
		switch z.Next() {
		case html.ErrorToken:
			if values[FieldSportSelection] == "" {
				values[FieldSportSelection] = defaultSportSelection
			}
			return values
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var key, value string
			for _, a := range tok.Attr {
				switch a.Key {
				case "id", "name":
					if a.Val == FieldWagerNumber || a.Val == FieldSportSelection {
						key = a.Val
					}
				case "value":
					value = a.Val
				}
			}
			if key != "" && values[key] == "" {
				values[key] = value
			}
		}
	}
}
