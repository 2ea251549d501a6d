package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/orlodrim/wikibots-go/pkg/clock"
)

// HTTPClientOptions configures NewHTTPClient.
type HTTPClientOptions struct {
	// APIURL is the address of api.php, e.g.
	// "https://en.wikipedia.org/w/api.php".
	APIURL string
	// UserName is the account used to log in (the "Main@BotAccount"
	// form for Special:BotPasswords accounts is accepted verbatim).
	UserName string
	Password string
	// UserAgent is sent on every request, per the Wikimedia user-agent
	// policy referenced by mwclient/wiki.h.
	UserAgent string
	// DelayBeforeRequests is slept before every request.
	DelayBeforeRequests time.Duration
	// DelayBetweenEdits is the minimum spacing between mutating
	// requests, measured from the end of the previous one.
	DelayBetweenEdits time.Duration
	Clock             clock.Clock
	Log               *logrus.Entry
}

// HTTPClient implements Client against a live MediaWiki API endpoint.
//
// Grounded on _examples/original_source/mwclient/wiki.h's HTTP posture
// (delayBeforeRequests/delayBetweenEdits, token caching) and
// kubernetes-sigs-prow's retryablehttp-backed REST clients
// (prow/jira/jira.go) for the retry/backoff transport.
type HTTPClient struct {
	opts         HTTPClientOptions
	http         *retryablehttp.Client
	clock        clock.Clock
	log          *logrus.Entry
	internalUser string
	editToken    string
	lastEdit     time.Time

	userInfoCache *lru.Cache[string, UserInfo]
}

// NewHTTPClient builds an HTTPClient. It does not log in; call LogIn
// before issuing any other request.
func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Log == nil {
		opts.Log = logrus.WithField("component", "wiki.httpclient")
	}
	cache, err := lru.New[string, UserInfo](256)
	if err != nil {
		return nil, err
	}
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 5
	return &HTTPClient{
		opts:          opts,
		http:          rc,
		clock:         opts.Clock,
		log:           opts.Log,
		userInfoCache: cache,
	}, nil
}

// InternalUserName implements Client.
func (c *HTTPClient) InternalUserName() string { return c.internalUser }

// LogIn authenticates against the wiki using the bot-password flow.
// Must be called before any other request.
func (c *HTTPClient) LogIn(ctx context.Context) error {
	token, err := c.getLoginToken(ctx)
	if err != nil {
		return err
	}
	params := url.Values{
		"action":     {"login"},
		"lgname":     {c.opts.UserName},
		"lgpassword": {c.opts.Password},
		"lgtoken":    {token},
	}
	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	if err := c.apiRequest(ctx, http.MethodPost, params, &resp); err != nil {
		return err
	}
	if resp.Login.Result != "Success" {
		return &PermissionError{Reason: fmt.Sprintf("login failed: %s (%s)", resp.Login.Result, resp.Login.Reason)}
	}
	c.internalUser = c.opts.UserName
	return nil
}

func (c *HTTPClient) getLoginToken(ctx context.Context) (string, error) {
	params := url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {"login"}}
	var resp struct {
		Query struct {
			Tokens struct {
				LoginToken string `json:"logintoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, params, &resp); err != nil {
		return "", err
	}
	return resp.Query.Tokens.LoginToken, nil
}

func (c *HTTPClient) throttleBeforeRequest(ctx context.Context, mutating bool) error {
	if c.opts.DelayBeforeRequests > 0 {
		if err := sleepCtx(ctx, c.opts.DelayBeforeRequests); err != nil {
			return err
		}
	}
	if mutating && c.opts.DelayBetweenEdits > 0 && !c.lastEdit.IsZero() {
		elapsed := c.clock.Now().Sub(c.lastEdit)
		if wait := c.opts.DelayBetweenEdits - elapsed; wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// apiRequest issues one request against api.php and decodes the JSON
// response envelope into out.
func (c *HTTPClient) apiRequest(ctx context.Context, method string, params url.Values, out any) error {
	params.Set("format", "json")
	var req *retryablehttp.Request
	var err error
	if method == http.MethodGet {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, c.opts.APIURL+"?"+params.Encode(), nil)
	} else {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, c.opts.APIURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return &TransportError{Cause: err}
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return &PermissionError{Reason: "HTTP 403"}
	}
	if resp.StatusCode >= 500 {
		return &TransportError{Cause: fmt.Errorf("http %d", resp.StatusCode)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func classifyAPIError(e apiError, title string) error {
	switch e.Code {
	case "missingtitle", "pagedeleted":
		return &NotFoundError{Title: title}
	case "editconflict":
		return &ConflictError{Title: title}
	case "articleexists":
		return &PageAlreadyExistsError{Title: title}
	case "protectedpage", "permissiondenied", "blocked":
		return &PermissionError{Title: title, Reason: e.Info}
	default:
		return &TransportError{Cause: fmt.Errorf("%s: %s", e.Code, e.Info)}
	}
}

type readPageResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Missing bool   `json:"missing"`
			Revisions []struct {
				RevID     int64  `json:"revid"`
				Timestamp string `json:"timestamp"`
				User      string `json:"user"`
				Comment   string `json:"comment"`
				Slots     struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
	Error *apiError `json:"error,omitempty"`
}

// ReadPage implements Client.
func (c *HTTPClient) ReadPage(ctx context.Context, title string, props RevProp) (Revision, error) {
	if err := c.throttleBeforeRequest(ctx, false); err != nil {
		return Revision{}, err
	}
	rvprop := []string{"ids", "timestamp", "user", "comment"}
	if props.has(RevPropContent) {
		rvprop = append(rvprop, "content")
	}
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {title},
		"rvprop":  {strings.Join(rvprop, "|")},
		"rvslots": {"main"},
	}
	var resp readPageResponse
	if err := c.apiRequest(ctx, http.MethodGet, params, &resp); err != nil {
		return Revision{}, err
	}
	if resp.Error != nil {
		return Revision{}, classifyAPIError(*resp.Error, title)
	}
	for _, page := range resp.Query.Pages {
		if page.Missing {
			return Revision{Title: title, Exists: false}, nil
		}
		rev := Revision{Title: page.Title, Exists: true}
		if len(page.Revisions) > 0 {
			r := page.Revisions[0]
			rev.RevID = r.RevID
			rev.User = r.User
			rev.Comment = r.Comment
			rev.Content = r.Slots.Main.Content
			if t, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
				rev.Timestamp = t.Unix()
			}
		}
		return rev, nil
	}
	return Revision{Title: title, Exists: false}, nil
}

// WritePage implements Client.
func (c *HTTPClient) WritePage(ctx context.Context, title, content string, base ConflictBase, summary string, flags EditFlags) error {
	if err := c.throttleBeforeRequest(ctx, true); err != nil {
		return err
	}
	token, err := c.getEditToken(ctx)
	if err != nil {
		return err
	}
	params := url.Values{
		"action":  {"edit"},
		"title":   {title},
		"text":    {content},
		"summary": {summary},
		"token":   {token},
		"bot":     {"1"},
	}
	if flags.has(Minor) {
		params.Set("minor", "1")
	} else {
		params.Set("notminor", "1")
	}
	switch {
	case base.CreateOnly:
		params.Set("createonly", "1")
	case base.Unconditional:
		// No conflict-detection parameter.
	default:
		params.Set("baserevid", strconv.FormatInt(base.BaseRevID, 10))
		params.Set("nocreate", "1")
	}

	var resp struct {
		Error *apiError `json:"error,omitempty"`
	}
	if err := c.apiRequest(ctx, http.MethodPost, params, &resp); err != nil {
		return err
	}
	c.lastEdit = c.clock.Now()
	if resp.Error != nil {
		return classifyAPIError(*resp.Error, title)
	}
	return nil
}

func (c *HTTPClient) getEditToken(ctx context.Context) (string, error) {
	if c.editToken != "" {
		return c.editToken, nil
	}
	params := url.Values{"action": {"query"}, "meta": {"tokens"}}
	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, params, &resp); err != nil {
		return "", err
	}
	c.editToken = resp.Query.Tokens.CSRFToken
	return c.editToken, nil
}

// MovePage implements Client.
func (c *HTTPClient) MovePage(ctx context.Context, oldTitle, newTitle, summary string) error {
	if err := c.throttleBeforeRequest(ctx, true); err != nil {
		return err
	}
	token, err := c.getEditToken(ctx)
	if err != nil {
		return err
	}
	params := url.Values{
		"action": {"move"}, "from": {oldTitle}, "to": {newTitle}, "reason": {summary}, "token": {token},
	}
	var resp struct {
		Error *apiError `json:"error,omitempty"`
	}
	if err := c.apiRequest(ctx, http.MethodPost, params, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return classifyAPIError(*resp.Error, oldTitle)
	}
	return nil
}

// DeletePage implements Client.
func (c *HTTPClient) DeletePage(ctx context.Context, title, reason string) error {
	if err := c.throttleBeforeRequest(ctx, true); err != nil {
		return err
	}
	token, err := c.getEditToken(ctx)
	if err != nil {
		return err
	}
	params := url.Values{"action": {"delete"}, "title": {title}, "reason": {reason}, "token": {token}}
	var resp struct {
		Error *apiError `json:"error,omitempty"`
	}
	if err := c.apiRequest(ctx, http.MethodPost, params, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return classifyAPIError(*resp.Error, title)
	}
	return nil
}

// PurgePage implements Client.
func (c *HTTPClient) PurgePage(ctx context.Context, title string) error {
	if err := c.throttleBeforeRequest(ctx, false); err != nil {
		return err
	}
	params := url.Values{"action": {"purge"}, "titles": {title}}
	return c.apiRequest(ctx, http.MethodPost, params, nil)
}

// GetUserInfo implements Client, caching results since the
// emergency-stop predicate may re-check the same user repeatedly.
func (c *HTTPClient) GetUserInfo(ctx context.Context, name string) (UserInfo, error) {
	if info, ok := c.userInfoCache.Get(name); ok {
		return info, nil
	}
	if err := c.throttleBeforeRequest(ctx, false); err != nil {
		return UserInfo{}, err
	}
	params := url.Values{
		"action": {"query"}, "list": {"users"}, "ususers": {name}, "usprop": {"editcount|groups"},
	}
	var resp struct {
		Query struct {
			Users []struct {
				Name      string   `json:"name"`
				EditCount int64    `json:"editcount"`
				Groups    []string `json:"groups"`
			} `json:"users"`
		} `json:"query"`
	}
	if err := c.apiRequest(ctx, http.MethodGet, params, &resp); err != nil {
		return UserInfo{}, err
	}
	if len(resp.Query.Users) == 0 {
		return UserInfo{}, &NotFoundError{Title: "User:" + name}
	}
	u := resp.Query.Users[0]
	info := UserInfo{Name: u.Name, EditCount: u.EditCount, Groups: u.Groups}
	c.userInfoCache.Add(name, info)
	return info, nil
}
