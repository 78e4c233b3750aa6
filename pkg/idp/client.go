package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/idp"

const adminUsersPath = "/auth/v1/admin/users"

// HTTPClient is the subset of *http.Client used by [Client].
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// User is an account as reported by the provider.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// NewUser describes an account to create. The email is confirmed on
// creation.
type NewUser struct {
	Email    string
	Password config.Secret
	Username string
	FullName string
}

// LogValue omits the password.
func (u NewUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", u.Email),
		slog.String("username", u.Username),
	)
}

type createUserBody struct {
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	EmailConfirm bool              `json:"email_confirm"`
	UserMetadata map[string]string `json:"user_metadata"`
}

type listUsersBody struct {
	Users []User `json:"users"`
}

// Client calls the admin API. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   HTTPClient
	tracer trace.Tracer
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

// NewClient validates cfg and returns a client whose requests carry the
// service key and are bounded by cfg.Timeout.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateUser registers a confirmed account and returns it.
//
// Error codes returned:
//   - [sserr.CodeConflictAlreadyExists]: the email is already registered
//   - [sserr.CodeProvisioningFailed]: any other rejection, or a reply without an id
//   - [sserr.CodeUnavailableDependency], [sserr.CodeTimeoutDependency]: transport failure
func (c *Client) CreateUser(ctx context.Context, u NewUser) (_ *User, err error) {
	ctx, span := c.startSpan(ctx, "idp.CreateUser")
	defer func() { finishSpan(span, err) }()

	body, err := json.Marshal(createUserBody{
		Email:        u.Email,
		Password:     u.Password.Value(),
		EmailConfirm: true,
		UserMetadata: map[string]string{
			"username":  u.Username,
			"full_name": u.FullName,
		},
	})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "idp: failed to encode create request")
	}

	status, payload, err := c.do(ctx, http.MethodPost, adminUsersPath, nil, body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if status < 200 || status > 299 {
		return nil, createError(status, payload)
	}

	var created User
	if err := json.Unmarshal(payload, &created); err != nil || created.ID == "" {
		return nil, sserr.New(sserr.CodeProvisioningFailed, "idp: create response carried no account id")
	}
	span.SetAttributes(attribute.String("idp.account_id", created.ID))
	return &created, nil
}

// DeleteUser removes the account with the given id.
//
// Error codes returned:
//   - [sserr.CodeNotFoundAccount]: no such account
//   - [sserr.CodeProvisioningFailed]: any other rejection
//   - [sserr.CodeUnavailableDependency], [sserr.CodeTimeoutDependency]: transport failure
func (c *Client) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, span := c.startSpan(ctx, "idp.DeleteUser")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("idp.account_id", id))

	if strings.TrimSpace(id) == "" {
		return sserr.New(sserr.CodeValidationRequired, "idp: account id is required")
	}

	status, payload, err := c.do(ctx, http.MethodDelete, adminUsersPath+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusNotFound:
		return sserr.Newf(sserr.CodeNotFoundAccount, "idp: account %q not found", id)
	default:
		return rejected(status, payload, "delete")
	}
}

// FindUserByEmail pages through the account list looking for an exact,
// case-insensitive email match. It returns a [sserr.CodeNotFoundAccount]
// error when no account matches within MaxPages.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (_ *User, err error) {
	ctx, span := c.startSpan(ctx, "idp.FindUserByEmail")
	defer func() { finishSpan(span, err) }()

	for page := 1; page <= c.cfg.MaxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.cfg.PageSize))

		status, payload, err := c.do(ctx, http.MethodGet, adminUsersPath, q, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, rejected(status, payload, "list")
		}

		var list listUsersBody
		if err := json.Unmarshal(payload, &list); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeProvisioningFailed, "idp: malformed account list")
		}
		for i := range list.Users {
			if strings.EqualFold(list.Users[i].Email, email) {
				span.SetAttributes(attribute.Int("idp.pages", page))
				return &list.Users[i], nil
			}
		}
		if len(list.Users) < c.cfg.PageSize {
			break
		}
	}
	return nil, sserr.Newf(sserr.CodeNotFoundAccount, "idp: no account with email %q", email)
}

// Health checks that the admin API accepts the service key by listing a
// single account.
func (c *Client) Health(ctx context.Context) error {
	q := url.Values{"page": {"1"}, "per_page": {"1"}}
	status, payload, err := c.do(ctx, http.MethodGet, adminUsersPath, q, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return sserr.Newf(sserr.CodeUnavailableDependency, "idp: admin API returned status %d: %s", status, providerMessage(payload))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "idp: failed to build request")
	}
	key := c.cfg.ServiceKey.Value()
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("apikey", key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, sserr.Dependency(err, fmt.Sprintf("idp: %s request failed", strings.ToLower(method)))
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, sserr.Dependency(err, "idp: failed to read response")
	}
	return resp.StatusCode, payload, nil
}

// createError maps a rejected create. The provider reports duplicate
// emails with 409 or 422 and a message naming the conflict.
func createError(status int, payload []byte) error {
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		if isDuplicate(payload) {
			return sserr.New(sserr.CodeConflictAlreadyExists, "idp: account already exists")
		}
	}
	return rejected(status, payload, "create")
}

func rejected(status int, payload []byte, op string) error {
	return sserr.Newf(sserr.CodeProvisioningFailed, "idp: %s rejected with status %d", op, status).
		WithDetail("status", status).
		WithDetail("provider_message", providerMessage(payload))
}

func isDuplicate(payload []byte) bool {
	var e errorBody
	_ = json.Unmarshal(payload, &e)
	switch e.ErrorCode {
	case "email_exists", "user_already_exists":
		return true
	}
	msg := strings.ToLower(e.message())
	if msg == "" {
		msg = strings.ToLower(string(payload))
	}
	return strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists")
}

type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func (e errorBody) message() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// providerMessage extracts a short message from an error body.
func providerMessage(payload []byte) string {
	var e errorBody
	if json.Unmarshal(payload, &e) == nil {
		if m := e.message(); m != "" {
			return m
		}
	}
	s := strings.TrimSpace(string(payload))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
