package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	httpTimeout = time.Second * 30

	accessTokenParam = "access_token"
	redacted         = "REDACTED"
)

// Reporter delivers the outcome of a post operation to people, e.g. by
// email. Errors returned by a Reporter are logged and otherwise ignored.
type Reporter interface {
	Success(ctx context.Context, subject, body string) error
	Failure(ctx context.Context, subject, body string) error
}

// Client is responsible for creating, reading, updating and deleting posts on
// a single Facebook page through the Graph API. Every call is one synchronous
// request, there are no retries.
type Client struct {
	logger       *zap.Logger
	reporter     Reporter
	tokens       oauth2.TokenSource
	c            *resty.Client
	baseURL      string
	version      string
	pageID       string
	timeout      time.Duration
	notifyOnRead bool
}

// Option configures optional Client settings.
type Option func(*Client)

// WithBaseURL overrides the Graph API url, mostly useful in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIVersion sets the Graph API version path segment e.g. v12.0.
func WithAPIVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithTimeout bounds every request the client sends.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithNotifyOnRead makes ReadPost report successful reads as well. Reads are
// only reported on failure by default.
func WithNotifyOnRead(notify bool) Option {
	return func(c *Client) { c.notifyOnRead = notify }
}

// NewClient returns an instantiated instance of a new graph client. The
// client has the following dependencies:
//
// logger - for structured logging
// reporter - receives a success or failure notice for every operation
// tokens - source of the page access token
// pageID - the page the posts live on
//
// Usage Example:
//  c, err := NewClient(logger, notifier, oauth2.StaticTokenSource(tok), "403714366157679")
//  if err != nil { // handle err }
//
//  // create a text post, then remove it again
//  resp, err := c.CreatePost(ctx, "hello", "")
//  if err != nil { // handle err }
//
//  _, err = c.DeletePost(ctx, resp.ID())
//  if err != nil { // handle err }
func NewClient(logger *zap.Logger, reporter Reporter, tokens oauth2.TokenSource, pageID string, opts ...Option) (*Client, error) {
	c := Client{
		logger:   logger,
		reporter: reporter,
		tokens:   tokens,
		baseURL:  APIURL,
		version:  DefaultAPIVersion,
		pageID:   pageID,
		timeout:  httpTimeout,
	}

	for _, opt := range opts {
		opt(&c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	c.c = resty.New().
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json")

	return &c, nil
}

func (c *Client) validate() error {
	var missingDeps []string

	for _, tc := range []struct {
		dep string
		chk func() bool
	}{
		{
			dep: "logger",
			chk: func() bool { return c.logger != nil },
		},
		{
			dep: "reporter",
			chk: func() bool { return c.reporter != nil },
		},
		{
			dep: "tokens",
			chk: func() bool { return c.tokens != nil },
		},
		{
			dep: "pageID",
			chk: func() bool { return c.pageID != "" },
		},
		{
			dep: "baseURL",
			chk: func() bool { return c.baseURL != "" },
		},
		{
			dep: "version",
			chk: func() bool { return c.version != "" },
		},
		{
			dep: "timeout",
			chk: func() bool { return c.timeout > 0 },
		},
	} {
		if !tc.chk() {
			missingDeps = append(missingDeps, tc.dep)
		}
	}

	if len(missingDeps) > 0 {
		return fmt.Errorf(
			"unable to initialize graph client due to (%d) missing dependencies: %s",
			len(missingDeps),
			strings.Join(missingDeps, ","),
		)
	}

	return nil
}

// CreatePost creates a post on the page. With an image url the post goes to
// the photos edge and carries the image, otherwise it is a text post on the
// feed edge.
func (c *Client) CreatePost(ctx context.Context, caption, imageURL string) (Response, error) {
	const op = "create_post"
	logger := c.opLogger(op)

	logger.Info("create post started", zap.String("caption", caption), zap.String("imageUrl", imageURL))
	defer logger.Info("create post completed")

	payload := NewPayload()
	payload["message"] = caption

	edge := Feed
	if imageURL != "" {
		payload["url"] = imageURL
		edge = Photos
	}

	return c.create(ctx, logger, op, edge, payload)
}

// CreateLinkPost creates a feed post with a link attachment.
func (c *Client) CreateLinkPost(ctx context.Context, caption, link string) (Response, error) {
	const op = "create_link_post"
	logger := c.opLogger(op)

	logger.Info("create link post started", zap.String("caption", caption), zap.String("link", link))
	defer logger.Info("create link post completed")

	payload := NewPayload()
	payload["message"] = caption
	if link != "" {
		payload["link"] = link
	}

	return c.create(ctx, logger, op, Feed, payload)
}

func (c *Client) create(ctx context.Context, logger *zap.Logger, op string, edge Edge, payload Payload) (Response, error) {
	if caption, _ := payload["message"].(string); caption == "" {
		return nil, c.fail(ctx, logger, created, &OperationError{Op: op, Err: ErrEmptyCaption})
	}

	logger.Info("creating post", zap.String("edge", edge.String()), zap.Any("payload", payload))

	return c.do(ctx, logger, call{
		op:       op,
		method:   http.MethodPost,
		endpoint: c.edgeURL(edge),
		payload:  payload,
		outcome:  created,
	})
}

// ReadPost returns the post fields the Graph API exposes for postID.
func (c *Client) ReadPost(ctx context.Context, postID string) (Response, error) {
	const op = "read_post"
	logger := c.opLogger(op).With(zap.String("postId", postID))

	logger.Debug("read post started")
	defer logger.Debug("read post completed")

	o := retrieved
	o.notify = c.notifyOnRead

	if postID == "" {
		return nil, c.fail(ctx, logger, o, &OperationError{Op: op, Err: ErrEmptyPostID})
	}

	logger.Debug("reading post")

	return c.do(ctx, logger, call{
		op:       op,
		method:   http.MethodGet,
		endpoint: c.objectURL(postID),
		outcome:  o,
	})
}

// UpdatePost replaces the message of the post.
func (c *Client) UpdatePost(ctx context.Context, postID, caption string) (Response, error) {
	const op = "update_post"
	logger := c.opLogger(op).With(zap.String("postId", postID))

	logger.Debug("update post started", zap.String("caption", caption))
	defer logger.Debug("update post completed")

	var err error
	switch {
	case postID == "":
		err = ErrEmptyPostID
	case caption == "":
		err = ErrEmptyCaption
	}
	if err != nil {
		return nil, c.fail(ctx, logger, updated, &OperationError{Op: op, Err: err})
	}

	payload := Payload{"message": caption}
	logger.Debug("updating post", zap.Any("payload", payload))

	return c.do(ctx, logger, call{
		op:       op,
		method:   http.MethodPost,
		endpoint: c.objectURL(postID),
		payload:  payload,
		outcome:  updated,
	})
}

// DeletePost removes the post from the page.
func (c *Client) DeletePost(ctx context.Context, postID string) (Response, error) {
	const op = "delete_post"
	logger := c.opLogger(op).With(zap.String("postId", postID))

	logger.Debug("delete post started")
	defer logger.Debug("delete post completed")

	if postID == "" {
		return nil, c.fail(ctx, logger, deleted, &OperationError{Op: op, Err: ErrEmptyPostID})
	}

	logger.Debug("deleting post")

	return c.do(ctx, logger, call{
		op:       op,
		method:   http.MethodDelete,
		endpoint: c.objectURL(postID),
		outcome:  deleted,
	})
}

// outcome holds what gets reported once an operation finishes.
type outcome struct {
	done   string
	failed string
	verb   string
	notify bool
}

var (
	created   = outcome{done: "Post Created", failed: "Post Creation Failed", verb: "created", notify: true}
	retrieved = outcome{done: "Post Retrieved", failed: "Post Reading Failed", verb: "retrieved"}
	updated   = outcome{done: "Post Updated", failed: "Post Update Failed", verb: "updated", notify: true}
	deleted   = outcome{done: "Post Deleted", failed: "Post Deletion Failed", verb: "deleted", notify: true}
)

type call struct {
	op       string
	method   string
	endpoint string
	payload  Payload
	outcome  outcome
}

func (c *Client) do(ctx context.Context, logger *zap.Logger, cl call) (Response, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		const msg = "unable to get access token"
		return nil, c.fail(ctx, logger, cl.outcome, &OperationError{Op: cl.op, Err: fmt.Errorf(msg+": %w", err)})
	}

	req := c.c.R().
		SetContext(ctx).
		SetQueryParam(accessTokenParam, tok.AccessToken)

	if cl.payload != nil {
		b, err := json.Marshal(cl.payload.compact())
		if err != nil {
			const msg = "unable to marshal payload"
			return nil, c.fail(ctx, logger, cl.outcome, &OperationError{Op: cl.op, Err: fmt.Errorf(msg+": %w", err)})
		}
		req.SetBody(b)
	}

	resp, err := req.Execute(cl.method, cl.endpoint)
	if err != nil {
		const msg = "unable to send request"
		err = redact(err, cl.endpoint, tok.AccessToken)
		return nil, c.fail(ctx, logger, cl.outcome, &OperationError{Op: cl.op, Err: fmt.Errorf(msg+": %w", err)})
	}

	if !resp.IsSuccess() {
		return nil, c.fail(ctx, logger, cl.outcome, &HTTPStatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			URL:        cl.endpoint,
			Body:       resp.Body(),
		})
	}

	var out Response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		const msg = "unable to decode response"
		return nil, c.fail(ctx, logger, cl.outcome, &OperationError{Op: cl.op, Err: fmt.Errorf(msg+": %w", err)})
	}

	if out == nil {
		const msg = "received empty response"
		return nil, c.fail(ctx, logger, cl.outcome, &OperationError{Op: cl.op, Err: errors.New(msg)})
	}

	logger.Info("post "+cl.outcome.verb+" successfully", zap.Any("response", out))

	if cl.outcome.notify {
		body := "Post " + cl.outcome.verb + " successfully: " + encode(out)
		c.report(ctx, logger, c.reporter.Success, cl.outcome.done, body)
	}

	return out, nil
}

// fail logs err, sends the failure notice and hands err back so callers can
// return it directly.
func (c *Client) fail(ctx context.Context, logger *zap.Logger, o outcome, err error) error {
	var body string

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		logger.Error("HTTP error occurred", zap.Error(err), zap.Int("statusCode", httpErr.StatusCode))
		logger.Debug("response content", zap.ByteString("body", httpErr.Body))
		body = err.Error()
	} else {
		logger.Error("an error occurred", zap.Error(err))
		body = "An error occurred: " + err.Error()
	}

	c.report(ctx, logger, c.reporter.Failure, o.failed, body)

	return err
}

func (c *Client) report(ctx context.Context, logger *zap.Logger, send func(context.Context, string, string) error, subject, body string) {
	// the operation may have failed because ctx was cancelled, the notice
	// still has to go out
	if err := send(context.WithoutCancel(ctx), subject, body); err != nil {
		const msg = "unable to send notification"
		logger.Error(msg, zap.Error(err), zap.String("subject", subject))
		return
	}

	logger.Debug("notification sent", zap.String("subject", subject))
}

func (c *Client) opLogger(op string) *zap.Logger {
	return c.logger.With(
		zap.String("operation", op),
		zap.String("operationId", uuid.NewString()),
	)
}

func (c *Client) edgeURL(e Edge) string {
	return c.baseURL + "/" + c.version + "/" + url.PathEscape(c.pageID) + "/" + e.String()
}

// objectURL returns the url of a page post. Post ids returned by the feed edge
// are already prefixed with the page id and are used as is.
func (c *Client) objectURL(postID string) string {
	id := c.pageID + "_" + postID
	if strings.HasPrefix(postID, c.pageID+"_") {
		id = postID
	}

	return c.baseURL + "/" + c.version + "/" + url.PathEscape(id)
}

// redact keeps the access token out of transport errors, net/http puts the
// full request url, query included, into the message.
func redact(err error, endpoint, token string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: endpoint, Err: urlErr.Err}
	}

	if token != "" && strings.Contains(err.Error(), token) {
		return errors.New(strings.ReplaceAll(err.Error(), token, redacted))
	}

	return err
}

func encode(r Response) string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(r))
	}

	return string(b)
}
