// Package client talks to the comments HTTP API and implements
// thread.Backend on top of it.
package client

import (
	"CommentThread/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	viewerHeader = "X-User-ID"
	maxErrorBody = 4096
)

type Options struct {
	BaseURL string
	UserID  string
	Timeout time.Duration
	// RetryMax bounds retries of reads. Writes are never retried.
	RetryMax int
}

type Client struct {
	baseURL string
	userID  string
	reader  *retryablehttp.Client
	writer  *http.Client
	log     *zap.Logger
}

func New(opts Options, log *zap.Logger) *Client {
	log = log.Named("client")

	reader := retryablehttp.NewClient()
	reader.HTTPClient.Timeout = opts.Timeout
	reader.RetryMax = opts.RetryMax
	reader.RetryWaitMin = 100 * time.Millisecond
	reader.RetryWaitMax = 2 * time.Second
	reader.Logger = leveledLogger{log.Sugar()}
	// Hand the last response back so its error body can be decoded.
	reader.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		userID:  opts.UserID,
		reader:  reader,
		writer:  &http.Client{Timeout: opts.Timeout},
		log:     log,
	}
}

func (c *Client) FetchComments(ctx context.Context, postID string, limit, offset int) (*models.CommentPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := c.baseURL + "/posts/" + url.PathEscape(postID) + "/comments?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req.Header)

	resp, err := c.reader.Do(req)
	if err != nil {
		c.log.Warn("Failed to fetch comments", zap.String("post_id", postID), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	page := &models.CommentPage{}
	if err := decode(resp, page); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) CreateComment(ctx context.Context, postID, content string, parentID *string, images []string) (*models.CommentRecord, error) {
	body := models.CreateCommentRequest{Content: content, ParentID: parentID, Images: images}
	rec := &models.CommentRecord{}
	if err := c.write(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", body, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) UpdateComment(ctx context.Context, commentID, content string, images []string) (*models.CommentRecord, error) {
	body := models.UpdateCommentRequest{Content: content, Images: images}
	rec := &models.CommentRecord{}
	if err := c.write(ctx, http.MethodPatch, "/comments/"+url.PathEscape(commentID), body, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.write(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

func (c *Client) ToggleCommentLike(ctx context.Context, commentID string) (*models.LikeState, error) {
	state := &models.LikeState{}
	if err := c.write(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/like", nil, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) write(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.writer.Do(req)
	if err != nil {
		c.log.Warn("Request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return decode(resp, out)
}

func (c *Client) authorize(h http.Header) {
	if c.userID != "" {
		h.Set(viewerHeader, c.userID)
	}
}

// decode reads a JSON body into out, or turns a non-2xx answer into an
// APIError. It always closes the body.
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body) == nil {
			apiErr.Kind = body.Error
			apiErr.Message = body.Message
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
