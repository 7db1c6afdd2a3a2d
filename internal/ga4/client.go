// Package ga4 pulls daily reports from the Google Analytics 4 Data API and
// renders them as the CSV shapes the parser accepts.
package ga4

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/googleauth"
	"github.com/Veraticus/tally/internal/service"
	"google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultPageSize is the number of rows requested per RunReport call.
const DefaultPageSize = 10000

// Config holds GA4 client configuration.
type Config struct {
	Credentials googleauth.Credentials
	PropertyID  string
	Retry       service.RetryOptions
	PageSize    int64
}

// Validate ensures the property is named.
func (c *Config) Validate() error {
	if strings.TrimPrefix(c.PropertyID, "properties/") == "" {
		return fmt.Errorf("ga4 property id is required: %w", common.ErrMissingConfig)
	}
	return nil
}

// ReportRunner runs one Data API report request.
type ReportRunner interface {
	RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error)
}

type apiRunner struct {
	svc *analyticsdata.Service
}

func (r apiRunner) RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
	return r.svc.Properties.RunReport(property, req).Context(ctx).Do()
}

// Client fetches GA4 reports for one property.
type Client struct {
	runner    ReportRunner
	logger    *slog.Logger
	property  string
	retryOpts service.RetryOptions
	pageSize  int64
}

// NewClient authenticates with cfg.Credentials and creates a client.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		httpClient, err := cfg.Credentials.HTTPClient(ctx, googleauth.ScopeAnalyticsReadonly)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate with google: %w", err)
		}
		opts = []option.ClientOption{option.WithHTTPClient(httpClient)}
	}
	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create analytics data service: %w", err)
	}
	return NewClientWithRunner(apiRunner{svc: svc}, cfg)
}

// NewClientWithRunner creates a client over an existing runner.
func NewClientWithRunner(runner ReportRunner, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = common.DefaultRetryOptions()
	}
	property := cfg.PropertyID
	if !strings.HasPrefix(property, "properties/") {
		property = "properties/" + property
	}
	return &Client{
		runner:    runner,
		logger:    slog.Default().With("component", "ga4"),
		property:  property,
		retryOpts: cfg.Retry,
		pageSize:  cfg.PageSize,
	}, nil
}

// PropertyRef returns the "properties/<id>" resource name.
func (c *Client) PropertyRef() string {
	return c.property
}

// Fetch runs the sessions, events and conversions reports for [start, end]
// and returns them as labeled CSV texts.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) (map[string]string, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	c.logger.Info("fetching GA4 reports",
		"property", c.property,
		"start_date", start.Format("2006-01-02"),
		"end_date", end.Format("2006-01-02"))

	files := make(map[string]string, len(reports))
	for _, r := range reports {
		rows, err := c.runAll(ctx, r.request(start, end))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s report: %w", r.name, err)
		}
		text, err := r.render(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s report: %w", r.name, err)
		}
		files[r.label] = text
		c.logger.Debug("fetched GA4 report", "report", r.name, "rows", len(rows))
	}
	return files, nil
}

// runAll pages through one report.
func (c *Client) runAll(ctx context.Context, req *analyticsdata.RunReportRequest) ([]*analyticsdata.Row, error) {
	var all []*analyticsdata.Row
	offset := int64(0)

	for {
		req.Limit = c.pageSize
		req.Offset = offset

		var resp *analyticsdata.RunReportResponse
		retryErr := common.WithRetry(ctx, func() error {
			var err error
			resp, err = c.runner.RunReport(ctx, c.property, req)
			if err != nil {
				return classifyError(err)
			}
			return nil
		}, c.retryOpts)
		if retryErr != nil {
			return nil, retryErr
		}

		all = append(all, resp.Rows...)
		offset += int64(len(resp.Rows))

		if int64(len(resp.Rows)) < c.pageSize || offset >= resp.RowCount {
			break
		}
	}
	return all, nil
}

// classifyError marks quota and server errors as retryable.
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &common.RetryableError{Err: errors.Join(common.ErrProviderRateLimit, err), Retryable: true}
		case apiErr.Code >= http.StatusInternalServerError:
			return &common.RetryableError{Err: err, Retryable: true}
		default:
			return &common.RetryableError{Err: fmt.Errorf("ga4 API error: %w", err), Retryable: false}
		}
	}
	return err
}
