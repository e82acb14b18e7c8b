package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devlin/erpmirror/internal/domain"
	"github.com/devlin/erpmirror/internal/logger"
	"github.com/go-resty/resty/v2"
)

// MaxPageSize is the hard page size limit enforced by the remote ERP API.
// Requests asking for more are clamped, never rejected.
const MaxPageSize = 100

// unknownEmployeeName is the placeholder cached for failed employee lookups
// so repeated failing lookups do not hit the remote API again within the TTL.
const unknownEmployeeName = "Unknown"

// ErrRemoteFetch indicates a page or employee fetch failed after the retry
// budget was exhausted (transient HTTP errors or request timeouts).
var ErrRemoteFetch = fmt.Errorf("remote fetch failed")

// APIError represents a non-retryable HTTP failure from the remote ERP API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("erp api error: status %d: %s", e.StatusCode, e.Body)
}

// RawRecord is one undecoded invoice or employee object from the remote API.
// The remote payload shape is heterogeneous, so field extraction is deferred
// to the normalization layer. Numbers are kept as json.Number to avoid float
// precision loss on money fields.
type RawRecord map[string]any

// Config holds the remote ERP client configuration. All values are injected
// at construction; the client keeps no ambient global state.
type Config struct {
	BaseURL          string
	APIKey           string
	RequestTimeout   time.Duration // per-attempt timeout, independent of backoff
	MaxRetries       int           // retries after the first attempt
	RetryBackoff     time.Duration // base wait, doubled per attempt by resty
	MaxInFlight      int           // concurrency permit shared across all call types
	EmployeeCacheTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 2
	}
	if c.EmployeeCacheTTL <= 0 {
		c.EmployeeCacheTTL = 30 * time.Minute
	}
}

// Client talks to the remote ERP API. It owns pagination mechanics, the
// retry/backoff policy, the in-flight concurrency permit, and the short-lived
// employee name cache, so the orchestration layer never sees HTTP details.
type Client struct {
	http    *resty.Client
	permits chan struct{}
	cache   *employeeCache
	logger  *logger.Logger
}

// NewClient creates a remote ERP client.
// Parameters:
//   - cfg: client configuration; zero fields get defaults.
//   - log: logger instance.
//
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config, log *logger.Logger) *Client {
	cfg.applyDefaults()

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("X-Api-Key", cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryBackoff).
		SetRetryMaxWaitTime(cfg.RetryBackoff * 16).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				// Transport failures and per-attempt timeouts are transient.
				return true
			}
			return isRetryableStatus(r.StatusCode())
		})

	return &Client{
		http:    client,
		permits: make(chan struct{}, cfg.MaxInFlight),
		cache:   newEmployeeCache(cfg.EmployeeCacheTTL),
		logger:  log,
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 502, 503, 504:
		return true
	}
	return false
}

// acquire takes a concurrency permit, queueing the caller until one is free.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.permits
}

// FetchPage fetches one page of raw invoice records.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - page: 1-based page number.
//   - pageSize: requested page size; clamped to MaxPageSize.
//
// Returns:
//   - []RawRecord: decoded invoice objects; empty when past the last page.
//   - error: ErrRemoteFetch after exhausted retries, *APIError for
//     non-retryable HTTP failures.
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) ([]RawRecord, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(pageSize),
		}).
		Get("/invoices")
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRemoteFetch, page, err)
	}
	if resp.IsError() {
		if isRetryableStatus(resp.StatusCode()) {
			// Retry budget already spent inside resty.
			return nil, fmt.Errorf("%w: page %d: status %d", ErrRemoteFetch, page, resp.StatusCode())
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	records, err := decodeRecords(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode invoices page %d: %w", page, err)
	}
	return records, nil
}

// ResolveEmployeeName resolves an employee id to a display name. Cache hits
// within the TTL return immediately; misses issue a single-employee fetch and
// cache the result, including the negative "Unknown" result, so a failing
// lookup is not repeated on every record. This call never returns an error:
// any failure degrades to "Unknown".
func (c *Client) ResolveEmployeeName(ctx context.Context, employeeID int64) string {
	if name, ok := c.cache.get(employeeID); ok {
		return name
	}

	emp, err := c.fetchEmployee(ctx, employeeID)
	if err != nil {
		c.logger.WithField(logger.FieldEmployeeID, employeeID).
			WithError(err).Warn("Employee lookup failed, caching placeholder")
		c.cache.set(employeeID, unknownEmployeeName)
		return unknownEmployeeName
	}

	name := emp.FullName
	if name == "" {
		name = unknownEmployeeName
	}
	c.cache.set(employeeID, name)
	return name
}

// PreloadEmployees warms the employee name cache with a single bulk fetch.
// Failures are swallowed: lazily-resolved lookups remain the fallback path.
// The fetched records are returned so the caller may mirror them locally.
func (c *Client) PreloadEmployees(ctx context.Context) []domain.Employee {
	employees, err := c.listEmployees(ctx, MaxPageSize)
	if err != nil {
		c.logger.WithError(err).Warn("Employee preload failed, continuing with lazy resolution")
		return nil
	}

	for _, emp := range employees {
		c.cache.set(emp.ID, emp.FullName)
	}
	c.logger.WithField(logger.FieldCount, len(employees)).Debug("Employee cache preloaded")
	return employees
}

func (c *Client) fetchEmployee(ctx context.Context, employeeID int64) (*domain.Employee, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/employees/%d", employeeID))
	if err != nil {
		return nil, fmt.Errorf("%w: employee %d: %v", ErrRemoteFetch, employeeID, err)
	}
	if resp.IsError() {
		if isRetryableStatus(resp.StatusCode()) {
			return nil, fmt.Errorf("%w: employee %d: status %d", ErrRemoteFetch, employeeID, resp.StatusCode())
		}
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var raw RawRecord
	if err := decodeInto(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode employee %d: %w", employeeID, err)
	}
	emp := employeeFromRaw(raw)
	if emp.ID == 0 {
		emp.ID = employeeID
	}
	return &emp, nil
}

func (c *Client) listEmployees(ctx context.Context, limit int) ([]domain.Employee, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get("/employees")
	if err != nil {
		return nil, fmt.Errorf("%w: employees: %v", ErrRemoteFetch, err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	raws, err := decodeRecords(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode employees: %w", err)
	}

	employees := make([]domain.Employee, 0, len(raws))
	for _, raw := range raws {
		emp := employeeFromRaw(raw)
		if emp.ID == 0 {
			continue
		}
		employees = append(employees, emp)
	}
	return employees, nil
}

// employeeFromRaw maps a raw employee object to the domain model, tolerating
// the same key variance the invoice payloads exhibit.
func employeeFromRaw(raw RawRecord) domain.Employee {
	emp := domain.Employee{
		FirstName: stringValue(raw, "first_name", "firstname", "given_name"),
		LastName:  stringValue(raw, "last_name", "lastname", "family_name"),
	}
	emp.ID = int64Value(raw, "id", "employee_id")
	emp.FullName = JoinName(emp.FirstName, emp.LastName)
	if emp.FullName == "" {
		emp.FullName = stringValue(raw, "name", "full_name")
	}
	return emp
}

// JoinName combines first and last name fields into a display name.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func stringValue(raw RawRecord, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func int64Value(raw RawRecord, keys ...string) int64 {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case json.Number:
			if id, err := n.Int64(); err == nil {
				return id
			}
		case string:
			if id, err := strconv.ParseInt(n, 10, 64); err == nil {
				return id
			}
		case float64:
			return int64(n)
		}
	}
	return 0
}

// decodeRecords decodes a JSON array of objects, preserving numbers as
// json.Number so money amounts survive without float rounding.
func decodeRecords(body []byte) ([]RawRecord, error) {
	var records []RawRecord
	if err := decodeInto(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func decodeInto(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(out)
}
