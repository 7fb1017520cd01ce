package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lilasstudio/crmlink/internal/config"
	"github.com/lilasstudio/crmlink/internal/crm/domain"
	obsmetrics "github.com/lilasstudio/crmlink/internal/observability/metrics"
	"go.uber.org/zap"
)

type candidatePayload struct {
	CustomerID   string `json:"customer_id"`
	StableHashID string `json:"stable_hash_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
}

type packagePayload struct {
	PackageName    string     `json:"package_name"`
	TotalUnits     int        `json:"total_units"`
	RemainingUnits int        `json:"remaining_units"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

type directoryResponse struct {
	Customers []candidatePayload `json:"customers"`
}

type ledgerResponse struct {
	Packages []packagePayload `json:"packages"`
}

// Client implements both domain.Directory and domain.Ledger over the CRM's
// HTTP API. Every call carries its own timeout; timeouts and 5xx responses
// surface as retryable upstream errors.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.CRMConfig, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		log:     log.Named("crm.client"),
	}
}

func (c *Client) FindByPhone(ctx context.Context, phone string) ([]domain.Candidate, error) {
	values := url.Values{}
	values.Set("phone", phone)
	return c.queryDirectory(ctx, values)
}

func (c *Client) FindByEmail(ctx context.Context, email string) ([]domain.Candidate, error) {
	values := url.Values{}
	values.Set("email", email)
	return c.queryDirectory(ctx, values)
}

func (c *Client) SearchByName(ctx context.Context, name string) ([]domain.Candidate, error) {
	values := url.Values{}
	values.Set("name", name)
	values.Set("fuzzy", "true")
	return c.queryDirectory(ctx, values)
}

func (c *Client) Packages(ctx context.Context, stableHashID string) ([]domain.PackageRecord, error) {
	start := time.Now()
	var payload ledgerResponse
	err := c.doGet(ctx, "/v1/customers/"+url.PathEscape(stableHashID)+"/packages", nil, &payload)
	obsmetrics.Sync().ObserveUpstreamCall(obsmetrics.UpstreamEndpointLedger, upstreamResult(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	records := make([]domain.PackageRecord, 0, len(payload.Packages))
	for _, pkg := range payload.Packages {
		records = append(records, domain.PackageRecord{
			PackageName:    strings.TrimSpace(pkg.PackageName),
			TotalUnits:     pkg.TotalUnits,
			RemainingUnits: pkg.RemainingUnits,
			ExpiresAt:      pkg.ExpiresAt,
		})
	}
	return records, nil
}

func (c *Client) queryDirectory(ctx context.Context, values url.Values) ([]domain.Candidate, error) {
	start := time.Now()
	var payload directoryResponse
	err := c.doGet(ctx, "/v1/customers/search", values, &payload)
	obsmetrics.Sync().ObserveUpstreamCall(obsmetrics.UpstreamEndpointDirectory, upstreamResult(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(payload.Customers))
	for _, raw := range payload.Customers {
		candidate := domain.Candidate{
			CustomerID:   strings.TrimSpace(raw.CustomerID),
			StableHashID: strings.TrimSpace(raw.StableHashID),
			Name:         domain.NormalizeName(raw.Name),
			Phone:        domain.NormalizePhone(raw.Phone),
			Email:        domain.NormalizeEmail(raw.Email),
		}
		if candidate.CustomerID == "" {
			continue
		}
		if candidate.StableHashID == "" {
			candidate.StableHashID = domain.StableHashID(raw.Name, raw.Phone, raw.Email)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (c *Client) doGet(ctx context.Context, path string, values url.Values, out any) error {
	if c.baseURL == "" {
		return domain.ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("crm responded %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("crm responded %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	default:
		return fmt.Errorf("crm responded %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode crm response: %w", err)
	}
	return nil
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("crm call: %w", domain.ErrUpstreamTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("crm call: %w", domain.ErrUpstreamTimeout)
	}
	return fmt.Errorf("crm call: %w: %v", domain.ErrUpstreamUnavailable, err)
}

func upstreamResult(err error) string {
	switch {
	case err == nil:
		return obsmetrics.UpstreamResultOK
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return obsmetrics.UpstreamResultTimeout
	default:
		return obsmetrics.UpstreamResultError
	}
}
