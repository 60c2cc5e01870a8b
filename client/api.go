package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/habedi/uniboard/pkg/validation"
	"github.com/rs/zerolog/log"
)

// Dashboard and administration endpoints.
const (
	DashboardSummaryPath      = "/api/dashboard/summary/"
	DashboardKPIPath          = "/api/dashboard/kpi/"
	DashboardPublicationsPath = "/api/dashboard/publications/"
	DashboardResearchPath     = "/api/dashboard/research/"
	DashboardStudentsPath     = "/api/dashboard/students/"
	DashboardFiltersPath      = "/api/dashboard/filters/"
	DashboardReportsPath      = "/api/dashboard/reports/"

	UploadPath           = "/api/data-upload/upload/"
	UploadLogsPath       = "/api/data-upload/logs/"
	UploadStatisticsPath = "/api/data-upload/statistics/"
	UploadDeletePath     = "/api/data-upload/delete/"

	UsersPath      = "/api/users/"
	CreateUserPath = "/api/users/create/"
)

// --- JSON helpers (kept private) ---

// decodeInto unmarshals body into out, logging a preview on failure.
func decodeInto(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		log.Error().Err(err).Str("body_preview", string(body[:min(len(body), 200)])).Msg("Failed to parse API response JSON")
		return fmt.Errorf("failed to parse API response: %w", err)
	}
	return nil
}

// getJSON issues a GET and decodes the response into T.
func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	body, err := c.Request(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := decodeInto(body, out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Auth ---

// Login exchanges credentials for a token pair. It never triggers a token
// refresh: a 401 here means the credentials were rejected.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, &APIError{Kind: ValidationFailure, Message: err.Error(), Err: err}
	}
	r, err := newRequest(http.MethodPost, LoginPath, req, nil)
	if err != nil {
		return nil, err
	}
	r.noRefresh = true
	body, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}
	var resp LoginResponse
	if err := decodeInto(body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, &APIError{Kind: ServerFailure, Status: http.StatusOK, Message: "login response is missing tokens", Body: body}
	}
	return &resp, nil
}

// Logout tells the backend to revoke refreshToken. It does not touch the session store.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	r, err := newRequest(http.MethodPost, LogoutPath, LogoutRequest{RefreshToken: refreshToken}, nil)
	if err != nil {
		return err
	}
	r.noRefresh = true
	_, err = c.send(ctx, r)
	return err
}

// Me returns the user the stored access token belongs to.
func (c *Client) Me(ctx context.Context) (*CurrentUser, error) {
	return getJSON[CurrentUser](ctx, c, MePath, nil)
}

// --- Dashboard ---

// DashboardSummary fetches the headline totals.
func (c *Client) DashboardSummary(ctx context.Context, f DashboardFilters) (*SummaryResponse, error) {
	log.Info().Msg("Fetching dashboard summary")
	return getJSON[SummaryResponse](ctx, c, DashboardSummaryPath, f.Values())
}

// KPIData fetches department KPI rows.
func (c *Client) KPIData(ctx context.Context, f DashboardFilters) (*KPIResponse, error) {
	log.Info().Msg("Fetching KPI data")
	return getJSON[KPIResponse](ctx, c, DashboardKPIPath, f.Values())
}

// Publications fetches publication rows and yearly trends.
func (c *Client) Publications(ctx context.Context, f DashboardFilters) (*PublicationsResponse, error) {
	log.Info().Msg("Fetching publications data")
	return getJSON[PublicationsResponse](ctx, c, DashboardPublicationsPath, f.Values())
}

// Research fetches research budget rows and per-department totals.
func (c *Client) Research(ctx context.Context, f DashboardFilters) (*ResearchResponse, error) {
	log.Info().Msg("Fetching research data")
	return getJSON[ResearchResponse](ctx, c, DashboardResearchPath, f.Values())
}

// Students fetches student rows and statistics.
func (c *Client) Students(ctx context.Context, f DashboardFilters) (*StudentsResponse, error) {
	log.Info().Msg("Fetching students data")
	return getJSON[StudentsResponse](ctx, c, DashboardStudentsPath, f.Values())
}

// AvailableFilters fetches the selectable filter values.
func (c *Client) AvailableFilters(ctx context.Context) (*FiltersResponse, error) {
	return getJSON[FiltersResponse](ctx, c, DashboardFiltersPath, nil)
}

// Report fetches one page of a detailed report.
func (c *Client) Report(ctx context.Context, reportType string, f ReportFilters) (*ReportResponse, error) {
	if err := validation.ValidateReportType(reportType); err != nil {
		return nil, &APIError{Kind: ValidationFailure, Message: err.Error(), Err: err}
	}
	log.Info().Str("report", reportType).Msg("Fetching report data")
	path := DashboardReportsPath + url.PathEscape(strings.ToLower(reportType)) + "/"
	return getJSON[ReportResponse](ctx, c, path, f.Values())
}

// --- Data upload ---

// UploadLogs fetches one page of upload history.
func (c *Client) UploadLogs(ctx context.Context, page, limit int) (*UploadLogsResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return getJSON[UploadLogsResponse](ctx, c, UploadLogsPath, q)
}

// DataStatistics fetches stored record counts per data set.
func (c *Client) DataStatistics(ctx context.Context) (*DataStatistics, error) {
	return getJSON[DataStatistics](ctx, c, UploadStatisticsPath, nil)
}

// DeleteUpload removes the records created by one upload.
func (c *Client) DeleteUpload(ctx context.Context, logID int) (*DeleteUploadResponse, error) {
	if err := validation.ValidatePositiveID("upload log ID", logID); err != nil {
		return nil, &APIError{Kind: ValidationFailure, Message: err.Error(), Err: err}
	}
	body, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("%s%d/", UploadDeletePath, logID), nil, nil)
	if err != nil {
		return nil, err
	}
	var resp DeleteUploadResponse
	if len(body) == 0 {
		return &resp, nil
	}
	if err := decodeInto(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Users ---

// ListUsers fetches all user accounts.
func (c *Client) ListUsers(ctx context.Context) (*UsersResponse, error) {
	return getJSON[UsersResponse](ctx, c, UsersPath, nil)
}

// CreateUser creates a user account.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, &APIError{Kind: ValidationFailure, Message: err.Error(), Err: err}
	}
	body, err := c.Request(ctx, http.MethodPost, CreateUserPath, req, nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := decodeInto(body, &user); err != nil {
		return nil, err
	}
	log.Info().Str("username", user.Username).Msg("User created")
	return &user, nil
}
