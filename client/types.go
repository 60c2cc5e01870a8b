package client

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/habedi/uniboard/session"
)

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	User         session.UserSummary `json:"user"`
}

// RefreshRequest is the body of the refresh endpoint.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the newly issued access token.
type RefreshResponse struct {
	Access string `json:"access"`
}

// LogoutRequest is the body of the logout endpoint.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// CurrentUser is returned by the current-user endpoint.
type CurrentUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// DashboardFilters narrows dashboard queries. Zero values are omitted.
type DashboardFilters struct {
	Year       int
	Semester   string
	College    string
	Department string
}

// Values encodes the filters as query parameters.
func (f DashboardFilters) Values() url.Values {
	q := url.Values{}
	if f.Year != 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if f.Semester != "" {
		q.Set("semester", f.Semester)
	}
	if f.College != "" {
		q.Set("college", f.College)
	}
	if f.Department != "" {
		q.Set("department", f.Department)
	}
	return q
}

// ReportFilters adds paging to DashboardFilters.
type ReportFilters struct {
	DashboardFilters
	Page  int
	Limit int
}

// Values encodes the filters as query parameters.
func (f ReportFilters) Values() url.Values {
	q := f.DashboardFilters.Values()
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// AppliedFilters echoes the filters the backend applied.
type AppliedFilters struct {
	Year       json.RawMessage `json:"year,omitempty"`
	Semester   string          `json:"semester,omitempty"`
	College    string          `json:"college,omitempty"`
	Department string          `json:"department,omitempty"`
}

// Summary holds the headline dashboard totals.
type Summary struct {
	TotalStudents         int64   `json:"total_students"`
	TotalPublications     int64   `json:"total_publications"`
	TotalResearchProjects int64   `json:"total_research_projects"`
	TotalResearchBudget   float64 `json:"total_research_budget"`
}

// SummaryResponse is returned by the dashboard summary endpoint.
// Year is either a number or the string "all".
type SummaryResponse struct {
	Year     json.RawMessage `json:"year"`
	Semester string          `json:"semester"`
	College  string          `json:"college"`
	Summary  Summary         `json:"summary"`
}

// Record is one row of uploaded data. Column names vary by data set.
type Record map[string]any

// KPIResponse is returned by the KPI endpoint.
type KPIResponse struct {
	Count   int            `json:"count"`
	Data    []Record       `json:"data"`
	Filters AppliedFilters `json:"filters"`
}

// PublicationTrend is the publication count for one year.
type PublicationTrend struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// PublicationsResponse is returned by the publications endpoint.
type PublicationsResponse struct {
	Count   int                `json:"count"`
	Data    []Record           `json:"data"`
	Trends  []PublicationTrend `json:"trends"`
	Filters AppliedFilters     `json:"filters"`
}

// DepartmentResearchStats aggregates research projects per department.
type DepartmentResearchStats struct {
	Department   string  `json:"department"`
	ProjectCount int     `json:"project_count"`
	TotalBudget  float64 `json:"total_budget"`
}

// ResearchResponse is returned by the research endpoint.
type ResearchResponse struct {
	Count        int                       `json:"count"`
	Data         []Record                  `json:"data"`
	ByDepartment []DepartmentResearchStats `json:"by_department"`
	Filters      AppliedFilters            `json:"filters"`
}

// StudentStatistics aggregates students by program and status.
type StudentStatistics struct {
	TotalStudents int            `json:"total_students"`
	ByProgram     map[string]int `json:"by_program"`
	ByStatus      map[string]int `json:"by_status"`
}

// StudentsResponse is returned by the students endpoint.
type StudentsResponse struct {
	Count      int               `json:"count"`
	Data       []Record          `json:"data"`
	Statistics StudentStatistics `json:"statistics"`
	Filters    AppliedFilters    `json:"filters"`
}

// FiltersResponse lists the filter values the backend knows about.
type FiltersResponse struct {
	Years       []int    `json:"years"`
	Colleges    []string `json:"colleges"`
	Departments []string `json:"departments"`
	Semesters   []string `json:"semesters"`
}

// Pagination describes one page of a report.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ReportResponse is returned by the detailed report endpoint.
type ReportResponse struct {
	ReportType string         `json:"report_type"`
	Data       []Record       `json:"data"`
	Pagination Pagination     `json:"pagination"`
	Filters    AppliedFilters `json:"filters"`
}

// UploadResponse is returned after a data file upload.
type UploadResponse struct {
	UploadLogID      int    `json:"upload_log_id"`
	Status           string `json:"status"`
	DataType         string `json:"data_type"`
	TotalRecords     int    `json:"total_records"`
	ProcessedRecords int    `json:"processed_records"`
	Message          string `json:"message"`
}

// UploadLog is one upload history entry.
type UploadLog struct {
	ID               int     `json:"id"`
	Filename         string  `json:"filename"`
	FileSize         *int64  `json:"file_size"`
	Status           string  `json:"status"`
	ErrorMessage     *string `json:"error_message"`
	TotalRecords     *int    `json:"total_records"`
	ProcessedRecords *int    `json:"processed_records"`
	UploadedAt       string  `json:"uploaded_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// UploadLogsResponse is one page of upload history.
type UploadLogsResponse struct {
	Logs  []UploadLog `json:"logs"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// DataTypeStatistics counts stored records of one type.
type DataTypeStatistics struct {
	Count int    `json:"count"`
	Type  string `json:"type"`
}

// DataStatistics counts stored records per data set.
type DataStatistics struct {
	KPI         DataTypeStatistics `json:"kpi"`
	Publication DataTypeStatistics `json:"publication"`
	Research    DataTypeStatistics `json:"research"`
	Student     DataTypeStatistics `json:"student"`
}

// DeleteUploadResponse is returned after deleting an upload.
type DeleteUploadResponse struct {
	Message        string `json:"message"`
	DeletedRecords int    `json:"deleted_records"`
}

// CreateUserRequest is the body of the user creation endpoint.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin user"`
}

// User is a user account as listed by the backend.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// UsersResponse lists user accounts.
type UsersResponse struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}
