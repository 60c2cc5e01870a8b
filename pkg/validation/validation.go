package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	MinWorkers = 1
	MaxWorkers = 20

	// MaxUploadSize matches the limit the backend enforces.
	MaxUploadSize = 50 * 1024 * 1024
)

// UploadExtensions lists the file types the data upload endpoint accepts.
var UploadExtensions = []string{".csv", ".xlsx", ".xls"}

// ReportTypes lists the detailed report types the backend serves.
var ReportTypes = []string{"performance", "publications", "research", "students"}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Struct validates v using its `validate` struct tags and returns a
// readable error naming the failing fields.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s cannot be empty", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func ValidateWorkerCount(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	return nil
}

func ValidatePositiveID(fieldName string, id int) error {
	if id <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %d", fieldName, id)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidateReportType(reportType string) error {
	for _, t := range ReportTypes {
		if strings.EqualFold(reportType, t) {
			return nil
		}
	}
	return fmt.Errorf("invalid report type: %s (must be one of: %s)", reportType, strings.Join(ReportTypes, ", "))
}

// ValidateUploadFile checks that path is a regular file with an accepted
// extension and size.
func ValidateUploadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := false
	for _, e := range UploadExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("unsupported file type %q (allowed: %s)", ext, strings.Join(UploadExtensions, ", "))
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	if info.Size() > MaxUploadSize {
		return fmt.Errorf("%s is larger than %d MB", path, MaxUploadSize/(1024*1024))
	}
	return nil
}
