package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ArtifactEntry is one row in the generated feed document. Display fields
// map 1:1 from Record plus the enrichment labels supplied by the classifier.
type ArtifactEntry struct {
	ExternalID        string    `json:"external_id" validate:"required"`
	ReferenceCode     string    `json:"reference_code" validate:"required,alphanum"`
	Title             string    `json:"title" validate:"required"`
	Description       string    `json:"description"`
	City              string    `json:"city"`
	State             string    `json:"state"`
	Country           string    `json:"country"`
	EmploymentKind    string    `json:"employment_kind"`
	WorkArrangement   string    `json:"work_arrangement"`
	AssignedOwnerName string    `json:"assigned_owner_name"`
	Function          string    `json:"function"`
	Industry          string    `json:"industry"`
	Seniority         string    `json:"seniority"`
	PostedAt          time.Time `json:"posted_at"`
}

// MappingError indicates a record could not be converted to an artifact
// entry. The record is skipped for the cycle and retried on the next fetch.
type MappingError struct {
	ExternalID string
	Message    string
	Cause      error
}

func (e *MappingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mapping error for record %s: %s: %v", e.ExternalID, e.Message, e.Cause)
	}
	return fmt.Sprintf("mapping error for record %s: %s", e.ExternalID, e.Message)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}

var entryValidator = validator.New()

// NewEntry builds an ArtifactEntry from a record, its enrichment labels, and
// the reference code issued by the registry. Missing required fields produce
// a MappingError.
func NewEntry(rec Record, labels Classification, referenceCode string) (*ArtifactEntry, error) {
	entry := &ArtifactEntry{
		ExternalID:        rec.ExternalID,
		ReferenceCode:     referenceCode,
		Title:             rec.Title,
		Description:       rec.Description,
		City:              rec.Location.City,
		State:             rec.Location.State,
		Country:           rec.Location.Country,
		EmploymentKind:    rec.EmploymentKind,
		WorkArrangement:   rec.WorkArrangement,
		AssignedOwnerName: rec.AssignedOwnerName,
		Function:          labels.Function,
		Industry:          labels.Industry,
		Seniority:         labels.Seniority,
		PostedAt:          rec.LastModifiedAt,
	}

	if err := entry.Validate(); err != nil {
		return nil, &MappingError{
			ExternalID: rec.ExternalID,
			Message:    "record is missing required fields",
			Cause:      err,
		}
	}

	return entry, nil
}

// Validate checks the entry against its struct tags.
func (e *ArtifactEntry) Validate() error {
	return entryValidator.Struct(e)
}
