package models

import (
	"time"

	"github.com/google/uuid"
)

// Grant is the normalized, storage-ready shape of one funding opportunity.
// OpportunityID is the natural key: it is assigned upstream, stable across
// extract publications, and is the sole field used for upsert matching.
type Grant struct {
	ID                 uuid.UUID  `json:"id"`
	OpportunityID      string     `json:"opportunity_id"`
	OpportunityNumber  string     `json:"opportunity_number"`
	Title              string     `json:"title"`
	Category           string     `json:"category"`
	FundingType        string     `json:"funding_type"`
	ActivityCategories []string   `json:"activity_categories"`
	EligibleApplicants []string   `json:"eligible_applicants"`
	AgencyName         string     `json:"agency_name"`
	AgencyCode         string     `json:"agency_code"`
	PostDate           *time.Time `json:"post_date"`
	CloseDate          *time.Time `json:"close_date"`
	TotalFunding       *int64     `json:"total_funding"`
	AwardCeiling       *int64     `json:"award_ceiling"`
	AwardFloor         *int64     `json:"award_floor"`
	CostSharing        bool       `json:"cost_sharing"`
	Description        string     `json:"description"`
	ContactName        string     `json:"grantor_contact_name"`
	ContactEmail       string     `json:"grantor_contact_email"`
	ContactPhone       string     `json:"grantor_contact_phone"`
	ContactNameSource  string     `json:"contact_name_source,omitempty"`  // "provided" | "inferred-from-email"
	ContactPhoneValid  *bool      `json:"contact_phone_valid,omitempty"`
	ContactPhoneSource string     `json:"contact_phone_source,omitempty"` // "given" | "assumed"
	AdditionalInfoURL  string     `json:"additional_info_url"`
	Source             string     `json:"source"`
	ProcessingStatus   string     `json:"processing_status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// FailedItem records one record-level failure inside a pipeline run.
type FailedItem struct {
	OpportunityID string `json:"opportunity_id"`
	Error         string `json:"error"`
}

// PipelineRunStats summarizes one pipeline invocation. It is created when
// the run starts, mutated by the store while batches resolve, and persisted
// exactly once at end of run. Persisted rows are never updated.
type PipelineRunStats struct {
	ID          uuid.UUID    `json:"id"`
	Source      string       `json:"source"`
	Total       int          `json:"total"`
	New         int          `json:"new"`
	Updated     int          `json:"updated"`
	Unchanged   int          `json:"unchanged"`
	Failed      int          `json:"failed"`
	Status      string       `json:"status"` // running, completed, failed
	Error       string       `json:"error,omitempty"`
	FailedItems []FailedItem `json:"failed_items,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// NewRunStats starts a stats record for one invocation.
func NewRunStats(source string, startedAt time.Time) *PipelineRunStats {
	return &PipelineRunStats{
		ID:        uuid.New(),
		Source:    source,
		Status:    RunStatusRunning,
		StartedAt: startedAt,
	}
}
