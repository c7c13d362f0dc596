package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mchen04/Grantify.ai-sub000/internal/models"
)

// Records inside one batch are written concurrently; batches themselves
// run sequentially so a failed batch surfaces before the next one starts.
const upsertBatchSize = 50

// Pool is the subset of pgxpool.Pool the store needs. Declared here so
// tests can substitute a mock connection.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool Pool
}

func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// ExistingOpportunityIDs returns the natural keys already persisted.
// The transformer uses this set to skip cleaning for known records.
func (s *Store) ExistingOpportunityIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, "SELECT opportunity_id FROM grants")
	if err != nil {
		return nil, fmt.Errorf("error querying existing opportunity ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning opportunity id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunity ids: %w", err)
	}
	return ids, nil
}

// SaveGrants upserts grants in sequential batches, writing the records of
// each batch concurrently, and accumulates per-record outcomes into stats.
// A record failure is counted and recorded but never aborts the run; the
// returned error is non-nil only when every single record failed.
func (s *Store) SaveGrants(ctx context.Context, grants []models.Grant, stats *models.PipelineRunStats) error {
	stats.Total = len(grants)
	if len(grants) == 0 {
		return nil
	}

	var mu sync.Mutex
	for start := 0; start < len(grants); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(grants) {
			end = len(grants)
		}
		batch := grants[start:end]

		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(g models.Grant) {
				defer wg.Done()
				outcome, err := s.upsertGrant(ctx, g)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					stats.Failed++
					stats.FailedItems = append(stats.FailedItems, models.FailedItem{
						OpportunityID: g.OpportunityID,
						Error:         err.Error(),
					})
					log.Printf("[Store] upsert failed for %s: %v", g.OpportunityID, err)
					return
				}
				switch outcome {
				case outcomeNew:
					stats.New++
				case outcomeUpdated:
					stats.Updated++
				case outcomeUnchanged:
					stats.Unchanged++
				}
			}(batch[i])
		}
		wg.Wait()

		log.Printf("[Store] batch %d-%d done (%d new, %d updated, %d unchanged, %d failed)",
			start, end-1, stats.New, stats.Updated, stats.Unchanged, stats.Failed)
	}

	if stats.Failed == stats.Total {
		return fmt.Errorf("all %d grant upserts failed", stats.Total)
	}
	return nil
}

type upsertOutcome int

const (
	outcomeNew upsertOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

func (s *Store) upsertGrant(ctx context.Context, g models.Grant) (upsertOutcome, error) {
	existing, err := s.findByOpportunityID(ctx, g.OpportunityID)
	if errors.Is(err, pgx.ErrNoRows) {
		return outcomeNew, s.insertGrant(ctx, g)
	}
	if err != nil {
		return 0, fmt.Errorf("error looking up grant: %w", err)
	}

	if grantsEqual(*existing, g) {
		return outcomeUnchanged, nil
	}
	return outcomeUpdated, s.updateGrant(ctx, g)
}

func (s *Store) findByOpportunityID(ctx context.Context, opportunityID string) (*models.Grant, error) {
	var g models.Grant
	err := s.pool.QueryRow(ctx, `
		SELECT opportunity_id, opportunity_number, title, category, funding_type,
		       activity_categories, eligible_applicants, agency_name, agency_code,
		       post_date, close_date, total_funding, award_ceiling, award_floor,
		       cost_sharing, description, grantor_contact_name, grantor_contact_email,
		       grantor_contact_phone, contact_name_source, contact_phone_valid,
		       contact_phone_source, additional_info_url, source
		FROM grants
		WHERE opportunity_id = $1
	`, opportunityID).Scan(
		&g.OpportunityID, &g.OpportunityNumber, &g.Title, &g.Category, &g.FundingType,
		&g.ActivityCategories, &g.EligibleApplicants, &g.AgencyName, &g.AgencyCode,
		&g.PostDate, &g.CloseDate, &g.TotalFunding, &g.AwardCeiling, &g.AwardFloor,
		&g.CostSharing, &g.Description, &g.ContactName, &g.ContactEmail,
		&g.ContactPhone, &g.ContactNameSource, &g.ContactPhoneValid,
		&g.ContactPhoneSource, &g.AdditionalInfoURL, &g.Source,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) insertGrant(ctx context.Context, g models.Grant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO grants (
			opportunity_id, opportunity_number, title, category, funding_type,
			activity_categories, eligible_applicants, agency_name, agency_code,
			post_date, close_date, total_funding, award_ceiling, award_floor,
			cost_sharing, description, grantor_contact_name, grantor_contact_email,
			grantor_contact_phone, contact_name_source, contact_phone_valid,
			contact_phone_source, additional_info_url, source, processing_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
	`,
		g.OpportunityID, g.OpportunityNumber, g.Title, g.Category, g.FundingType,
		g.ActivityCategories, g.EligibleApplicants, g.AgencyName, g.AgencyCode,
		g.PostDate, g.CloseDate, g.TotalFunding, g.AwardCeiling, g.AwardFloor,
		g.CostSharing, g.Description, g.ContactName, g.ContactEmail,
		g.ContactPhone, g.ContactNameSource, g.ContactPhoneValid,
		g.ContactPhoneSource, g.AdditionalInfoURL, g.Source, g.ProcessingStatus,
	)
	if err != nil {
		return fmt.Errorf("error inserting grant: %w", err)
	}
	return nil
}

func (s *Store) updateGrant(ctx context.Context, g models.Grant) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE grants SET
			opportunity_number = $2, title = $3, category = $4, funding_type = $5,
			activity_categories = $6, eligible_applicants = $7, agency_name = $8,
			agency_code = $9, post_date = $10, close_date = $11, total_funding = $12,
			award_ceiling = $13, award_floor = $14, cost_sharing = $15,
			description = $16, grantor_contact_name = $17, grantor_contact_email = $18,
			grantor_contact_phone = $19, contact_name_source = $20,
			contact_phone_valid = $21, contact_phone_source = $22,
			additional_info_url = $23, source = $24, updated_at = NOW()
		WHERE opportunity_id = $1
	`,
		g.OpportunityID, g.OpportunityNumber, g.Title, g.Category, g.FundingType,
		g.ActivityCategories, g.EligibleApplicants, g.AgencyName, g.AgencyCode,
		g.PostDate, g.CloseDate, g.TotalFunding, g.AwardCeiling, g.AwardFloor,
		g.CostSharing, g.Description, g.ContactName, g.ContactEmail,
		g.ContactPhone, g.ContactNameSource, g.ContactPhoneValid,
		g.ContactPhoneSource, g.AdditionalInfoURL, g.Source,
	)
	if err != nil {
		return fmt.Errorf("error updating grant: %w", err)
	}
	return nil
}

// grantsEqual compares the fields the feed can change. Timestamps and the
// surrogate id are excluded so a byte-identical feed record classifies as
// unchanged instead of touching the row.
func grantsEqual(a, b models.Grant) bool {
	return a.OpportunityNumber == b.OpportunityNumber &&
		a.Title == b.Title &&
		a.Category == b.Category &&
		a.FundingType == b.FundingType &&
		stringSlicesEqual(a.ActivityCategories, b.ActivityCategories) &&
		stringSlicesEqual(a.EligibleApplicants, b.EligibleApplicants) &&
		a.AgencyName == b.AgencyName &&
		a.AgencyCode == b.AgencyCode &&
		timesEqual(a.PostDate, b.PostDate) &&
		timesEqual(a.CloseDate, b.CloseDate) &&
		int64sEqual(a.TotalFunding, b.TotalFunding) &&
		int64sEqual(a.AwardCeiling, b.AwardCeiling) &&
		int64sEqual(a.AwardFloor, b.AwardFloor) &&
		a.CostSharing == b.CostSharing &&
		a.Description == b.Description &&
		a.ContactName == b.ContactName &&
		a.ContactEmail == b.ContactEmail &&
		a.ContactPhone == b.ContactPhone &&
		a.AdditionalInfoURL == b.AdditionalInfoURL
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func int64sEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SaveRunStats persists a finished run record. Rows are insert-only.
func (s *Store) SaveRunStats(ctx context.Context, stats *models.PipelineRunStats) error {
	var failedItems []byte
	if len(stats.FailedItems) > 0 {
		var err error
		failedItems, err = json.Marshal(stats.FailedItems)
		if err != nil {
			return fmt.Errorf("error marshaling failed items: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (
			run_id, source, total, new_count, updated_count, unchanged_count,
			failed_count, status, error, failed_items, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		stats.ID, stats.Source, stats.Total, stats.New, stats.Updated, stats.Unchanged,
		stats.Failed, stats.Status, nullIfEmpty(stats.Error), failedItems,
		stats.StartedAt, stats.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving run stats: %w", err)
	}
	return nil
}

// RecentRuns returns the newest run records, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRunStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, source, total, new_count, updated_count, unchanged_count,
		       failed_count, status, COALESCE(error, ''), failed_items,
		       started_at, completed_at
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PipelineRunStats
	for rows.Next() {
		var run models.PipelineRunStats
		var failedItems []byte
		if err := rows.Scan(
			&run.ID, &run.Source, &run.Total, &run.New, &run.Updated, &run.Unchanged,
			&run.Failed, &run.Status, &run.Error, &failedItems,
			&run.StartedAt, &run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning run: %w", err)
		}
		if len(failedItems) > 0 {
			if err := json.Unmarshal(failedItems, &run.FailedItems); err != nil {
				return nil, fmt.Errorf("error decoding failed items: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
