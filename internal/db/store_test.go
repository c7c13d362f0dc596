package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mchen04/Grantify.ai-sub000/internal/models"
)

func sampleGrant() models.Grant {
	return models.Grant{
		OpportunityID:      "OPP-1",
		OpportunityNumber:  "HHS-24-001",
		Title:              "Rural Health Research",
		Category:           "discretionary",
		FundingType:        "grant",
		ActivityCategories: []string{"health"},
		EligibleApplicants: []string{"Individuals"},
		AgencyName:         "Department of Health",
		AgencyCode:         "HHS",
		CostSharing:        true,
		Description:        "Funds clinical research.",
		ContactName:        "Jane Doe",
		ContactEmail:       "jane.doe@hhs.gov",
		AdditionalInfoURL:  "https://example.gov/opp-1",
		Source:             "grants.gov",
		ProcessingStatus:   "not_processed",
	}
}

var grantColumns = []string{
	"opportunity_id", "opportunity_number", "title", "category", "funding_type",
	"activity_categories", "eligible_applicants", "agency_name", "agency_code",
	"post_date", "close_date", "total_funding", "award_ceiling", "award_floor",
	"cost_sharing", "description", "grantor_contact_name", "grantor_contact_email",
	"grantor_contact_phone", "contact_name_source", "contact_phone_valid",
	"contact_phone_source", "additional_info_url", "source",
}

func grantRow(g models.Grant) *pgxmock.Rows {
	return pgxmock.NewRows(grantColumns).AddRow(
		g.OpportunityID, g.OpportunityNumber, g.Title, g.Category, g.FundingType,
		g.ActivityCategories, g.EligibleApplicants, g.AgencyName, g.AgencyCode,
		g.PostDate, g.CloseDate, g.TotalFunding, g.AwardCeiling, g.AwardFloor,
		g.CostSharing, g.Description, g.ContactName, g.ContactEmail,
		g.ContactPhone, g.ContactNameSource, g.ContactPhoneValid,
		g.ContactPhoneSource, g.AdditionalInfoURL, g.Source,
	)
}

func newRunStats() *models.PipelineRunStats {
	return models.NewRunStats("grants.gov", time.Now().UTC())
}

func TestExistingOpportunityIDs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT opportunity_id FROM grants").
		WillReturnRows(pgxmock.NewRows([]string{"opportunity_id"}).AddRow("A").AddRow("B"))

	ids, err := NewStore(mock).ExistingOpportunityIDs(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Contains(t, ids, "A")
	require.Contains(t, ids, "B")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGrantsInsertsNew(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("OPP-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO grants").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stats := newRunStats()
	err = NewStore(mock).SaveGrants(context.Background(), []models.Grant{sampleGrant()}, stats)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.New)
	require.Zero(t, stats.Updated)
	require.Zero(t, stats.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGrantsUnchangedSkipsWrite(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	g := sampleGrant()
	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("OPP-1").
		WillReturnRows(grantRow(g))

	stats := newRunStats()
	err = NewStore(mock).SaveGrants(context.Background(), []models.Grant{g}, stats)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Unchanged)
	require.Zero(t, stats.New)
	require.Zero(t, stats.Updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGrantsUpdatesChangedRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stored := sampleGrant()
	stored.Title = "Old Title"

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("OPP-1").
		WillReturnRows(grantRow(stored))
	mock.ExpectExec("UPDATE grants SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	stats := newRunStats()
	err = NewStore(mock).SaveGrants(context.Background(), []models.Grant{sampleGrant()}, stats)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Updated)
	require.Zero(t, stats.Unchanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGrantsRecordFailureIsCounted(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	ok := sampleGrant()
	broken := sampleGrant()
	broken.OpportunityID = "OPP-BROKEN"

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("OPP-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO grants").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("OPP-BROKEN").
		WillReturnError(errors.New("connection reset"))

	stats := newRunStats()
	err = NewStore(mock).SaveGrants(context.Background(), []models.Grant{ok, broken}, stats)
	require.NoError(t, err, "partial failure must not fail the batch")
	require.Equal(t, 1, stats.New)
	require.Equal(t, 1, stats.Failed)
	require.Len(t, stats.FailedItems, 1)
	require.Equal(t, "OPP-BROKEN", stats.FailedItems[0].OpportunityID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGrantsTotalFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("OPP-1").
		WillReturnError(errors.New("db down"))

	stats := newRunStats()
	err = NewStore(mock).SaveGrants(context.Background(), []models.Grant{sampleGrant()}, stats)
	require.Error(t, err)
	require.Equal(t, 1, stats.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGrantsEmptyInput(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stats := newRunStats()
	require.NoError(t, NewStore(mock).SaveGrants(context.Background(), nil, stats))
	require.Zero(t, stats.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunStats(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stats := newRunStats()
	stats.Total = 3
	stats.New = 1
	stats.Updated = 1
	stats.Failed = 1
	stats.Status = models.RunStatusCompleted
	stats.FailedItems = []models.FailedItem{{OpportunityID: "X", Error: "boom"}}
	completed := stats.StartedAt.Add(time.Minute)
	stats.CompletedAt = &completed

	mock.ExpectExec("INSERT INTO pipeline_runs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewStore(mock).SaveRunStats(context.Background(), stats))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stats := newRunStats()
	completed := stats.StartedAt.Add(time.Minute)

	rows := pgxmock.NewRows([]string{
		"run_id", "source", "total", "new_count", "updated_count", "unchanged_count",
		"failed_count", "status", "error", "failed_items", "started_at", "completed_at",
	}).AddRow(
		stats.ID, "grants.gov", 10, 4, 3, 2,
		1, models.RunStatusCompleted, "", []byte(`[{"opportunity_id":"X","error":"boom"}]`),
		stats.StartedAt, &completed,
	)

	mock.ExpectQuery("SELECT (.+) FROM pipeline_runs").
		WithArgs(5).
		WillReturnRows(rows)

	runs, err := NewStore(mock).RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, stats.ID, runs[0].ID)
	require.Equal(t, 10, runs[0].Total)
	require.Equal(t, 2, runs[0].Unchanged)
	require.Len(t, runs[0].FailedItems, 1)
	require.NotNil(t, runs[0].CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
