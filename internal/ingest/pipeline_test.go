package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchen04/Grantify.ai-sub000/internal/models"
)

type fakeStore struct {
	existing    map[string]struct{}
	existingErr error
	saved       []models.Grant
	saveErr     error
	runs        []*models.PipelineRunStats
}

func (f *fakeStore) ExistingOpportunityIDs(_ context.Context) (map[string]struct{}, error) {
	if f.existingErr != nil {
		return nil, f.existingErr
	}
	if f.existing == nil {
		return map[string]struct{}{}, nil
	}
	return f.existing, nil
}

func (f *fakeStore) SaveGrants(_ context.Context, grants []models.Grant, stats *models.PipelineRunStats) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, grants...)
	stats.Total = len(grants)
	stats.New = len(grants)
	return nil
}

func (f *fakeStore) SaveRunStats(_ context.Context, stats *models.PipelineRunStats) error {
	f.runs = append(f.runs, stats)
	return nil
}

func offlinePipeline(t *testing.T, store GrantStore, document string) *Pipeline {
	t.Helper()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	fallback := filepath.Join(t.TempDir(), "offline.xml")
	if err := os.WriteFile(fallback, []byte(document), 0o644); err != nil {
		t.Fatal(err)
	}

	downloader := testDownloader(t, server.URL)
	downloader.FallbackPath = fallback
	downloader.MaxLookbackDays = 0

	p := NewPipeline(store, downloader, NewPassthroughCleaner(), "grants.gov")
	p.Transformer = fixedNowTransformer()
	p.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestPipelineRunCompletes(t *testing.T) {
	store := &fakeStore{}
	p := offlinePipeline(t, store, transformFixture)

	stats, err := p.Run(context.Background(), RunOptions{UseOfflineFallback: true})
	if err != nil {
		t.Fatal(err)
	}

	if stats.Status != models.RunStatusCompleted {
		t.Errorf("expected completed run, got %s", stats.Status)
	}
	if stats.Total != 2 || stats.New != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if len(store.runs) != 1 || store.runs[0] != stats {
		t.Error("expected exactly one persisted run record")
	}

	for _, g := range store.saved {
		if g.Source != "grants.gov" {
			t.Errorf("grant %s missing source stamp: %q", g.OpportunityID, g.Source)
		}
		if g.ProcessingStatus != ProcessingNotStarted {
			t.Errorf("grant %s has status %q", g.OpportunityID, g.ProcessingStatus)
		}
	}
}

func TestPipelineRunAcquisitionFailure(t *testing.T) {
	store := &fakeStore{}

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	downloader := testDownloader(t, server.URL)
	downloader.MaxLookbackDays = 0

	p := NewPipeline(store, downloader, NewPassthroughCleaner(), "grants.gov")

	stats, err := p.Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if stats.Status != models.RunStatusFailed {
		t.Errorf("expected failed status, got %s", stats.Status)
	}
	if stats.Error == "" {
		t.Error("expected the failure cause on the run record")
	}
	if len(store.runs) != 1 {
		t.Error("failed runs must still be persisted")
	}
}

func TestPipelineRunStoreFailure(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("db down")}
	p := offlinePipeline(t, store, transformFixture)

	stats, err := p.Run(context.Background(), RunOptions{UseOfflineFallback: true})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if stats.Status != models.RunStatusFailed {
		t.Errorf("expected failed status, got %s", stats.Status)
	}
}

func TestPipelineRunExistingIDsFailure(t *testing.T) {
	store := &fakeStore{existingErr: errors.New("db down")}
	p := offlinePipeline(t, store, transformFixture)

	stats, err := p.Run(context.Background(), RunOptions{UseOfflineFallback: true})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if stats.Status != models.RunStatusFailed {
		t.Errorf("expected failed status, got %s", stats.Status)
	}
	if len(store.saved) != 0 {
		t.Error("no grants should be saved when the id lookup fails")
	}
}
