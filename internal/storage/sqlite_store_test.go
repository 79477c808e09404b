package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

func testStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "results.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestStoreAndSummarize(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "obs.csv", "soft")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	results := []model.EpochResult{
		{
			EpochKey: 0, Week: 2200, TowSec: 100000,
			Estimate: &model.PositionEstimate{X: 6378137, RMS: 1.2},
			Verdict:  &model.SpoofingVerdict{NonFlaggedSatIDs: []string{"G01"}},
		},
		{
			EpochKey: 1, Week: 2200, TowSec: 100001,
			SkipReason: "solve failed: fewer than four observations",
		},
		{
			EpochKey: 2, Week: 2200, TowSec: 100002,
			Estimate: &model.PositionEstimate{X: 6378137, RMS: 4000},
			Verdict: &model.SpoofingVerdict{
				FlaggedSatIDs: []string{"G01", "G02"},
				Reasons:       []string{"high RMS"},
			},
		},
	}
	for _, r := range results {
		if err := s.StoreResult(ctx, sessionID, r); err != nil {
			t.Fatalf("StoreResult(%d): %v", r.EpochKey, err)
		}
	}

	sum, err := s.Summarize(ctx, sessionID)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Epochs != 3 || sum.Skipped != 1 || sum.Spoofed != 1 {
		t.Errorf("summary = %+v, want 3 epochs, 1 skipped, 1 spoofed", sum)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.CreateSession(ctx, "a.csv", "soft")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateSession(ctx, "b.csv", "hard")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("sessions share id %d", a)
	}

	r := model.EpochResult{
		EpochKey: 0, Week: 2200, TowSec: 1,
		Estimate: &model.PositionEstimate{X: 6378137},
		Verdict:  &model.SpoofingVerdict{},
	}
	if err := s.StoreResult(ctx, a, r); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summarize(ctx, b)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Epochs != 0 {
		t.Errorf("session %d sees %d epochs from session %d", b, sum.Epochs, a)
	}
}
