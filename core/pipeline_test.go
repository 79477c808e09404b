package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-sentinel/internal/logging"
	"github.com/signalsfoundry/gnss-sentinel/model"
)

// mapElements serves fixed elements from memory.
type mapElements map[string]*model.OrbitalElements

func (m mapElements) Elements(_ context.Context, satID string, _ time.Time) (*model.OrbitalElements, error) {
	eph, ok := m[satID]
	if !ok {
		return nil, errors.New("no such satellite")
	}
	return eph, nil
}

type countingMetrics struct {
	processed map[string]int
	flagged   map[string]int
	solutions int
}

func (c *countingMetrics) EpochProcessed(outcome string, _ time.Duration) {
	if c.processed == nil {
		c.processed = make(map[string]int)
	}
	c.processed[outcome]++
}

func (c *countingMetrics) SatellitesFlagged(reason string, n int) {
	if c.flagged == nil {
		c.flagged = make(map[string]int)
	}
	c.flagged[reason] += n
}

func (c *countingMetrics) ObserveSolution(float64, int) { c.solutions++ }

const testTransmitSec = 100000.0

// stationaryElements pins a satellite at an exact ECEF point for the
// test transmit time by using the state-vector model with zero
// velocity and a zero extrapolation interval.
func stationaryElements(satID string, pos Vec3) *model.OrbitalElements {
	return &model.OrbitalElements{
		SatID:         satID,
		Constellation: model.ConstellationGLONASS,
		PosX:          pos.X,
		PosY:          pos.Y,
		PosZ:          pos.Z,
		FrameTime:     testTransmitSec + glonassTimeOffset,
		Toc:           testTransmitSec + glonassTimeOffset,
	}
}

// testEpoch builds an epoch of noise-free observations of receiver
// from n grid satellites, returning the epoch and its elements source.
func testEpoch(key int64, n int, receiver Vec3) (*model.Epoch, mapElements) {
	sats := testConstellation(n)
	elements := make(mapElements, n)
	epoch := &model.Epoch{
		Key:    key,
		Week:   2200,
		TowSec: testTransmitSec,
		Time:   time.Date(2022, time.March, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(key) * time.Second),
	}
	for i, sat := range sats {
		id := satName(i)
		elements[id] = stationaryElements(id, sat)
		epoch.Observations = append(epoch.Observations, model.Observation{
			SatID:         id,
			Constellation: model.ConstellationGLONASS,
			PseudorangeM:  receiver.DistanceTo(sat),
			CN0DbHz:       45,
			DopplerMS:     math.NaN(),
			TransmitSec:   testTransmitSec,
		})
	}
	return epoch, elements
}

func TestPipelineSolvesCleanEpoch(t *testing.T) {
	receiver := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	epoch, elements := testEpoch(0, 6, receiver)

	metrics := &countingMetrics{}
	p := NewPipeline(elements, logging.Noop(), WithMetrics(metrics))

	var seen []model.EpochResult
	p.RegisterResultListener(func(r model.EpochResult) { seen = append(seen, r) })

	result, err := p.Process(context.Background(), epoch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Skipped() {
		t.Fatalf("clean epoch skipped: %s", result.SkipReason)
	}

	est := result.Estimate
	if d := (Vec3{X: est.X, Y: est.Y, Z: est.Z}).DistanceTo(receiver); d > 1 {
		t.Errorf("position error = %v m", d)
	}
	if est.RMS > 1 {
		t.Errorf("RMS = %v m on noise-free epoch", est.RMS)
	}
	if result.Verdict.Spoofed() {
		t.Errorf("clean epoch flagged: %+v", result.Verdict)
	}

	if len(seen) != 1 {
		t.Errorf("listener saw %d results, want 1", len(seen))
	}
	if metrics.processed["solved"] != 1 || metrics.solutions != 1 {
		t.Errorf("metrics = %+v, want one solved epoch", metrics)
	}
}

func TestPipelineFlagsPerturbedSatellite(t *testing.T) {
	receiver := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	epoch, elements := testEpoch(0, 12, receiver)
	const badIdx = 5
	epoch.Observations[badIdx].PseudorangeM += 50000

	p := NewPipeline(elements, logging.Noop())
	result, err := p.Process(context.Background(), epoch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Skipped() {
		t.Fatalf("epoch skipped: %s", result.SkipReason)
	}

	badID := epoch.Observations[badIdx].SatID
	if !result.Verdict.Spoofed() {
		t.Fatal("perturbed epoch not flagged")
	}
	found := false
	for _, id := range result.Verdict.FlaggedSatIDs {
		if id == badID {
			found = true
		}
	}
	if !found {
		t.Errorf("flagged = %v, want %s included", result.Verdict.FlaggedSatIDs, badID)
	}
}

func TestPipelineSkipsSmallEpoch(t *testing.T) {
	receiver := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	epoch, elements := testEpoch(0, 4, receiver)

	p := NewPipeline(elements, logging.Noop())
	result, err := p.Process(context.Background(), epoch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Skipped() {
		t.Error("four-observation epoch was not skipped")
	}
}

func TestPipelineDropsUnknownSatellites(t *testing.T) {
	receiver := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	epoch, elements := testEpoch(0, 6, receiver)
	// Losing one satellite's elements still leaves five usable.
	delete(elements, satName(0))

	p := NewPipeline(elements, logging.Noop())
	result, err := p.Process(context.Background(), epoch)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Skipped() {
		t.Fatalf("epoch skipped: %s", result.SkipReason)
	}
}

func TestPipelineRejectsOutOfOrderEpochs(t *testing.T) {
	receiver := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	first, elements := testEpoch(5, 6, receiver)

	p := NewPipeline(elements, logging.Noop())
	if _, err := p.Process(context.Background(), first); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	stale, _ := testEpoch(4, 6, receiver)
	if _, err := p.Process(context.Background(), stale); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("stale epoch: err = %v, want ErrOutOfOrder", err)
	}

	// The rejected epoch must not disturb ordering state.
	next, _ := testEpoch(6, 6, receiver)
	if _, err := p.Process(context.Background(), next); err != nil {
		t.Errorf("next epoch after rejection: %v", err)
	}
}

func TestPipelineCarriesPreviousEstimate(t *testing.T) {
	receiver := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	first, elements := testEpoch(0, 6, receiver)

	p := NewPipeline(elements, logging.Noop())
	if _, err := p.Process(context.Background(), first); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if p.Previous() == nil {
		t.Fatal("no previous estimate after a solved epoch")
	}

	// Moving the receiver far between epochs trips the continuity rule.
	jumped := Vec3{X: WGS84SemiMajorM, Y: 5000, Z: 0}
	second, _ := testEpoch(1, 6, jumped)
	result, err := p.Process(context.Background(), second)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !hasReason(result.Verdict, ReasonPositionJump) {
		t.Errorf("reasons = %v, want sudden position jump", result.Verdict.Reasons)
	}
}
