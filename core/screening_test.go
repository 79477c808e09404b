package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

func TestScreenObservations(t *testing.T) {
	reference := Vec3{X: WGS84SemiMajorM, Y: 0, Z: 0}
	goodSat := model.SatellitePositionResult{X: WGS84SemiMajorM + 20000000, Y: 0, Z: 0}

	cases := []struct {
		name   string
		obs    []model.Observation
		satPos []model.SatellitePositionResult
		want   []string
	}{
		{
			name: "healthy epoch",
			obs: []model.Observation{
				{SatID: "G01", CN0DbHz: 45},
				{SatID: "G02", CN0DbHz: 38},
			},
			satPos: []model.SatellitePositionResult{goodSat, goodSat},
			want:   nil,
		},
		{
			name: "low cn0",
			obs: []model.Observation{
				{SatID: "G01", CN0DbHz: 45},
				{SatID: "G02", CN0DbHz: 12},
			},
			satPos: []model.SatellitePositionResult{goodSat, goodSat},
			want:   []string{"G02"},
		},
		{
			name: "nan cn0",
			obs: []model.Observation{
				{SatID: "G01", CN0DbHz: math.NaN()},
			},
			satPos: []model.SatellitePositionResult{goodSat},
			want:   []string{"G01"},
		},
		{
			name: "duplicate id",
			obs: []model.Observation{
				{SatID: "G01", CN0DbHz: 45},
				{SatID: "G01", CN0DbHz: 44},
				{SatID: "G02", CN0DbHz: 40},
			},
			satPos: []model.SatellitePositionResult{goodSat, goodSat, goodSat},
			want:   []string{"G01"},
		},
		{
			name: "implausible range",
			obs: []model.Observation{
				{SatID: "G01", CN0DbHz: 45},
				{SatID: "G02", CN0DbHz: 45},
			},
			satPos: []model.SatellitePositionResult{
				goodSat,
				{X: WGS84SemiMajorM + 90000000, Y: 0, Z: 0},
			},
			want: []string{"G02"},
		},
		{
			name: "unusable position skipped",
			obs: []model.Observation{
				{SatID: "G01", CN0DbHz: 45},
			},
			satPos: []model.SatellitePositionResult{
				{X: math.NaN(), Y: math.NaN(), Z: math.NaN(), ClockBias: math.NaN()},
			},
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScreenObservations(tc.obs, tc.satPos, reference)
			if len(got) != len(tc.want) {
				t.Fatalf("suspicious = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("suspicious = %v, want %v", got, tc.want)
				}
			}
		})
	}
}
