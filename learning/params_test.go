package learning

import (
	"testing"

	"github.com/devskill-org/home-mpc/planner"
)

func TestApplyParamsRoundTrip(t *testing.T) {
	cfg := planner.DefaultConfig()
	in := map[string]float64{
		ParamLoadSafetyMargin: 12,
		ParamPVConfidence:     85,
		ParamBatteryUseMargin: 0.18,
		ParamExportProfit:     0.07,
		ParamFutureGuard:      0.12,
		ParamSIndexBase:       1.08,
	}
	got, err := ApplyParams(cfg, in)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	out := ExtractParams(got)
	for path, want := range in {
		if out[path] != want {
			t.Errorf("%s = %f, want %f", path, out[path], want)
		}
	}
}

func TestApplyParamsRejectsUnknownKey(t *testing.T) {
	_, err := ApplyParams(planner.DefaultConfig(), map[string]float64{"battery.capacity_kwh": 20})
	if err == nil {
		t.Fatal("unknown parameter path accepted")
	}
}
