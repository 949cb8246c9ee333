package severity

import (
	"testing"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

func TestBaselineScore(t *testing.T) {
	cases := []struct {
		name    string
		changed int
		total   int
		want    int
	}{
		{"no change", 0, 16, 0},
		{"quarter", 4, 16, 25},
		{"full", 16, 16, 100},
		{"rounding up", 1, 3, 33},
		{"rounding half", 1, 8, 13},
		{"zero total", 5, 0, 0},
		{"negative changed", -3, 10, 0},
		{"changed above total clamps", 20, 10, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.changed, tc.total); got != tc.want {
				t.Errorf("Score(%d, %d) = %d, want %d", tc.changed, tc.total, got, tc.want)
			}
		})
	}
}

func TestScoreMonotonic(t *testing.T) {
	prev := -1
	for changed := 0; changed <= 100; changed++ {
		got := Score(changed, 100)
		if got < prev {
			t.Fatalf("Score(%d, 100) = %d decreased from %d", changed, got, prev)
		}
		prev = got
	}
}

func TestNumericMapping(t *testing.T) {
	cases := map[Level]int{
		LevelLow:      20,
		LevelMedium:   50,
		LevelHigh:     70,
		LevelCritical: 90,
	}
	for level, want := range cases {
		if got := Numeric(level); got != want {
			t.Errorf("Numeric(%s) = %d, want %d", level, got, want)
		}
	}
	if got := Numeric(Level("bogus")); got != 20 {
		t.Errorf("unknown level should map to low numeric, got %d", got)
	}
}

func TestFuseWithoutSignal(t *testing.T) {
	level, score := Fuse(4, 16, nil)
	if score != 25 {
		t.Errorf("expected baseline score 25, got %d", score)
	}
	if level != LevelHigh {
		t.Errorf("expected high for 25%% changed area, got %s", level)
	}
	if level != LevelFor(25) {
		t.Errorf("level %s does not match LevelFor(25) = %s", level, LevelFor(25))
	}
}

func TestFuseLevels(t *testing.T) {
	area := func(typ string) models.ChangedArea {
		return models.ChangedArea{Type: typ, Confidence: 0.9}
	}
	machinery := func(n int) []models.ChangedArea {
		out := make([]models.ChangedArea, n)
		for i := range out {
			out[i] = area("vehicle")
		}
		return out
	}

	cases := []struct {
		name    string
		changed int
		total   int
		sig     models.ChangeSignal
		want    Level
	}{
		{
			name: "quiet scene", changed: 1, total: 100,
			sig:  models.ChangeSignal{},
			want: LevelLow,
		},
		{
			name: "small change with some machinery", changed: 6, total: 100,
			sig:  models.ChangeSignal{ChangedAreas: machinery(3)},
			want: LevelMedium,
		},
		{
			name: "large change with machinery", changed: 15, total: 100,
			sig:  models.ChangeSignal{ChangedAreas: machinery(4), ErosionRisk: "medium"},
			want: LevelHigh,
		},
		{
			name: "everything firing", changed: 40, total: 100,
			sig:  models.ChangeSignal{ChangedAreas: machinery(12), ErosionRisk: "high"},
			want: LevelCritical,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, score := Fuse(tc.changed, tc.total, &tc.sig)
			if level != tc.want {
				t.Errorf("Fuse = %s, want %s", level, tc.want)
			}
			if score != Numeric(level) {
				t.Errorf("numeric %d inconsistent with level %s (want %d)", score, level, Numeric(level))
			}
		})
	}
}

func TestObjectCountIgnoresNonMachinery(t *testing.T) {
	sig := models.ChangeSignal{ChangedAreas: []models.ChangedArea{
		{Type: "vehicle"},
		{Type: "excavation"},
		{Type: "equipment"},
		{Type: "water"},
	}}
	if got := sig.ObjectCount(); got != 2 {
		t.Errorf("ObjectCount = %d, want 2", got)
	}
}
