package freshness

import (
	"strings"
	"testing"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"Segar", Segar, true},
		{"segar", Segar, true},
		{"mulai_layu", MulaiLayu, true},
		{"Mulai Layu", MulaiLayu, true},
		{"  HAMPIR-BUSUK ", HampirBusuk, true},
		{"hampir  busuk", HampirBusuk, true},
		{"busuk", Busuk, true},
		{"", Unknown, false},
		{"unknown", Unknown, false},
		{"rotten", Unknown, false},
	}
	for _, tc := range tests {
		got, ok := ParseCategory(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseCategory(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEvaluate_LabelTakesPrecedence(t *testing.T) {
	s := Snapshot{VOC: f(10), Temperature: f(3), Humidity: f(96), Status: "busuk"}

	got := Evaluate(s, true)
	if got.Category != Busuk {
		t.Fatalf("Category = %v, want %v", got.Category, Busuk)
	}
	if got.DaysDisplay != "already spoiled" || *got.EstimatedDaysLeft != 0 {
		t.Errorf("label verdict = %+v", got)
	}

	local := Evaluate(s, false)
	if local.Category != Segar {
		t.Errorf("without label preference Category = %v, want %v", local.Category, Segar)
	}
}

func TestEvaluate_UnrecognisedLabelFallsBack(t *testing.T) {
	s := Snapshot{VOC: f(300), Temperature: f(3), Humidity: f(96), Status: "???"}
	if got := Evaluate(s, true); got.Category != HampirBusuk {
		t.Errorf("Category = %v, want %v", got.Category, HampirBusuk)
	}
}

func TestEvaluate_LabelWithoutReadings(t *testing.T) {
	got := Evaluate(Snapshot{Status: "Mulai Layu"}, true)
	if got.Category != MulaiLayu {
		t.Fatalf("Category = %v, want %v", got.Category, MulaiLayu)
	}
	if got.TTI != nil {
		t.Errorf("TTI = %v, want nil", *got.TTI)
	}
}

func TestBandForVOC(t *testing.T) {
	tests := []struct {
		voc  float64
		want Category
	}{
		{0, Segar}, {49.9, Segar}, {50, MulaiLayu}, {149, MulaiLayu},
		{150, HampirBusuk}, {399.9, HampirBusuk}, {400, Busuk}, {1000, Busuk},
	}
	for _, tc := range tests {
		if got := BandForVOC(tc.voc); got != tc.want {
			t.Errorf("BandForVOC(%v) = %v, want %v", tc.voc, got, tc.want)
		}
	}
}

func TestQuickReplies(t *testing.T) {
	if got := len(QuickReplies(Segar)); got != 2 {
		t.Errorf("Segar quick replies = %d, want 2", got)
	}
	hb := QuickReplies(HampirBusuk)
	if len(hb) != 3 || !strings.Contains(hb[2], "nearly spoiled") {
		t.Errorf("HampirBusuk quick replies = %v", hb)
	}
}

func TestHeadline(t *testing.T) {
	if got := Classify(f(450), f(20), f(60)).Headline(); got != "still hampir busuk, expected to wilt in <1 day" {
		t.Errorf("Headline = %q", got)
	}
	busuk, _ := FromLabel("busuk", nil)
	if got := busuk.Headline(); got != "spoiled; discard now" {
		t.Errorf("Headline = %q", got)
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatTemperature(f(4.5)); got != "4.5°C" {
		t.Errorf("FormatTemperature = %q", got)
	}
	if got := FormatHumidity(nil); got != "–" {
		t.Errorf("FormatHumidity(nil) = %q", got)
	}
	if got := FormatVOC(f(120)); got != "120" {
		t.Errorf("FormatVOC = %q", got)
	}
	if got := FormatTTI(f(3)); got != "3.0" {
		t.Errorf("FormatTTI = %q", got)
	}
}
