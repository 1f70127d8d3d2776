// Package freshness turns environmental sensor readings into a freshness
// verdict for the stored item.
//
// Rules form a decision list: they are evaluated in order and the first match
// wins. The order is part of the contract; a later, more specific rule never
// overrides an earlier one.
//
// There is no elapsed-time tracking. The raw temperature reading stands in for
// the time-to-instability (TTI) indicator, so the same value is reported as
// Verdict.TTI.
package freshness

import "time"

// Snapshot is one reading of the container sensors. Nil fields were missing
// or non-numeric in the source payload.
type Snapshot struct {
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	VOC         *float64  `json:"voc"`
	Status      string    `json:"status,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Complete reports whether all three numeric readings are present.
func (s Snapshot) Complete() bool {
	return s.Temperature != nil && s.Humidity != nil && s.VOC != nil
}

// Verdict is the classification derived from the latest Snapshot.
type Verdict struct {
	Category          Category `json:"category"`
	Recommendation    string   `json:"recommendation"`
	EstimatedDaysLeft *float64 `json:"estimated_days_left"`
	DaysDisplay       string   `json:"days_display"`
	TTI               *float64 `json:"tti"`
}

// outcome is the fixed part of a verdict produced by a rule.
type outcome struct {
	category       Category
	recommendation string
	days           float64
	daysDisplay    string
}

func (o outcome) verdict(tti *float64) Verdict {
	days := o.days
	return Verdict{
		Category:          o.category,
		Recommendation:    o.recommendation,
		EstimatedDaysLeft: &days,
		DaysDisplay:       o.daysDisplay,
		TTI:               copyFloat(tti),
	}
}

type rule struct {
	name  string
	match func(voc, temp, hum float64) bool
	then  outcome
}

var (
	quickDish = outcome{HampirBusuk, "inspect food; prepare a quick dish", 0.5, "<1 day"}
	freezeNow = outcome{HampirBusuk, "nearly spoiled; freeze or cook now", 0.5, "<1 day"}
	hotRoom   = outcome{MulaiLayu, "poor storage temperature; use within 1 day", 1, "1 day"}
	spoiled   = outcome{Busuk, "spoiled; discard immediately", 0, "already spoiled"}
	cookToday = outcome{HampirBusuk, "nearly spoiled; cook today", 0.5, "<1 day"}
	wilting   = outcome{MulaiLayu, "starting to wilt; use soon", 1.5, "1–2 days"}
	fresh     = outcome{Segar, "still fresh", 4, "3–5 days"}
	storedOK  = outcome{Segar, "storage conditions acceptable", 3, "2–4 days"}
)

// rules is evaluated top to bottom. Adjacent bands disagree on inclusiveness;
// the operators are intentional and pinned by tests.
var rules = []rule{
	{"voc-critical", func(v, _, _ float64) bool { return v > 250 }, quickDish},
	{"voc-warm", func(v, t, _ float64) bool { return v > 180 && t > 24 }, freezeNow},
	{"warm", func(_, t, _ float64) bool { return t > 24 }, hotRoom},
	{"spoiled", func(v, t, h float64) bool { return v > 400 && t > 15 && h < 85 }, spoiled},
	{"nearly-spoiled", func(v, t, h float64) bool {
		return v > 150 && v <= 400 && t > 10 && t <= 15 && h < 90
	}, cookToday},
	{"wilting", func(v, t, h float64) bool {
		return v > 50 && v <= 150 && t > 5 && t <= 10 && h >= 90 && h <= 95
	}, wilting},
	{"fresh", func(v, t, h float64) bool {
		return v <= 50 && t >= 0 && t <= 5 && h >= 95 && h <= 98
	}, fresh},
}

// Classify evaluates the decision list. It is pure: identical inputs always
// yield identical verdicts. Any nil input yields the Unknown verdict.
func Classify(voc, temperature, humidity *float64) Verdict {
	if voc == nil || temperature == nil || humidity == nil {
		return UnknownVerdict()
	}
	v, t, h := *voc, *temperature, *humidity
	for _, r := range rules {
		if r.match(v, t, h) {
			return r.then.verdict(temperature)
		}
	}
	return storedOK.verdict(temperature)
}

// MatchedRule names the rule Classify would select, or "default" when none
// matches, or "" when input is incomplete.
func MatchedRule(voc, temperature, humidity *float64) string {
	if voc == nil || temperature == nil || humidity == nil {
		return ""
	}
	for _, r := range rules {
		if r.match(*voc, *temperature, *humidity) {
			return r.name
		}
	}
	return "default"
}

// UnknownVerdict is returned while sensor data is missing.
func UnknownVerdict() Verdict {
	return Verdict{
		Category:       Unknown,
		Recommendation: "awaiting sensor data",
		DaysDisplay:    "–",
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
