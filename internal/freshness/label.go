package freshness

import (
	"fmt"
	"strconv"
	"strings"
)

// labelTable maps a server-assigned status label straight to its verdict.
var labelTable = map[Category]outcome{
	Segar:       fresh,
	MulaiLayu:   wilting,
	HampirBusuk: cookToday,
	Busuk:       spoiled,
}

// FromLabel looks up the verdict for a server status label without evaluating
// any rule. ok is false when the label is empty or unrecognised.
func FromLabel(label string, temperature *float64) (Verdict, bool) {
	c, ok := ParseCategory(label)
	if !ok {
		return Verdict{}, false
	}
	return labelTable[c].verdict(temperature), true
}

// Evaluate classifies a snapshot. When preferLabel is set and the snapshot
// carries a recognised server label, the label wins over local rules.
func Evaluate(s Snapshot, preferLabel bool) Verdict {
	if preferLabel {
		if v, ok := FromLabel(s.Status, s.Temperature); ok {
			return v
		}
	}
	return Classify(s.VOC, s.Temperature, s.Humidity)
}

// BandForVOC is the backend's coarse VOC banding used to label stored
// readings: < 50 Segar, < 150 MulaiLayu, < 400 HampirBusuk, otherwise Busuk.
func BandForVOC(voc float64) Category {
	switch {
	case voc < 50:
		return Segar
	case voc < 150:
		return MulaiLayu
	case voc < 400:
		return HampirBusuk
	default:
		return Busuk
	}
}

// QuickReplies returns the canned prompts offered alongside the chat for the
// given category.
func QuickReplies(c Category) []string {
	replies := []string{"Quick recipe?", "Healthy menu?"}
	switch c {
	case MulaiLayu:
		replies = append(replies, "My vegetables are starting to wilt, what recipe?")
	case HampirBusuk:
		replies = append(replies, "My vegetables are nearly spoiled, what recipe?")
	case Busuk:
		replies = append(replies, "My vegetables are spoiled, what should I do?")
	}
	return replies
}

// Headline is the one-line summary shown next to the category badge.
func (v Verdict) Headline() string {
	if v.Category == Busuk {
		return "spoiled; discard now"
	}
	if v.Category == Unknown {
		return v.Recommendation
	}
	return fmt.Sprintf("still %s, expected to wilt in %s", strings.ToLower(v.Category.String()), v.DaysDisplay)
}

// FormatTemperature renders a reading in °C, or "–" when missing.
func FormatTemperature(t *float64) string {
	if t == nil {
		return "–"
	}
	return formatNumber(*t) + "°C"
}

// FormatHumidity renders a relative humidity reading, or "–" when missing.
func FormatHumidity(h *float64) string {
	if h == nil {
		return "–"
	}
	return formatNumber(*h) + "%"
}

// FormatVOC renders a VOC reading, or "–" when missing.
func FormatVOC(v *float64) string {
	if v == nil {
		return "–"
	}
	return formatNumber(*v)
}

// FormatTTI renders the TTI proxy with one decimal, or "–" when missing.
func FormatTTI(t *float64) string {
	if t == nil {
		return "–"
	}
	return strconv.FormatFloat(*t, 'f', 1, 64)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
