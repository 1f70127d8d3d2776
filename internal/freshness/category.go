package freshness

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the freshness class of the monitored item.
type Category int

const (
	Unknown Category = iota
	Segar
	MulaiLayu
	HampirBusuk
	Busuk
)

var categoryNames = map[Category]string{
	Unknown:     "Unknown",
	Segar:       "Segar",
	MulaiLayu:   "Mulai Layu",
	HampirBusuk: "Hampir Busuk",
	Busuk:       "Busuk",
}

// server-side status labels as stored by the backend.
var categoryLabels = map[Category]string{
	Segar:       "segar",
	MulaiLayu:   "mulai_layu",
	HampirBusuk: "hampir_busuk",
	Busuk:       "busuk",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Label returns the backend status label ("mulai_layu", ...). Unknown has none.
func (c Category) Label() string {
	return categoryLabels[c]
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseCategory(s)
	if !ok {
		*c = Unknown
		return nil
	}
	*c = parsed
	return nil
}

// ParseCategory accepts any of the four category names in display or label
// form, ignoring case, surrounding whitespace, and '_'/'-' separators.
// "Hampir Busuk", "hampir_busuk" and " HAMPIR-BUSUK " all parse.
func ParseCategory(s string) (Category, bool) {
	norm := normalizeLabel(s)
	if norm == "" {
		return Unknown, false
	}
	for c, name := range categoryNames {
		if c == Unknown {
			continue
		}
		if normalizeLabel(name) == norm {
			return c, true
		}
	}
	return Unknown, false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
