package profile

// Profile describes the monitored container and its owner.
type Profile struct {
	VegetableName  string   `json:"vegetable_name"`
	OwnerName      string   `json:"owner_name,omitempty"`
	WhatsAppNumber string   `json:"whatsapp_number,omitempty"`
	Diet           []string `json:"diet,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// Profile keys as stored in the backend's key-value table. List values are
// JSON arrays.
const (
	KeyVegetableName  = "vegetable_name"
	KeyOwnerName      = "owner_name"
	KeyWhatsAppNumber = "whatsapp_number"
	KeyDiet           = "diet"
	KeyNotes          = "notes"
)

// DefaultVegetable is used until a vegetable name is configured.
const DefaultVegetable = "Bayam"

var listKeys = map[string]bool{KeyDiet: true, KeyNotes: true}

// ValidKeys lists every settable profile key.
func ValidKeys() []string {
	return []string{KeyVegetableName, KeyOwnerName, KeyWhatsAppNumber, KeyDiet, KeyNotes}
}
