package profile

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]string

	getAllCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) SetProfileKey(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockStore) GetProfileKey(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", nil
	}
	return v, nil
}

func (m *mockStore) GetAllProfileKeys() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	cp := make(map[string]string, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return cp, nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func TestGetProfile_EmptyUsesDefaultVegetable(t *testing.T) {
	mgr := NewManager(newMockStore())

	p, err := mgr.GetProfile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.VegetableName != DefaultVegetable {
		t.Errorf("VegetableName = %q, want %q", p.VegetableName, DefaultVegetable)
	}
	if len(p.Diet) != 0 || p.OwnerName != "" {
		t.Errorf("expected empty profile, got %+v", p)
	}
}

func TestSetField(t *testing.T) {
	mgr := NewManager(newMockStore())

	if err := mgr.SetField(KeyVegetableName, " Kangkung "); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if err := mgr.SetField(KeyDiet, "vegetarian, low salt ,"); err != nil {
		t.Fatalf("SetField list: %v", err)
	}
	if err := mgr.SetField(KeyNotes, []string{"Stored in the lower drawer."}); err != nil {
		t.Fatalf("SetField slice: %v", err)
	}
	if err := mgr.SetField(KeyWhatsAppNumber, "0812-3456-789"); err != nil {
		t.Fatalf("SetField phone: %v", err)
	}

	p, err := mgr.GetProfile()
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.VegetableName != "Kangkung" {
		t.Errorf("VegetableName = %q", p.VegetableName)
	}
	if len(p.Diet) != 2 || p.Diet[1] != "low salt" {
		t.Errorf("Diet = %v", p.Diet)
	}
	if p.WhatsAppNumber != "628123456789" {
		t.Errorf("WhatsAppNumber = %q", p.WhatsAppNumber)
	}
	if got := mgr.VegetableName(); got != "Kangkung" {
		t.Errorf("VegetableName() = %q", got)
	}
}

func TestSetField_Rejects(t *testing.T) {
	mgr := NewManager(newMockStore())
	if err := mgr.SetField("identity.role", "x"); err == nil {
		t.Error("unknown key accepted")
	}
	if err := mgr.SetField(KeyOwnerName, 42); err == nil {
		t.Error("non-string value accepted")
	}
}

func TestSummary(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.SetField(KeyOwnerName, "Sari")
	mgr.SetField(KeyDiet, []string{"vegetarian"})

	summary, err := mgr.Summary()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Bayam", "Sari", "vegetarian"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q: %s", want, summary)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"0812 345 678":    "62812345678",
		"+62 812-345-678": "62812345678",
		"62812":           "62812",
	}
	for in, want := range tests {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCacheTTL(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, clock, 60*time.Second)

	mgr.SetField(KeyOwnerName, "Sari")
	mgr.GetProfile()
	mgr.GetProfile()

	store.mu.Lock()
	calls := store.getAllCalls
	store.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected 1 store call (cache hit on second), got %d", calls)
	}

	clock.Advance(61 * time.Second)
	mgr.GetProfile()

	store.mu.Lock()
	calls = store.getAllCalls
	store.mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 store calls (cache expired), got %d", calls)
	}
}

func TestGetProfile_ReturnsCopy(t *testing.T) {
	mgr := NewManager(newMockStore())
	mgr.SetField(KeyDiet, []string{"vegan"})

	p, _ := mgr.GetProfile()
	p.Diet[0] = "mutated"
	again, _ := mgr.GetProfile()
	if again.Diet[0] != "vegan" {
		t.Errorf("cache aliased: Diet = %v", again.Diet)
	}
}
