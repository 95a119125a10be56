package store

import (
	"testing"

	"github.com/avlasov/munipoints/internal/database"
)

func TestSettingsRoundTrip(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ss := NewSettingsStore(db)

	v, err := ss.Get(SettingRules)
	if err != nil {
		t.Fatalf("get unset: %v", err)
	}
	if v != "" {
		t.Errorf("unset value = %q, want empty", v)
	}

	if err := ss.Set(SettingRules, "Be kind."); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ss.Set(SettingRules, "Be kind. Post weekly."); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, _ = ss.Get(SettingRules)
	if v != "Be kind. Post weekly." {
		t.Errorf("value = %q, want overwritten text", v)
	}
}
