package runtime

import "testing"

func TestStrictIdentityMode(t *testing.T) {
	t.Run("production env", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		ResetStrictIdentityModeCache()
		if !StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = false, want true")
		}
	})

	t.Run("development env", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		ResetStrictIdentityModeCache()
		if StrictIdentityMode() {
			t.Fatalf("StrictIdentityMode() = true, want false")
		}
	})
}
