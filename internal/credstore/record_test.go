package credstore

import (
	"testing"
	"time"
)

func TestCapabilityKey(t *testing.T) {
	t.Run("order-insensitive", func(t *testing.T) {
		a := CapabilityKey([]string{"calendar.read", "calendar.write"})
		b := CapabilityKey([]string{"calendar.write", "calendar.read"})
		if a != b {
			t.Errorf("equal scope sets must share a key: %q vs %q", a, b)
		}
	})

	t.Run("different sets differ", func(t *testing.T) {
		a := CapabilityKey([]string{"calendar.read"})
		b := CapabilityKey([]string{"mail.read"})
		if a == b {
			t.Error("distinct scope sets must not collide")
		}
	})

	t.Run("stable length", func(t *testing.T) {
		key := CapabilityKey([]string{"calendar.read"})
		if len(key) != 16 {
			t.Errorf("expected 16 hex chars, got %d (%q)", len(key), key)
		}
	})
}

func TestRecordIsExpired(t *testing.T) {
	t.Run("no expiry never expires", func(t *testing.T) {
		r := &Record{AccessToken: "at"}
		if r.IsExpired() {
			t.Error("record without ExpiresAt should not expire")
		}
	})

	t.Run("inside margin counts as expired", func(t *testing.T) {
		r := &Record{AccessToken: "at", ExpiresAt: time.Now().Add(30 * time.Second)}
		if !r.IsExpired() {
			t.Error("record expiring within the margin should count as expired")
		}
	})

	t.Run("outside margin is valid", func(t *testing.T) {
		r := &Record{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)}
		if r.IsExpired() {
			t.Error("record expiring in an hour should be valid")
		}
	})

	t.Run("custom margin widens the expiry window", func(t *testing.T) {
		r := &Record{AccessToken: "at", ExpiresAt: time.Now().Add(2 * time.Minute)}
		if r.IsExpired() {
			t.Error("record should be valid under the default margin")
		}
		if !r.IsExpiredWithMargin(5 * time.Minute) {
			t.Error("record should count as expired under a 5m margin")
		}
	})
}

func TestRecordRefreshable(t *testing.T) {
	if (&Record{}).Refreshable() {
		t.Error("record without refresh token is not refreshable")
	}
	if !(&Record{RefreshToken: "rt"}).Refreshable() {
		t.Error("record with refresh token is refreshable")
	}
}

func TestRecordHasScope(t *testing.T) {
	r := &Record{Scopes: []string{"calendar.read", "calendar.write"}}
	if !r.HasScope("calendar.read") {
		t.Error("expected scope to be present")
	}
	if r.HasScope("mail.read") {
		t.Error("unexpected scope reported present")
	}
}
