//go:build windows

package secrets

import (
	"bytes"
	"errors"
	"testing"
)

func TestDPAPIProtectUnprotectRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("token-data-"), 700)

	protected, err := dpapiProtect(plain)
	if err != nil {
		t.Fatalf("protect failed: %v", err)
	}
	if bytes.Equal(protected, plain) {
		t.Fatal("protect returned plaintext")
	}

	roundTrip, err := dpapiUnprotect(protected)
	if err != nil {
		t.Fatalf("unprotect failed: %v", err)
	}
	if !bytes.Equal(roundTrip, plain) {
		t.Fatal("round trip mismatch")
	}
}

func TestDPAPIStoreSetGetDelete(t *testing.T) {
	store := &DPAPIStore{baseDir: t.TempDir()}
	key := "account-1-test@example.com"
	want := []byte(`{"claudeAiOauth":{"accessToken":"access-token"}}`)

	if err := store.Set(key, want); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected value: %s", got)
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
