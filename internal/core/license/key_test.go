package license

import (
	"strings"
	"testing"
)

var testSecret = []byte("service-secret")

func TestGenerateServerKey_Format(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		key, err := GenerateServerKey()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(key) != 19 || strings.Count(key, "-") != 3 {
			t.Fatalf("unexpected key layout: %q", key)
		}
		if !WellFormed(key) {
			t.Fatalf("generated key not well formed: %q", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key generated: %q", key)
		}
		seen[key] = struct{}{}
	}
}

func TestNormalizeAndFormat(t *testing.T) {
	cases := map[string]string{
		"abcd-efgh-ijkl-mnop":   "ABCD-EFGH-IJKL-MNOP",
		"ABCDEFGHIJKLMNOP":      "ABCD-EFGH-IJKL-MNOP",
		" ab cd-ef gh ijklmnop ": "ABCD-EFGH-IJKL-MNOP",
	}
	for in, want := range cases {
		if got := Format(in); got != want {
			t.Errorf("Format(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Normalize("abcd-EFGH"); got != "ABCDEFGH" {
		t.Fatalf("Normalize returned %q", got)
	}
}

func TestDeriveClientKey_DeviceBound(t *testing.T) {
	server := "ABCD-EFGH-IJKL-MNOP"

	a := DeriveClientKey(testSecret, server, "device-a")
	if !WellFormed(a) {
		t.Fatalf("client key not well formed: %q", a)
	}
	if a != DeriveClientKey(testSecret, strings.ToLower(server), "device-a") {
		t.Fatalf("derivation must not depend on server key formatting")
	}
	if a == DeriveClientKey(testSecret, server, "device-b") {
		t.Fatalf("different devices must get different client keys")
	}
	if a == DeriveClientKey([]byte("other-secret"), server, "device-a") {
		t.Fatalf("different secrets must get different client keys")
	}
}

func TestVerifyClientKey(t *testing.T) {
	server := "ABCD-EFGH-IJKL-MNOP"
	key := DeriveClientKey(testSecret, server, "device-a")

	if !VerifyClientKey(testSecret, server, "device-a", key) {
		t.Fatalf("expected key to verify for its device")
	}
	if !VerifyClientKey(testSecret, server, "device-a", strings.ToLower(strings.ReplaceAll(key, "-", ""))) {
		t.Fatalf("expected hand-typed key to verify")
	}
	if VerifyClientKey(testSecret, server, "device-b", key) {
		t.Fatalf("key must not verify for another device")
	}
}

func TestWellFormed(t *testing.T) {
	if WellFormed("ABCD-EFGH") {
		t.Fatalf("short key accepted")
	}
	if WellFormed("ABCD-EFGH-IJKL-MN01") {
		t.Fatalf("digits outside the alphabet accepted")
	}
}
