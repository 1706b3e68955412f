package api

import (
	"os"
	"path/filepath"
	"testing"

	"skimo-var/core/authz"
)

func TestKeyringResolvesTokens(t *testing.T) {
	kr, err := LoadKeyring(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := kr.Install(7, "gate-1", authz.RoleEdge, "s3cret"); err != nil {
		t.Fatalf("install: %v", err)
	}

	actor, ok := kr.Resolve("7:s3cret")
	if !ok {
		t.Fatalf("valid token rejected")
	}
	if actor.ID != 7 || actor.Role != authz.RoleEdge || actor.Name != "gate-1" {
		t.Fatalf("actor = %+v", actor)
	}

	for _, token := range []string{"7:wrong", "8:s3cret", "s3cret", "", "x:s3cret"} {
		if _, ok := kr.Resolve(token); ok {
			t.Fatalf("token %q resolved", token)
		}
	}
}

func TestInstallRejectsUnknownRole(t *testing.T) {
	kr := &Keyring{byID: map[int64]AccessKey{}}
	if err := kr.Install(1, "x", "referee", "s"); err == nil {
		t.Fatalf("unknown role accepted")
	}
}

func TestLoadKeyringFromFile(t *testing.T) {
	kr := &Keyring{byID: map[int64]AccessKey{}}
	if err := kr.Install(5, "jury-a", authz.RoleJury, "pass"); err != nil {
		t.Fatalf("install: %v", err)
	}
	hash := kr.byID[5].KeyHash

	path := filepath.Join(t.TempDir(), "keys.yaml")
	content := "keys:\n  - id: 5\n    name: jury-a\n    role: jury\n    key_hash: \"" + hash + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := LoadKeyring(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	actor, ok := loaded.Resolve("5:pass")
	if !ok || actor.Role != authz.RoleJury {
		t.Fatalf("resolve from file failed: %v %v", actor, ok)
	}
}
