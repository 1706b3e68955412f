package api

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/crypto/bcrypt"

	"skimo-var/core/authz"
)

// AccessKey is one provisioned credential: an edge device, a VAR operator
// station or a jury seat. Secrets are bcrypt-hashed at rest; the venue
// provisioning tool writes this file before the race.
type AccessKey struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Role    string `yaml:"role"`
	KeyHash string `yaml:"key_hash"`
}

type keyFile struct {
	Keys []AccessKey `yaml:"keys"`
}

// Keyring resolves bearer tokens of the form "<id>:<secret>" to actors.
type Keyring struct {
	byID map[int64]AccessKey
}

func LoadKeyring(path string) (*Keyring, error) {
	kr := &Keyring{byID: map[int64]AccessKey{}}
	if _, err := os.Stat(path); err != nil {
		// No key file means no one can authenticate; legal for tests
		// that install keys programmatically.
		return kr, nil
	}
	var kf keyFile
	if err := cleanenv.ReadConfig(path, &kf); err != nil {
		return nil, err
	}
	for _, k := range kf.Keys {
		if err := validateKey(k); err != nil {
			return nil, err
		}
		kr.byID[k.ID] = k
	}
	return kr, nil
}

func validateKey(k AccessKey) error {
	switch k.Role {
	case authz.RoleEdge, authz.RoleOperator, authz.RoleJury:
	default:
		return fmt.Errorf("access key %d has unknown role %q", k.ID, k.Role)
	}
	if k.ID <= 0 || strings.TrimSpace(k.KeyHash) == "" {
		return fmt.Errorf("access key %d is malformed", k.ID)
	}
	return nil
}

// Install registers a key at runtime, hashing the given secret.
func (kr *Keyring) Install(id int64, name, role, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	k := AccessKey{ID: id, Name: name, Role: role, KeyHash: string(hash)}
	if err := validateKey(k); err != nil {
		return err
	}
	kr.byID[id] = k
	return nil
}

// Resolve checks a bearer token and returns the matching actor.
func (kr *Keyring) Resolve(token string) (*authz.Actor, bool) {
	idPart, secret, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok {
		return nil, false
	}
	var id int64
	if _, err := fmt.Sscanf(idPart, "%d", &id); err != nil {
		return nil, false
	}
	key, ok := kr.byID[id]
	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)) != nil {
		return nil, false
	}
	return &authz.Actor{ID: key.ID, Name: key.Name, Role: key.Role}, true
}
