package provider

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	log "github.com/cloudposse/grant/pkg/logger"
)

// KeyMaterial is the per-session ephemeral SSH key pair plus the pinned
// known_hosts file. Everything lives in a unique temp dir owned by exactly
// one session and deleted on teardown.
type KeyMaterial struct {
	Dir            string
	PrivateKeyPath string
	PublicKey      string
	KnownHostsPath string
}

// GenerateKeyMaterial creates an ed25519 key pair in dir and, when the
// backend pinned a host key, a known_hosts file binding it to the alias.
func GenerateKeyMaterial(dir, hostAlias, hostPublicKey string) (*KeyMaterial, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(priv, "grant session key")
	if err != nil {
		return nil, fmt.Errorf("failed to encode session key: %w", err)
	}

	privPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(pemBlock), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write session key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session public key: %w", err)
	}
	authorized := string(ssh.MarshalAuthorizedKey(sshPub))

	km := &KeyMaterial{
		Dir:            dir,
		PrivateKeyPath: privPath,
		PublicKey:      authorized,
	}

	if hostPublicKey != "" {
		knownHostsPath := filepath.Join(dir, "known_hosts")
		line := fmt.Sprintf("%s %s\n", hostAlias, hostPublicKey)
		if err := os.WriteFile(knownHostsPath, []byte(line), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write known_hosts: %w", err)
		}
		km.KnownHostsPath = knownHostsPath
	}

	log.Debug("Generated ephemeral session key", "dir", dir, "pinned_host_key", hostPublicKey != "")
	return km, nil
}
