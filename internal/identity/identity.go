// Package identity manages decentralized identities (Nostr, Pubky) that can
// be published as DNS selfie records (§9 "Identity system" and SUPPLEMENTED
// FEATURES). It is an external collaborator to the core protocol: cmd/engine
// loads it at startup, and it owns no anchor-graph state of its own. Grounded on
// original_source/internal/anchor-wallet/src/identity.rs, following the
// JSON-file-behind-a-mutex idiom internal/lockmgr already establishes for
// this codebase.
package identity

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/anchor-engine/pkg/models"
)

// state is the on-disk shape of identities.json.
type state struct {
	Identities []models.Identity `json:"identities"`
	Version    int                `json:"version"`
}

// Store loads and persists identities.json, keeping identities in memory
// behind a RWMutex between saves.
type Store struct {
	mu        sync.RWMutex
	statePath string
	state     state
}

// New loads (or creates) identities.json under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("identity: create data dir: %w", err)
	}
	statePath := filepath.Join(dataDir, "identities.json")

	s := &Store{statePath: statePath, state: state{Version: 1}}

	raw, err := os.ReadFile(statePath)
	switch {
	case os.IsNotExist(err):
		log.Println("[identity] no existing identity state file, starting fresh")
	case err != nil:
		return nil, fmt.Errorf("identity: read state: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.state); err != nil {
			log.Printf("[identity] failed to parse identity state, starting fresh: %v", err)
			s.state = state{Version: 1}
		} else {
			log.Printf("[identity] loaded %d identities from disk", len(s.state.Identities))
		}
	}

	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) save() error {
	content, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal state: %w", err)
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("identity: write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return fmt.Errorf("identity: rename state: %w", err)
	}
	return nil
}

func findIndex(identities []models.Identity, id string) int {
	for i, ident := range identities {
		if ident.ID == id {
			return i
		}
	}
	return -1
}

// ErrDuplicatePublicKey is returned by Create when another identity already
// carries the same public key.
var ErrDuplicatePublicKey = fmt.Errorf("identity: public key already registered")

// ErrNotFound is returned when an operation references an unknown identity
// ID.
var ErrNotFound = fmt.Errorf("identity: not found")

// Create registers a new identity, making it primary if it is the first of
// its type.
func (s *Store) Create(typ models.IdentityType, label, publicKeyHex, privateKeyEncrypted string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ident := range s.state.Identities {
		if ident.PublicKeyHex == publicKeyHex {
			return models.Identity{}, ErrDuplicatePublicKey
		}
	}

	isFirstOfType := true
	for _, ident := range s.state.Identities {
		if ident.Type == typ {
			isFirstOfType = false
			break
		}
	}

	now := time.Now().UTC()
	ident := models.Identity{
		ID:                  uuid.New().String(),
		Type:                typ,
		Label:               label,
		PublicKeyHex:        publicKeyHex,
		PrivateKeyEncrypted: privateKeyEncrypted,
		IsPrimary:           isFirstOfType,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.state.Identities = append(s.state.Identities, ident)

	if err := s.save(); err != nil {
		return models.Identity{}, err
	}
	log.Printf("[identity] created %s identity %q", typ, label)
	return ident, nil
}

// List returns every identity.
func (s *Store) List() []models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Identity, len(s.state.Identities))
	copy(out, s.state.Identities)
	return out
}

// ListByType filters identities by protocol.
func (s *Store) ListByType(typ models.IdentityType) []models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Identity
	for _, ident := range s.state.Identities {
		if ident.Type == typ {
			out = append(out, ident)
		}
	}
	return out
}

// Get returns an identity by ID.
func (s *Store) Get(id string) (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := findIndex(s.state.Identities, id)
	if idx < 0 {
		return models.Identity{}, false
	}
	return s.state.Identities[idx], true
}

// GetPrimary returns the primary identity for a type, if any.
func (s *Store) GetPrimary(typ models.IdentityType) (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ident := range s.state.Identities {
		if ident.Type == typ && ident.IsPrimary {
			return ident, true
		}
	}
	return models.Identity{}, false
}

// SetPrimary marks id as the primary identity of its type, demoting any
// previous primary of the same type.
func (s *Store) SetPrimary(id string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findIndex(s.state.Identities, id)
	if idx < 0 {
		return models.Identity{}, ErrNotFound
	}
	typ := s.state.Identities[idx].Type
	for i := range s.state.Identities {
		if s.state.Identities[i].Type == typ {
			s.state.Identities[i].IsPrimary = s.state.Identities[i].ID == id
		}
	}
	s.state.Identities[idx].UpdatedAt = time.Now().UTC()

	if err := s.save(); err != nil {
		return models.Identity{}, err
	}
	return s.state.Identities[idx], nil
}

// SetDNSPublished records (or clears, passing nil) an identity's selfie
// record publication.
func (s *Store) SetDNSPublished(id string, info *models.DNSPublishInfo) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findIndex(s.state.Identities, id)
	if idx < 0 {
		return models.Identity{}, ErrNotFound
	}
	s.state.Identities[idx].DNSPublished = info
	s.state.Identities[idx].UpdatedAt = time.Now().UTC()

	if err := s.save(); err != nil {
		return models.Identity{}, err
	}
	if info != nil {
		log.Printf("[identity] published %s to %s", s.state.Identities[idx].Label, info.Domain)
	}
	return s.state.Identities[idx], nil
}

// PublishedToDomain returns every identity currently published under domain.
func (s *Store) PublishedToDomain(domain string) []models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Identity
	for _, ident := range s.state.Identities {
		if ident.DNSPublished != nil && ident.DNSPublished.Domain == domain {
			out = append(out, ident)
		}
	}
	return out
}

// Delete removes an identity, promoting another of the same type to
// primary if the deleted one held that role.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := findIndex(s.state.Identities, id)
	if idx < 0 {
		return false, nil
	}
	deleted := s.state.Identities[idx]
	s.state.Identities = append(s.state.Identities[:idx], s.state.Identities[idx+1:]...)

	if deleted.IsPrimary {
		for i := range s.state.Identities {
			if s.state.Identities[i].Type == deleted.Type {
				s.state.Identities[i].IsPrimary = true
				break
			}
		}
	}

	if err := s.save(); err != nil {
		return false, err
	}
	log.Printf("[identity] deleted identity %q", deleted.Label)
	return true, nil
}
