package identity

import (
	"testing"

	"github.com/rawblock/anchor-engine/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCreateFirstOfTypeBecomesPrimary(t *testing.T) {
	s := newTestStore(t)

	ident, err := s.Create(models.IdentityNostr, "My Nostr Key", "aa", "enc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ident.IsPrimary {
		t.Fatal("expected first identity of a type to be primary")
	}
}

func TestCreateRejectsDuplicatePublicKey(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(models.IdentityNostr, "First", "aa", "enc1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(models.IdentityNostr, "Second", "aa", "enc2"); err != ErrDuplicatePublicKey {
		t.Fatalf("expected ErrDuplicatePublicKey, got %v", err)
	}
}

func TestListByType(t *testing.T) {
	s := newTestStore(t)
	s.Create(models.IdentityNostr, "Nostr 1", "aa", "enc1")
	s.Create(models.IdentityPubky, "Pubky 1", "bb", "enc2")

	nostrOnly := s.ListByType(models.IdentityNostr)
	if len(nostrOnly) != 1 || nostrOnly[0].Label != "Nostr 1" {
		t.Fatalf("expected one nostr identity, got %+v", nostrOnly)
	}
}

func TestSetPrimarySwapsWithinType(t *testing.T) {
	s := newTestStore(t)
	id1, _ := s.Create(models.IdentityNostr, "Nostr 1", "aa", "enc1")
	id2, _ := s.Create(models.IdentityNostr, "Nostr 2", "bb", "enc2")

	if !id1.IsPrimary || id2.IsPrimary {
		t.Fatal("expected only the first identity to start primary")
	}

	if _, err := s.SetPrimary(id2.ID); err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}

	primary, ok := s.GetPrimary(models.IdentityNostr)
	if !ok || primary.ID != id2.ID {
		t.Fatalf("expected id2 to be primary, got %+v ok=%v", primary, ok)
	}
}

func TestSetDNSPublishedAndLookupByDomain(t *testing.T) {
	s := newTestStore(t)
	ident, _ := s.Create(models.IdentityNostr, "Nostr 1", "aa", "enc1")

	_, err := s.SetDNSPublished(ident.ID, &models.DNSPublishInfo{
		Domain:     "alice.btc",
		RecordName: "_nostr.alice.btc",
	})
	if err != nil {
		t.Fatalf("SetDNSPublished: %v", err)
	}

	published := s.PublishedToDomain("alice.btc")
	if len(published) != 1 || published[0].ID != ident.ID {
		t.Fatalf("expected identity published under alice.btc, got %+v", published)
	}
}

func TestDeletePromotesNewPrimary(t *testing.T) {
	s := newTestStore(t)
	id1, _ := s.Create(models.IdentityNostr, "Nostr 1", "aa", "enc1")
	id2, _ := s.Create(models.IdentityNostr, "Nostr 2", "bb", "enc2")

	if ok, err := s.Delete(id1.ID); err != nil || !ok {
		t.Fatalf("expected delete to succeed: ok=%v err=%v", ok, err)
	}

	primary, ok := s.GetPrimary(models.IdentityNostr)
	if !ok || primary.ID != id2.ID {
		t.Fatalf("expected remaining identity to become primary, got %+v ok=%v", primary, ok)
	}
}

func TestPersistenceAcrossStoreReload(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ident, err := s1.Create(models.IdentityNostr, "Persistent", "aa", "enc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s2, err := New(dir)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	loaded, ok := s2.Get(ident.ID)
	if !ok || loaded.Label != "Persistent" {
		t.Fatalf("expected identity to survive reload, got %+v ok=%v", loaded, ok)
	}
}
