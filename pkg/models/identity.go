package models

import "time"

// IdentityType is the cryptographic protocol an Identity's key belongs to.
type IdentityType string

const (
	IdentityNostr IdentityType = "nostr"
	IdentityPubky IdentityType = "pubky"
)

// DNSPrefix is the Selfie Record subdomain prefix for this identity type
// (e.g. "_nostr.alice.btc").
func (t IdentityType) DNSPrefix() string {
	switch t {
	case IdentityNostr:
		return "_nostr"
	case IdentityPubky:
		return "_pubky"
	default:
		return "_unknown"
	}
}

// DNSPublishInfo records where an identity's public key has been published
// as a DNS TXT-style selfie record (§9 "Identity system").
type DNSPublishInfo struct {
	Domain      string    `json:"domain"`
	Subdomain   string    `json:"subdomain,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	RecordName  string    `json:"record_name"`
}

// Identity is a decentralized identity (Nostr or Pubky key) the wallet
// tracks so its public key can be embedded as a DNS selfie record payload.
// This package never touches private key material beyond storing whatever
// ciphertext the caller hands it.
type Identity struct {
	ID                 string         `json:"id"`
	Type               IdentityType   `json:"type"`
	Label              string         `json:"label"`
	PublicKeyHex       string         `json:"public_key"`
	PrivateKeyEncrypted string        `json:"private_key_encrypted"`
	IsPrimary          bool           `json:"is_primary"`
	DNSPublished       *DNSPublishInfo `json:"dns_published,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
