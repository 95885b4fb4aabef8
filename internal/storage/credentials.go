package storage

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// CredsKey is the fixed key the credentials live under.
const CredsKey = "creds"

// KeyPair is an X25519 key pair.
type KeyPair struct {
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

// SigningKeyPair is an Ed25519 key pair.
type SigningKeyPair struct {
	Private ed25519.PrivateKey `json:"private"`
	Public  ed25519.PublicKey  `json:"public"`
}

type SignedKeyPair struct {
	KeyID     uint32  `json:"key_id"`
	KeyPair   KeyPair `json:"key_pair"`
	Signature []byte  `json:"signature"`
}

// Account identifies the paired user on the messaging network.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Credentials is the long-lived identity of the session. Transports may keep
// their own fields in Extra.
type Credentials struct {
	NoiseKey            KeyPair        `json:"noise_key"`
	PairingEphemeralKey KeyPair        `json:"pairing_ephemeral_key"`
	SignedIdentityKey   KeyPair        `json:"signed_identity_key"`
	SigningKey          SigningKeyPair `json:"signing_key"`
	SignedPreKey        SignedKeyPair  `json:"signed_pre_key"`

	RegistrationID          uint16 `json:"registration_id"`
	AdvSecretKey            []byte `json:"adv_secret_key"`
	NextPreKeyID            uint32 `json:"next_pre_key_id"`
	FirstUnuploadedPreKeyID uint32 `json:"first_unuploaded_pre_key_id"`

	Registered  bool     `json:"registered"`
	Me          *Account `json:"me,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	PairingCode string   `json:"pairing_code,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// NewCredentials generates a fresh, unpaired identity.
func NewCredentials() (*Credentials, error) {
	noise, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	ephemeral, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	identity, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	preKey, err := newKeyPair()
	if err != nil {
		return nil, err
	}
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ed25519: %w", err)
	}

	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	adv := make([]byte, 32)
	if _, err := rand.Read(adv); err != nil {
		return nil, err
	}

	return &Credentials{
		NoiseKey:            noise,
		PairingEphemeralKey: ephemeral,
		SignedIdentityKey:   identity,
		SigningKey:          SigningKeyPair{Private: edPriv, Public: edPub},
		SignedPreKey: SignedKeyPair{
			KeyID:     1,
			KeyPair:   preKey,
			Signature: ed25519.Sign(edPriv, preKey.Public),
		},
		RegistrationID:          binary.BigEndian.Uint16(buf[:]) & 0x3fff,
		AdvSecretKey:            adv,
		NextPreKeyID:            1,
		FirstUnuploadedPreKeyID: 1,
	}, nil
}

// VerifyPreKey checks the signed pre-key signature.
func (c *Credentials) VerifyPreKey() bool {
	if c == nil || len(c.SigningKey.Public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(c.SigningKey.Public, c.SignedPreKey.KeyPair.Public, c.SignedPreKey.Signature)
}

func newKeyPair() (KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return KeyPair{}, err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("x25519: %w", err)
	}
	return KeyPair{Private: priv, Public: pub}, nil
}
