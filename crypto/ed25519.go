// Package crypto supplies the signature capability used for transactions and blocks.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
)

// Verifier checks a signature over a message digest.
type Verifier interface {
	Verify(pub, msg, sig []byte) bool
}

type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// KeypairFromSecret derives the keypair whose seed is sha256(secret).
func KeypairFromSecret(secret string) Keypair {
	seed := sha256.Sum256([]byte(secret))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return Keypair{
		PublicKey:  priv.Public().(ed25519.PublicKey),
		PrivateKey: priv,
	}
}

func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.PrivateKey, msg)
}

func (k Keypair) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey)
}

type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// Hash is the digest signatures are computed over.
func Hash(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}
