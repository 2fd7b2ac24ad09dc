// Package spkgsig provides optional detached-signature verification for
// downloaded sources using Ed25519. A signature blob is a version varint
// followed by varint-prefixed public key and signature. Trust material is
// read from the keys directory; the file name is the signer name.
package spkgsig

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/ed25519"
)

// SigReader is an interface for reading signature data, combining
// io.Reader and io.ByteReader for efficient varint parsing.
type SigReader interface {
	io.Reader
	io.ByteReader
}

// ErrSignatureInvalid is returned for bad or untrusted signatures.
var ErrSignatureInvalid = errors.New("invalid signature")

// VerifyResult contains the result of a successful verification.
type VerifyResult struct {
	Version int    // Signature format version
	Key     string // Base64-encoded public key
	Name    string // Name of the trusted signer
}

// SignatureSize is the maximum size of a signature blob in bytes.
const SignatureSize = 3 + ed25519.PublicKeySize + ed25519.SignatureSize

// Verify checks data against a signature blob and a trust map of
// base64-encoded public keys to signer names.
func Verify(data []byte, sig SigReader, trust map[string]string) (*VerifyResult, error) {
	vers, err := readUvarint(sig)
	if err != nil {
		return nil, err
	}
	if vers != 0x0001 {
		return nil, errors.New("unsupported signature version")
	}

	pub, err := ReadVarblob(sig, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	blob, err := ReadVarblob(sig, ed25519.SignatureSize)
	if err != nil {
		return nil, err
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), data, blob) {
		return nil, ErrSignatureInvalid
	}

	keyS := base64.RawURLEncoding.EncodeToString(pub)
	keyN, ok := trust[keyS]
	if !ok {
		return nil, errors.New("signature from untrusted key")
	}

	return &VerifyResult{Version: int(vers), Key: keyS, Name: keyN}, nil
}

// VerifyFile checks the file at path against the detached signature at
// sigPath.
func VerifyFile(path, sigPath string, trust map[string]string) (*VerifyResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, err
	}
	return Verify(data, bytes.NewReader(sig), trust)
}

// Sign produces a signature blob for data.
func Sign(data []byte, priv ed25519.PrivateKey) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte(0x01) // version varint

	pub := priv.Public().(ed25519.PublicKey)
	if err := WriteVarblob(buf, pub); err != nil {
		return nil, err
	}
	if err := WriteVarblob(buf, ed25519.Sign(priv, data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
