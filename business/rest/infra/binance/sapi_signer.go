package binance

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	_ "crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/cryptoproxy/mktproxy/internal/apperror"
)

// SAPISigner holds the Ed25519 key used to sign authenticated SAPI query
// strings. The signature is the base64-encoded Ed25519 signature over the
// exact query string (type, timestamp, recvWindow, in declared order).
type SAPISigner struct {
	apiKey  string
	private ed25519.PrivateKey
}

// NewSAPISigner loads an Ed25519 private key from a PEM file at path,
// optionally PKCS8-encrypted with password (PBES2 / PBKDF2 + AES-CBC, the
// layout OpenSSL produces by default for `openssl pkcs8 -topk8 -v2`).
func NewSAPISigner(apiKey, path, password string) (*SAPISigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.New(apperror.CodeAuthKeyLoadFailed, apperror.WithCause(err))
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, apperror.New(apperror.CodeAuthKeyLoadFailed,
			apperror.WithContext("no PEM block found"))
	}

	der := block.Bytes
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		der, err = decryptPKCS8(der, []byte(password))
		if err != nil {
			return nil, apperror.New(apperror.CodeAuthKeyLoadFailed, apperror.WithCause(err))
		}
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, apperror.New(apperror.CodeAuthKeyLoadFailed, apperror.WithCause(err))
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, apperror.New(apperror.CodeAuthKeyLoadFailed,
			apperror.WithContext("private key is not Ed25519"))
	}

	return &SAPISigner{apiKey: apiKey, private: edKey}, nil
}

// APIKey returns the configured API key header value.
func (s *SAPISigner) APIKey() string { return s.apiKey }

// Sign returns the base64-encoded Ed25519 signature over queryString.
func (s *SAPISigner) Sign(queryString string) (string, error) {
	if s.private == nil {
		return "", apperror.New(apperror.CodeAuthSignFailed, apperror.WithContext("signer has no key loaded"))
	}
	sig := ed25519.Sign(s.private, []byte(queryString))
	return base64.StdEncoding.EncodeToString(sig), nil
}

// pbes2Params mirrors the ASN.1 structure of a PBES2 AlgorithmIdentifier
// as produced by OpenSSL's default PKCS8 encryption.
type pbes2Params struct {
	KeyDerivationFunc pkixAlgorithmIdentifier
	EncryptionScheme  pkixAlgorithmIdentifier
}

type pkixAlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type pbkdf2Params struct {
	Salt           []byte
	IterationCount int
	KeyLength      int `asn1:"optional"`
	PRF            pkixAlgorithmIdentifier `asn1:"optional"`
}

type encryptedPrivateKeyInfo struct {
	Algorithm  pkixAlgorithmIdentifier
	Encrypted  []byte
}

// decryptPKCS8 decrypts an ASN.1 EncryptedPrivateKeyInfo using PBES2 with
// PBKDF2 key derivation and AES-CBC encryption, returning the inner
// PKCS8 DER. Only the AES-128/192/256-CBC schemes are supported; other
// PBES2 encryption schemes are rejected rather than silently mishandled.
func decryptPKCS8(der []byte, password []byte) ([]byte, error) {
	var info encryptedPrivateKeyInfo
	if _, err := asn1.Unmarshal(der, &info); err != nil {
		return nil, fmt.Errorf("parse EncryptedPrivateKeyInfo: %w", err)
	}

	var params pbes2Params
	if _, err := asn1.Unmarshal(info.Algorithm.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("parse PBES2 params: %w", err)
	}

	var kdfParams pbkdf2Params
	if _, err := asn1.Unmarshal(params.KeyDerivationFunc.Parameters.FullBytes, &kdfParams); err != nil {
		return nil, fmt.Errorf("parse PBKDF2 params: %w", err)
	}

	keyLen, blockIV, err := aesCBCKeyLen(params.EncryptionScheme.Algorithm.String())
	if err != nil {
		return nil, err
	}
	var iv []byte
	if _, err := asn1.Unmarshal(params.EncryptionScheme.Parameters.FullBytes, &iv); err != nil {
		return nil, fmt.Errorf("parse AES-CBC IV: %w", err)
	}
	if len(iv) != blockIV {
		return nil, fmt.Errorf("unexpected IV length %d", len(iv))
	}

	key := pbkdf2.Key(password, kdfParams.Salt, kdfParams.IterationCount, keyLen, crypto.SHA256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(info.Encrypted)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("encrypted payload is not block-aligned")
	}
	out := make([]byte, len(info.Encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, info.Encrypted)

	return pkcs7Unpad(out, block.BlockSize())
}

func aesCBCKeyLen(oid string) (keyLen, ivLen int, err error) {
	switch oid {
	case "2.16.840.1.101.3.4.1.2": // aes128-CBC
		return 16, 16, nil
	case "2.16.840.1.101.3.4.1.22": // aes192-CBC
		return 24, 16, nil
	case "2.16.840.1.101.3.4.1.42": // aes256-CBC
		return 32, 16, nil
	default:
		return 0, 0, fmt.Errorf("unsupported PBES2 encryption scheme %s", oid)
	}
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid PKCS7 padding")
	}
	return data[:len(data)-padLen], nil
}
