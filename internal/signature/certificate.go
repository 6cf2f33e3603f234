package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
)

const rsaKeyBits = 2048

// Subject describes the certificate holder.
type Subject struct {
	CommonName string
	Country    string
	OrgUnit    string
}

// Certificate bundles the PEM-encoded artifacts of one issuance. The caller
// hands the material to the external key store; the service keeps nothing.
type Certificate struct {
	CertificatePEM string `json:"certificate"`
	PrivateKeyPEM  string `json:"private_key"`
	PublicKeyPEM   string `json:"public_key"`
}

// IssueCertificate generates an RSA keypair and a self-signed certificate
// valid for the configured window (1 year by default).
func (s *Service) IssueCertificate(userID string, subject Subject) (Certificate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Certificate{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(subject.CommonName) == "" {
		subject.CommonName = userID
	}
	if subject.Country == "" {
		subject.Country = "TN"
	}
	if subject.OrgUnit == "" {
		subject.OrgUnit = "PCA"
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return Certificate{}, fmt.Errorf("generate keypair: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	notBefore := s.now().UTC()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         subject.CommonName,
			Country:            []string{subject.Country},
			OrganizationalUnit: []string{subject.OrgUnit},
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(s.certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return Certificate{}, fmt.Errorf("create certificate: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Certificate{}, fmt.Errorf("encode public key: %w", err)
	}

	return Certificate{
		CertificatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		PrivateKeyPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})),
		PublicKeyPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
	}, nil
}

// SignDocument signs the SHA-256 digest of the document with the PEM-encoded
// private key.
func SignDocument(document []byte, privateKeyPEM string) ([]byte, error) {
	key, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(document)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign document: %w", err)
	}
	return sig, nil
}

// VerifyDocumentSignature checks the signature over the document's SHA-256
// digest. Any failure, including malformed keys, yields false.
func VerifyDocumentSignature(document, sig []byte, publicKeyPEM string) bool {
	key, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(document)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: invalid PEM private key", ErrCrypto)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
		}
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: unsupported private key type", ErrCrypto)
	default:
		return nil, fmt.Errorf("%w: unsupported private key type %s", ErrCrypto, block.Type)
	}
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: invalid PEM public key", ErrCrypto)
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA public key", ErrCrypto)
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported public key type %s", ErrCrypto, block.Type)
	}
}
