package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/cert"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Key wraps an X.509-derived RSA key pair together with its JWK
// representation. The key id is the base64url-encoded SHA-1 thumbprint
// of the certificate, which doubles as the x5t value.
type Key struct {
	Certificate *x509.Certificate
	NotBefore   time.Time
	NotAfter    time.Time

	private jwk.Key
	public  jwk.Key
}

// NewKey builds a signing key from a certificate and its RSA private key.
// Keys without a private key are rejected; signing requires one.
func NewKey(certificate *x509.Certificate, privateKey *rsa.PrivateKey) (*Key, error) {
	if certificate == nil {
		return nil, fmt.Errorf("signing key requires a certificate")
	}
	if privateKey == nil {
		return nil, fmt.Errorf("signing key %q has no private key", certificate.Subject.CommonName)
	}
	if _, ok := certificate.PublicKey.(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("signing key %q is not RS256 capable", certificate.Subject.CommonName)
	}

	thumbprint := sha1.Sum(certificate.Raw)
	kid := base64.RawURLEncoding.EncodeToString(thumbprint[:])

	private, err := jwk.FromRaw(privateKey)
	if err != nil {
		return nil, fmt.Errorf("create jwk from private key: %w", err)
	}

	chain := &cert.Chain{}
	if err := chain.AddString(base64.StdEncoding.EncodeToString(certificate.Raw)); err != nil {
		return nil, fmt.Errorf("encode certificate chain: %w", err)
	}

	private.Set(jwk.KeyIDKey, kid)
	private.Set(jwk.AlgorithmKey, jwa.RS256)
	private.Set(jwk.KeyUsageKey, jwk.ForSignature)
	private.Set(jwk.X509CertChainKey, chain)
	private.Set(jwk.X509CertThumbprintKey, kid)

	public, err := private.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public jwk: %w", err)
	}

	return &Key{
		Certificate: certificate,
		NotBefore:   certificate.NotBefore,
		NotAfter:    certificate.NotAfter,
		private:     private,
		public:      public,
	}, nil
}

// KeyID returns the kid shared by the private and public JWK forms.
func (k *Key) KeyID() string {
	return k.private.KeyID()
}

// ValidAt reports whether t falls within the certificate validity window.
func (k *Key) ValidAt(t time.Time) bool {
	return !t.Before(k.NotBefore) && !t.After(k.NotAfter)
}

// PrivateJWK returns the signing form of the key.
func (k *Key) PrivateJWK() jwk.Key {
	return k.private
}

// PublicJWK returns the publication form of the key, suitable for the
// JWKS document and for signature verification.
func (k *Key) PublicJWK() jwk.Key {
	return k.public
}

// LoadKeyFromPEM reads a certificate and its RSA private key from the
// given PEM files. PKCS#1 and PKCS#8 private key encodings are accepted.
func LoadKeyFromPEM(certificatePath, privateKeyPath string) (*Key, error) {
	certificate, err := readCertificatePEM(certificatePath)
	if err != nil {
		return nil, fmt.Errorf("read certificate '%s': %w", certificatePath, err)
	}
	privateKey, err := readPrivateKeyPEM(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key '%s': %w", privateKeyPath, err)
	}
	return NewKey(certificate, privateKey)
}

func readCertificatePEM(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
	return nil, fmt.Errorf("no CERTIFICATE block found")
}

func readPrivateKeyPEM(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			rsaKey, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("private key is not RSA")
			}
			return rsaKey, nil
		}
	}
	return nil, fmt.Errorf("no private key block found")
}

// GenerateKey creates a self-signed RSA signing key with the given
// validity window. Used as a fallback when no certificates are
// configured and by tests.
func GenerateKey(commonName string, notBefore, notAfter time.Time) (*Key, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	certificate, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return NewKey(certificate, privateKey)
}
