package identity

import (
	"crypto/x509"
	"encoding/json"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"

	"xdao.co/signet/b64"
	"xdao.co/signet/digest"
)

// Envelope is the serialized form of an Identity.
//
// Plain envelopes carry the DER certificate in Data and, when present, the
// PKCS#8 private key in Key. Encrypted envelopes carry a password protected
// PKCS#12 archive in Data and leave Key empty.
type Envelope struct {
	Provider      string `json:"provider"`
	Encrypted     bool   `json:"encrypted"`
	HasPrivateKey bool   `json:"has_private_key"`
	Data          string `json:"data"`
	Key           string `json:"key,omitempty"`
}

// Export serializes the identity. encrypt requires a password.
func (id *Identity) Export(password string, encrypt bool) (*Envelope, error) {
	if err := id.CheckCertificate(); err != nil {
		return nil, err
	}
	if encrypt && password == "" {
		return nil, digest.NewError(digest.KindMissingPassword, "SIG-ENV-001", "encrypted export needs a password")
	}

	id.mu.Lock()
	cert, key, p := id.cert, id.key, id.provider
	id.mu.Unlock()

	env := &Envelope{Provider: p.String(), Encrypted: encrypt, HasPrivateKey: key != nil}
	if encrypt {
		var (
			blob []byte
			err  error
		)
		if key != nil {
			blob, err = pkcs12.Modern.Encode(key, cert, nil, password)
		} else {
			blob, err = pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{cert}, password)
		}
		if err != nil {
			return nil, digest.WrapError(digest.KindCrypto, "SIG-ENV-002", "encode PKCS#12", err)
		}
		env.Data = b64.EncodeStd(blob)
		return env, nil
	}

	env.Data = b64.EncodeStd(cert.Raw)
	if key != nil {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, digest.WrapError(digest.KindCrypto, "SIG-ENV-003", "encode private key", err)
		}
		env.Key = b64.EncodeStd(der)
	}
	return env, nil
}

// Open rebuilds the identity. Encrypted envelopes need the export password.
func (e *Envelope) Open(password string) (*Identity, error) {
	if e == nil {
		return nil, digest.NewError(digest.KindMissingCertificate, "SIG-ENV-010", "no envelope")
	}
	if e.Encrypted && password == "" {
		return nil, digest.NewError(digest.KindMissingPassword, "SIG-ENV-011", "envelope is encrypted")
	}
	data, ok := b64.Decode(e.Data, false)
	if !ok {
		return nil, digest.NewError(digest.KindEncoding, "SIG-ENV-012", "envelope data is not valid base64")
	}

	var (
		id  *Identity
		err error
	)
	switch {
	case e.Encrypted && e.HasPrivateKey:
		id, err = LoadPFX(data, password)
	case e.Encrypted:
		var certs []*x509.Certificate
		certs, err = pkcs12.DecodeTrustStore(data, password)
		if err != nil {
			return nil, digest.WrapError(digest.KindCrypto, "SIG-ENV-013", "decode PKCS#12 trust store", err)
		}
		if len(certs) == 0 {
			return nil, digest.NewError(digest.KindMissingCertificate, "SIG-ENV-014", "PKCS#12 trust store is empty")
		}
		id, err = New(certs[0], nil)
	default:
		id, err = openPlain(data, e.Key)
	}
	if err != nil {
		return nil, err
	}

	if e.HasPrivateKey != id.HasPrivateKey() {
		return nil, digest.NewError(digest.KindNoPrivateKey, "SIG-ENV-015", "envelope private key flag does not match its contents")
	}
	if e.Provider != "" {
		p, err := digest.ParseProvider(e.Provider)
		if err != nil {
			return nil, err
		}
		if p != id.Provider() {
			return nil, digest.NewError(digest.KindUnsupportedProvider, "SIG-ENV-016",
				fmt.Sprintf("envelope provider %s does not match certificate provider %s", p, id.Provider()))
		}
	}
	return id, nil
}

func openPlain(certDER []byte, keyText string) (*Identity, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-ENV-020", "parse certificate", err)
	}
	if keyText == "" {
		return New(cert, nil)
	}
	keyDER, ok := b64.Decode(keyText, false)
	if !ok {
		return nil, digest.NewError(digest.KindEncoding, "SIG-ENV-021", "envelope key is not valid base64")
	}
	key, err := x509.ParsePKCS8PrivateKey(keyDER)
	if err != nil {
		return nil, digest.WrapError(digest.KindEncoding, "SIG-ENV-022", "parse private key", err)
	}
	return New(cert, key)
}

// MarshalJSON writes a plain envelope, private key included. Use Export with a
// password to persist key material encrypted.
func (id *Identity) MarshalJSON() ([]byte, error) {
	if pending := id.Pending(); pending != nil {
		return json.Marshal(pending)
	}
	env, err := id.Export("", false)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalJSON loads an envelope into an empty Identity. Plain envelopes are
// loaded and validated immediately. Encrypted envelopes are kept as-is until
// Unlock supplies the password; until then CheckCertificate fails.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return digest.WrapError(digest.KindEncoding, "SIG-ENV-030", "decode identity json", err)
	}
	if env.Encrypted {
		id.mu.Lock()
		defer id.mu.Unlock()
		if id.cert != nil || id.pending != nil {
			return digest.NewError(digest.KindImmutableField, "SIG-ENV-031", "identity is already loaded")
		}
		id.pending = &env
		return nil
	}
	loaded, err := env.Open("")
	if err != nil {
		return err
	}
	return id.adopt(loaded)
}

// Pending returns the encrypted envelope waiting for Unlock, or nil.
func (id *Identity) Pending() *Envelope {
	if id == nil {
		return nil
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.pending == nil {
		return nil
	}
	env := *id.pending
	return &env
}

// Unlock finishes loading an identity decoded from an encrypted envelope.
func (id *Identity) Unlock(password string) error {
	env := id.Pending()
	if env == nil {
		return digest.NewError(digest.KindInternal, "SIG-ENV-040", "identity has nothing to unlock")
	}
	loaded, err := env.Open(password)
	if err != nil {
		return err
	}
	return id.adopt(loaded)
}

func (id *Identity) adopt(src *Identity) error {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.cert != nil {
		return digest.NewError(digest.KindImmutableField, "SIG-ENV-041", "identity is already loaded")
	}
	id.cert = src.cert
	id.pub = src.pub
	id.key = src.key
	id.provider = src.provider
	id.fingerprint = src.fingerprint
	id.pending = nil
	return nil
}
