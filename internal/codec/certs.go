package codec

import (
	"crypto/ed25519"
	"encoding/base64"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/acqgw/ag/internal/cmn"
)

// gatewayClaims is the payload of an MS-issued gateway certificate: a JWT
// binding a gateway id to its current Ed25519 public key.
type gatewayClaims struct {
	jwt.RegisteredClaims
	GatewayID string `json:"gw"`
	PubKeyB64 string `json:"pub"`
}

// CertStore is a KeyStore populated by verifying MS-issued JWT certificates
// and caching the bound public key per gateway id until the certificate
// expires. A lookup miss triggers ReloadFunc so a gateway seen for the
// first time gets one chance to be resolved before the request fails.
type CertStore struct {
	msRootKey  []byte // MS's HMAC signing secret for gateway certs
	mtx        sync.RWMutex
	keys       map[string]ed25519.PublicKey
	expiry     map[string]time.Time
	ReloadFunc func() ([]string /* raw JWTs */, error)
}

func NewCertStore(msRootKey []byte, reload func() ([]string, error)) *CertStore {
	return &CertStore{
		msRootKey:  msRootKey,
		keys:       map[string]ed25519.PublicKey{},
		expiry:     map[string]time.Time{},
		ReloadFunc: reload,
	}
}

// InstallSelf directly seeds this gateway's own identity, bypassing JWT
// verification: a gateway always trusts its own key, and certificates for
// it are never MS-issued.
func (cs *CertStore) InstallSelf(gatewayID string, pub ed25519.PublicKey) {
	cs.mtx.Lock()
	cs.keys[gatewayID] = pub
	cs.expiry[gatewayID] = time.Now().Add(100 * 365 * 24 * time.Hour)
	cs.mtx.Unlock()
}

// Install verifies and caches one MS-issued certificate.
func (cs *CertStore) Install(rawJWT string) error {
	claims := &gatewayClaims{}
	_, err := jwt.ParseWithClaims(rawJWT, claims, func(*jwt.Token) (any, error) {
		return cs.msRootKey, nil
	})
	if err != nil {
		return cmn.Wrap(cmn.ErrDataIntegrity, "gateway certificate: "+err.Error())
	}
	pub, err := base64.StdEncoding.DecodeString(claims.PubKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return cmn.Wrap(cmn.ErrDataIntegrity, "gateway certificate: malformed public key")
	}
	exp := time.Now().Add(24 * time.Hour)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	cs.mtx.Lock()
	cs.keys[claims.GatewayID] = ed25519.PublicKey(pub)
	cs.expiry[claims.GatewayID] = exp
	cs.mtx.Unlock()
	return nil
}

// PublicKey implements KeyStore. On a miss or expiry it triggers one
// synchronous reload attempt before giving up with cmn.ErrTryAgain.
func (cs *CertStore) PublicKey(gatewayID string) (ed25519.PublicKey, error) {
	if pub, ok := cs.lookup(gatewayID); ok {
		return pub, nil
	}
	if cs.ReloadFunc != nil {
		raw, err := cs.ReloadFunc()
		if err == nil {
			for _, tok := range raw {
				_ = cs.Install(tok)
			}
		}
	}
	if pub, ok := cs.lookup(gatewayID); ok {
		return pub, nil
	}
	return nil, cmn.Wrapf(cmn.ErrTryAgain, "signing gateway %q: certificate not yet known", gatewayID)
}

func (cs *CertStore) lookup(gatewayID string) (ed25519.PublicKey, bool) {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	pub, ok := cs.keys[gatewayID]
	if !ok {
		return nil, false
	}
	if time.Now().After(cs.expiry[gatewayID]) {
		return nil, false
	}
	return pub, true
}
