package identity

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ChainOptions controls VerifyChain. Revocation is never checked.
type ChainOptions struct {
	// AllowUnknownCA accepts chains that end in an authority missing from Roots.
	AllowUnknownCA bool
	// CustomCA, when set, is trusted for this check only and must be the
	// authority the chain ends in.
	CustomCA *x509.Certificate
	// Intermediates are offered for chain building.
	Intermediates []*x509.Certificate
	// Roots replaces the system pool when non-empty.
	Roots []*x509.Certificate
	// CurrentTime defaults to time.Now.
	CurrentTime time.Time
}

// VerifyChain checks that cert chains to a trusted authority. It returns the
// outcome and a diagnostic log of what was tried.
func VerifyChain(cert *x509.Certificate, opts ChainOptions) (bool, []string) {
	var log []string
	if cert == nil {
		return false, append(log, "no certificate")
	}

	var roots *x509.CertPool
	if len(opts.Roots) > 0 || opts.CustomCA != nil {
		roots = x509.NewCertPool()
		for _, c := range opts.Roots {
			roots.AddCert(c)
		}
		if opts.CustomCA != nil {
			roots.AddCert(opts.CustomCA)
		}
	}
	var ip *x509.CertPool
	if len(opts.Intermediates) > 0 {
		ip = x509.NewCertPool()
		for _, c := range opts.Intermediates {
			ip.AddCert(c)
		}
	}
	now := opts.CurrentTime
	if now.IsZero() {
		now = time.Now()
	}

	chains, err := cert.Verify(x509.VerifyOptions{
		Intermediates: ip,
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		CurrentTime:   now,
	})
	log = append(log, fmt.Sprintf("chain built: %t", err == nil))
	if err != nil {
		var unknown x509.UnknownAuthorityError
		if opts.AllowUnknownCA && opts.CustomCA == nil && errors.As(err, &unknown) {
			return true, append(log, "unknown authority allowed")
		}
		return false, append(log, "chain error: "+err.Error())
	}

	if opts.CustomCA == nil {
		return true, log
	}
	for _, chain := range chains {
		top := chain[len(chain)-1]
		if bytes.Equal(top.Raw, opts.CustomCA.Raw) {
			return true, log
		}
	}
	return false, append(log, "chain authority is not the provided CA")
}
