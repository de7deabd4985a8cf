package validator

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zonecheck/zonecheck/config"
	"github.com/zonecheck/zonecheck/helpertest"
	"github.com/zonecheck/zonecheck/model"
)

var _ = Describe("DANE", func() {
	const tlsaName = "_443._tcp.bondit.dk."

	var (
		root, tld, leaf *helpertest.TestZone
		fake            *helpertest.FakeDNS
		cfg             *config.Config
		cert            *x509.Certificate
		fetcher         *helpertest.StaticCertFetcher
		ctx             context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()

		root = helpertest.NewTestZone(".")
		tld = helpertest.NewTestZone("dk.")
		leaf = helpertest.NewTestZone("bondit.dk.")

		fake = helpertest.NewFakeDNS()
		fake.SetAnswer(".", dns.TypeDNSKEY, root.SignedKeys()...)
		fake.SetAnswer("dk.", dns.TypeDNSKEY, tld.SignedKeys()...)
		fake.SetAnswer("bondit.dk.", dns.TypeDNSKEY, leaf.SignedKeys()...)
		delegate(fake, root, tld)
		delegate(fake, tld, leaf)

		cert = helpertest.GenerateCertificate("bondit.dk")
		fetcher = &helpertest.StaticCertFetcher{Certs: []*x509.Certificate{cert}}

		tlsa := helpertest.TLSARecord(tlsaName, 3, 1, 1, cert)
		fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa, leaf.Sign([]dns.RR{tlsa}))

		var err error
		cfg, err = config.NewConfig()
		Expect(err).Should(Succeed())

		cfg.TrustAnchors = []string{root.KSK.String()}
		cfg.QueryAttempts = 1
		cfg.QueryRetryDelay = config.Duration(0)
	})

	validate := func() *model.ValidationResult {
		sut, err := New(cfg, fake, fetcher)
		Expect(err).Should(Succeed())

		return sut.ValidateWithDANE(ctx, "bondit.dk.")
	}

	When("a DANE-EE record matches the presented certificate", func() {
		It("reports a valid DANE binding", func() {
			result := validate()

			Expect(result.Status).Should(Equal(model.StatusValid))
			Expect(result.TLSASummary).ShouldNot(BeNil())
			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusValid))
			Expect(result.TLSASummary.RecordsFound).Should(Equal(1))
			Expect(result.TLSASummary.Message).Should(ContainSubstring("1 of 1 TLSA record(s) match"))
		})
	})

	When("a single bit of the association data is flipped", func() {
		BeforeEach(func() {
			tlsa := helpertest.TLSARecord(tlsaName, 3, 1, 1, cert)

			flipped := []byte(tlsa.Certificate)
			if flipped[0] == '0' {
				flipped[0] = '1'
			} else {
				flipped[0] = '0'
			}
			tlsa.Certificate = string(flipped)

			fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa, leaf.Sign([]dns.RR{tlsa}))
		})

		It("reports the binding as invalid", func() {
			result := validate()

			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusInvalid))
			Expect(result.TLSASummary.Message).Should(ContainSubstring("none of 1 TLSA record(s) match"))
		})
	})

	When("no TLSA record matches the presented certificate", func() {
		BeforeEach(func() {
			other := helpertest.GenerateCertificate("other.dk")
			fetcher.Certs = []*x509.Certificate{other}
		})

		It("reports the binding as invalid and the run as bogus", func() {
			result := validate()

			Expect(result.Status).Should(Equal(model.StatusBogus))
			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusInvalid))
		})
	})

	When("no TLSA records are published", func() {
		BeforeEach(func() {
			fake.SetRcode(tlsaName, dns.TypeTLSA, dns.RcodeNameError)
		})

		It("reports no-tlsa without affecting the chain verdict", func() {
			result := validate()

			Expect(result.Status).Should(Equal(model.StatusValid))
			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusNoTLSA))
			Expect(result.TLSASummary.RecordsFound).Should(BeZero())
		})
	})

	When("the TLSA RRset is not signed", func() {
		BeforeEach(func() {
			tlsa := helpertest.TLSARecord(tlsaName, 3, 1, 1, cert)
			fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa)
		})

		It("reports dnssec-required and folds to insecure", func() {
			result := validate()

			Expect(result.Status).Should(Equal(model.StatusInsecure))
			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusDNSSECRequired))
		})
	})

	When("the TLSA signature is corrupted", func() {
		BeforeEach(func() {
			tlsa := helpertest.TLSARecord(tlsaName, 3, 1, 1, cert)
			sig := leaf.Sign([]dns.RR{tlsa})
			helpertest.CorruptSignature(sig)
			fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa, sig)
		})

		It("reports dnssec-required", func() {
			result := validate()

			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusDNSSECRequired))
			Expect(result.TLSASummary.Message).Should(ContainSubstring("not DNSSEC-valid"))
		})
	})

	When("the TLSA RRset is signed by a zone outside the validated chain", func() {
		BeforeEach(func() {
			rogue := helpertest.NewTestZone(tlsaName)
			attacker := helpertest.GenerateCertificate("attacker.dk")
			fetcher.Certs = []*x509.Certificate{attacker}

			tlsa := helpertest.TLSARecord(tlsaName, 3, 1, 1, attacker)
			fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa, rogue.Sign([]dns.RR{tlsa}))
			fake.SetAnswer(tlsaName, dns.TypeDNSKEY, rogue.SignedKeys()...)
		})

		It("rejects the signer and reports dnssec-required", func() {
			result := validate()

			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusDNSSECRequired))
			Expect(result.TLSASummary.Message).Should(ContainSubstring("not part of the validated chain"))
		})
	})

	When("the chain of trust is broken above the TLSA record", func() {
		BeforeEach(func() {
			keys := tld.KeyRRset()
			sig := tld.Sign(keys)
			helpertest.CorruptSignature(sig)
			fake.SetAnswer("dk.", dns.TypeDNSKEY, append(keys, sig)...)
		})

		It("reports dnssec-required and keeps the bogus chain verdict", func() {
			result := validate()

			Expect(result.Status).Should(Equal(model.StatusBogus))
			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusDNSSECRequired))
			Expect(result.TLSASummary.Message).Should(ContainSubstring("chain of trust is not valid"))
		})
	})

	When("the certificate cannot be fetched", func() {
		BeforeEach(func() {
			fetcher.Err = errors.New("connection refused")
		})

		It("reports a DANE error and folds to indeterminate", func() {
			result := validate()

			Expect(result.Status).Should(Equal(model.StatusIndeterminate))
			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusError))
			Expect(result.TLSASummary.Message).Should(ContainSubstring("could not obtain certificate"))
			Expect(result.Errors).ShouldNot(BeEmpty())
		})
	})

	When("a DANE-TA record constrains the issuer chain", func() {
		BeforeEach(func() {
			issuer := helpertest.GenerateCertificate("ca.dk")
			fetcher.Certs = []*x509.Certificate{cert, issuer}

			tlsa := helpertest.TLSARecord(tlsaName, 2, 0, 1, issuer)
			fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa, leaf.Sign([]dns.RR{tlsa}))
		})

		It("matches against the non-leaf certificates", func() {
			result := validate()

			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusValid))
		})
	})

	When("a DANE-TA record matches a self-issued certificate presented alone", func() {
		BeforeEach(func() {
			tlsa := helpertest.TLSARecord(tlsaName, 2, 0, 1, cert)
			fake.SetAnswer(tlsaName, dns.TypeTLSA, tlsa, leaf.Sign([]dns.RR{tlsa}))
		})

		It("reports a valid DANE binding", func() {
			result := validate()

			Expect(result.TLSASummary.DaneStatus).Should(Equal(model.DaneStatusValid))
		})
	})
})

var _ = Describe("TLSCertFetcher", func() {
	When("the caller's context is already done", func() {
		It("still completes the handshake within its own timeout", func() {
			serverCert, leafCert := helpertest.GenerateServerCertificate("localhost")

			listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
				Certificates: []tls.Certificate{serverCert},
				MinVersion:   tls.VersionTLS12,
			})
			Expect(err).Should(Succeed())
			DeferCleanup(listener.Close)

			go func() {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				defer conn.Close()

				// reading drives the server side of the handshake
				buf := make([]byte, 1)
				_, _ = conn.Read(buf)
			}()

			port := uint16(listener.Addr().(*net.TCPAddr).Port)

			done, cancel := context.WithCancel(context.Background())
			cancel()

			sut := NewTLSCertFetcher(config.Duration(5 * time.Second))

			certs, err := sut.FetchCertificates(done, "127.0.0.1", port)
			Expect(err).Should(Succeed())
			Expect(certs).ShouldNot(BeEmpty())
			Expect(certs[0].Raw).Should(Equal(leafCert.Raw))
		})
	})
})
