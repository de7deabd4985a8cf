package validator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/miekg/dns"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zonecheck/zonecheck/config"
	"github.com/zonecheck/zonecheck/evt"
	"github.com/zonecheck/zonecheck/helpertest"
	"github.com/zonecheck/zonecheck/model"
)

// delegate publishes the child's DS record in the parent, signed by the
// parent's key.
func delegate(fake *helpertest.FakeDNS, parent, child *helpertest.TestZone) {
	ds := child.DS()
	fake.SetAnswer(child.Name, dns.TypeDS, ds, parent.Sign([]dns.RR{ds}))
}

var _ = Describe("Validator", func() {
	var (
		root, tld, leaf *helpertest.TestZone
		fake            *helpertest.FakeDNS
		cfg             *config.Config
		sut             *Validator
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

		var err error
		cfg, err = config.NewConfig()
		Expect(err).Should(Succeed())

		cfg.TrustAnchors = []string{root.KSK.String()}
		cfg.QueryAttempts = 1
		cfg.QueryRetryDelay = config.Duration(0)
	})

	JustBeforeEach(func() {
		var err error
		sut, err = New(cfg, fake, &helpertest.StaticCertFetcher{})
		Expect(err).Should(Succeed())
	})

	When("the whole chain is correctly signed", func() {
		It("returns a valid result with one link per zone cut", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Status).Should(Equal(model.StatusValid))
			Expect(result.ChainOfTrust).Should(HaveLen(3))
			Expect(result.Errors).Should(BeEmpty())

			zones := []string{".", "dk.", "bondit.dk."}
			keyTags := []uint16{root.KSK.KeyTag(), tld.KSK.KeyTag(), leaf.KSK.KeyTag()}

			for i, link := range result.ChainOfTrust {
				Expect(link.Zone).Should(Equal(zones[i]))
				Expect(link.Status).Should(Equal(model.StatusValid))
				Expect(link.KeyTag).Should(Equal(keyTags[i]))
				Expect(link.Algorithm).Should(Equal(uint8(dns.ECDSAP256SHA256)))
				Expect(link.Error).Should(BeEmpty())
			}
		})

		It("collects the raw records seen during the walk", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Records.DNSKEY).Should(HaveLen(3))
			Expect(result.Records.DS).Should(HaveLen(2))
			// one RRSIG per DNSKEY RRset plus one per DS RRset
			Expect(result.Records.RRSIG).Should(HaveLen(5))
		})

		It("normalizes the domain to its canonical form", func() {
			result := sut.Validate(ctx, "BONDIT.dk")

			Expect(result.Domain).Should(Equal("bondit.dk."))
			Expect(result.Status).Should(Equal(model.StatusValid))
		})

		It("omits the TLSA summary without a DANE check", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.TLSASummary).Should(BeNil())
		})

		It("returns the same result on repeated runs", func() {
			first := sut.Validate(ctx, "bondit.dk.")
			second := sut.Validate(ctx, "bondit.dk.")

			// only the timestamp may differ between runs
			second.ValidationTime = first.ValidationTime
			Expect(second).Should(Equal(first))

			firstJSON, err := json.Marshal(first)
			Expect(err).Should(Succeed())
			secondJSON, err := json.Marshal(second)
			Expect(err).Should(Succeed())
			Expect(secondJSON).Should(Equal(firstJSON))
		})

		It("publishes a result event", func() {
			var gotDomain, gotStatus, gotSource string

			handler := func(domain, status, source string) {
				gotDomain, gotStatus, gotSource = domain, status, source
			}
			Expect(evt.Bus().Subscribe(evt.ValidationFinished, handler)).Should(Succeed())
			DeferCleanup(func() error {
				return evt.Bus().Unsubscribe(evt.ValidationFinished, handler)
			})

			sut.Validate(ctx, "bondit.dk.")

			Expect(gotDomain).Should(Equal("bondit.dk."))
			Expect(gotStatus).Should(Equal("valid"))
			Expect(gotSource).Should(Equal("api"))
		})
	})

	When("a delegation below the chain is unsigned", func() {
		It("terminates with an insecure link", func() {
			result := sut.Validate(ctx, "unsigned.dk.")

			Expect(result.Status).Should(Equal(model.StatusInsecure))
			Expect(result.ChainOfTrust).Should(HaveLen(3))
			Expect(result.ChainOfTrust[1].Status).Should(Equal(model.StatusValid))
			Expect(result.ChainOfTrust[2].Zone).Should(Equal("unsigned.dk."))
			Expect(result.ChainOfTrust[2].Status).Should(Equal(model.StatusInsecure))
			Expect(result.ChainOfTrust[2].Error).Should(BeEmpty())
		})
	})

	When("a DNSKEY signature is corrupted", func() {
		BeforeEach(func() {
			keys := tld.KeyRRset()
			sig := tld.Sign(keys)
			helpertest.CorruptSignature(sig)
			fake.SetAnswer("dk.", dns.TypeDNSKEY, append(keys, sig)...)
		})

		It("classifies the zone as bogus and keeps the partial chain", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Status).Should(Equal(model.StatusBogus))
			Expect(result.ChainOfTrust).Should(HaveLen(2))
			Expect(result.ChainOfTrust[0].Status).Should(Equal(model.StatusValid))
			Expect(result.ChainOfTrust[1].Status).Should(Equal(model.StatusBogus))
			Expect(result.ChainOfTrust[1].Error).Should(ContainSubstring("signature verification failed"))
			Expect(result.Errors).ShouldNot(BeEmpty())
		})
	})

	When("the published DS does not bind to any DNSKEY", func() {
		BeforeEach(func() {
			rogue := helpertest.NewTestZone("bondit.dk.")
			delegate(fake, tld, rogue)
		})

		It("classifies the zone as bogus", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Status).Should(Equal(model.StatusBogus))
			Expect(result.ChainOfTrust).Should(HaveLen(3))
			Expect(result.ChainOfTrust[2].Error).Should(ContainSubstring("no DNSKEY matches the DS records"))
		})
	})

	When("a DS is published but the child has no DNSKEY", func() {
		BeforeEach(func() {
			orphan := helpertest.NewTestZone("orphan.dk.")
			delegate(fake, tld, orphan)
		})

		It("classifies the zone as bogus", func() {
			result := sut.Validate(ctx, "orphan.dk.")

			Expect(result.Status).Should(Equal(model.StatusBogus))
			Expect(result.ChainOfTrust[2].Error).Should(ContainSubstring("no DNSKEY in the child"))
		})
	})

	When("the upstream times out", func() {
		BeforeEach(func() {
			fake.SetError(".", dns.TypeDNSKEY, helpertest.TimeoutError{})
		})

		It("classifies the run as indeterminate with a partial chain", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Status).Should(Equal(model.StatusIndeterminate))
			Expect(result.ChainOfTrust).Should(HaveLen(1))
			Expect(result.ChainOfTrust[0].Error).Should(ContainSubstring("timeout"))
			Expect(result.Errors).ShouldNot(BeEmpty())
		})
	})

	When("the upstream answers SERVFAIL", func() {
		BeforeEach(func() {
			fake.SetRcode("dk.", dns.TypeDNSKEY, dns.RcodeServerFailure)
		})

		It("classifies the zone as indeterminate", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Status).Should(Equal(model.StatusIndeterminate))
			Expect(result.ChainOfTrust).Should(HaveLen(2))
			Expect(result.ChainOfTrust[1].Error).Should(ContainSubstring("SERVFAIL"))
		})
	})

	When("the root keys do not match the trust anchors", func() {
		BeforeEach(func() {
			// default IANA anchors against a freshly generated root key
			cfg.TrustAnchors = nil
		})

		It("classifies the root as bogus", func() {
			result := sut.Validate(ctx, "bondit.dk.")

			Expect(result.Status).Should(Equal(model.StatusBogus))
			Expect(result.ChainOfTrust).Should(HaveLen(1))
			Expect(result.ChainOfTrust[0].Error).Should(ContainSubstring("trust anchor"))
		})
	})

	When("the domain name is not valid", func() {
		It("returns an error result with an empty chain", func() {
			result := sut.Validate(ctx, strings.Repeat("a", 70)+".dk.")

			Expect(result.Status).Should(Equal(model.StatusError))
			Expect(result.ChainOfTrust).Should(BeEmpty())
			Expect(result.Errors).Should(HaveLen(1))
			Expect(result.Errors[0]).Should(ContainSubstring("invalid domain name"))
		})
	})
})
