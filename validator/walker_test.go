package validator

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Zone cuts", func() {
	DescribeTable("decomposing a domain into zone cuts",
		func(domain string, expected []string) {
			Expect(zoneCuts(domain)).Should(Equal(expected))
		},
		Entry("root", ".", []string{"."}),
		Entry("TLD", "dk.", []string{".", "dk."}),
		Entry("second level", "bondit.dk.", []string{".", "dk.", "bondit.dk."}),
		Entry("subdomain", "www.bondit.dk.", []string{".", "dk.", "bondit.dk.", "www.bondit.dk."}),
		Entry("without trailing dot", "bondit.dk", []string{".", "dk.", "bondit.dk."}),
	)
})
