package nfse

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Money", func() {
	DescribeTable("RoundHalfEven",
		func(in, want float64) {
			Expect(RoundHalfEven(in, 2)).To(Equal(want))
		},
		Entry("midpoint rounds down to even", 2.345, 2.34),
		Entry("midpoint rounds up to even", 2.355, 2.36),
		Entry("midpoint at zero", 1.005, 1.00),
		Entry("below midpoint", 2.344, 2.34),
		Entry("above midpoint", 2.346, 2.35),
		Entry("already rounded", 1500.0, 1500.0),
		Entry("negative midpoint", -2.345, -2.34),
	)

	It("leaves non-finite values alone", func() {
		Expect(math.IsNaN(RoundHalfEven(math.NaN(), 2))).To(BeTrue())
		Expect(math.IsInf(RoundHalfEven(math.Inf(1), 2), 1)).To(BeTrue())
	})

	DescribeTable("FormatMoney",
		func(in float64, locale DecimalLocale, want string) {
			Expect(FormatMoney(in, locale)).To(Equal(want))
		},
		Entry("pt uses a comma", 1500.0, DecimalPT, "1500,00"),
		Entry("en uses a point", 1500.0, DecimalEN, "1500.00"),
		Entry("rounds half to even", 2.345, DecimalPT, "2,34"),
		Entry("pads decimals", 0.5, DecimalEN, "0.50"),
		Entry("NaN renders empty", math.NaN(), DecimalPT, ""),
		Entry("Inf renders empty", math.Inf(-1), DecimalEN, ""),
	)

	Describe("ParseMoney", func() {
		It("parses thousands separators and a decimal comma", func() {
			v := ParseMoney("1.234,56")
			Expect(v).NotTo(BeNil())
			Expect(*v).To(BeNumerically("~", 1234.56, 1e-9))
		})

		It("ignores the currency prefix", func() {
			v := ParseMoney("R$ 12,00")
			Expect(v).NotTo(BeNil())
			Expect(*v).To(Equal(12.0))
		})

		It("parses millions", func() {
			v := ParseMoney("R$ 1.500.000,10")
			Expect(v).NotTo(BeNil())
			Expect(*v).To(BeNumerically("~", 1500000.10, 1e-6))
		})

		It("returns nil without digits", func() {
			Expect(ParseMoney("sem valor")).To(BeNil())
			Expect(ParseMoney("")).To(BeNil())
			Expect(ParseMoney("R$ ,")).To(BeNil())
		})
	})

	DescribeTable("MaskCNPJ",
		func(in, want string) {
			Expect(MaskCNPJ(in)).To(Equal(want))
		},
		Entry("bare digits", "12345678000190", "12.345.678/0001-90"),
		Entry("already masked", "12.345.678/0001-90", "12.345.678/0001-90"),
		Entry("partially masked", "12345678/0001-90", "12.345.678/0001-90"),
		Entry("extra digits are dropped", "1234567800019099", "12.345.678/0001-90"),
		Entry("short input gets a partial mask", "123", "12.3"),
		Entry("eight digits", "12345678", "12.345.678"),
		Entry("no digits", "abc", ""),
		Entry("empty", "", ""),
	)
})
