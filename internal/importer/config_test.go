package importer

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

var _ = Describe("Config", func() {
	var (
		store  *mockSettingsStore
		config *Config
	)

	BeforeEach(func() {
		store = &mockSettingsStore{}
	})

	JustBeforeEach(func() {
		config = LoadConfig(store)
	})

	It("starts from the stored settings", func() {
		Expect(config.Settings()).To(Equal(DefaultSettings()))
		Expect(config.Decimal()).To(Equal(nfse.DecimalPT))
	})

	When("loading fails", func() {
		BeforeEach(func() {
			store.loadErr = errors.New("corrupt")
		})

		It("uses the defaults", func() {
			Expect(config.Settings()).To(Equal(DefaultSettings()))
		})
	})

	Describe("SetSchema", func() {
		It("persists a valid schema", func() {
			Expect(config.SetSchema([]string{"numero_nota", "valor_bruto"})).To(Succeed())
			Expect(config.Schema()).To(Equal(nfse.Schema{"numero_nota", "valor_bruto"}))
			Expect(store.settings.Schema).To(Equal(nfse.Schema{"numero_nota", "valor_bruto"}))
		})

		It("rejects unknown fields without saving", func() {
			Expect(config.SetSchema([]string{"nada"})).To(MatchError(nfse.ErrUnknownField))
			Expect(store.saves).To(Equal(0))
			Expect(config.Schema()).To(Equal(nfse.DefaultSchema()))
		})
	})

	Describe("SetDecimal", func() {
		It("persists the locale", func() {
			Expect(config.SetDecimal("en")).To(Succeed())
			Expect(config.Decimal()).To(Equal(nfse.DecimalEN))
			Expect(store.settings.Decimal).To(Equal(nfse.DecimalEN))
		})

		It("rejects other locales", func() {
			Expect(config.SetDecimal("de")).To(HaveOccurred())
			Expect(config.Decimal()).To(Equal(nfse.DecimalPT))
		})
	})

	Describe("MoveField", func() {
		It("reorders and persists", func() {
			Expect(config.SetSchema([]string{"serie", "numero_nota", "valor_bruto"})).To(Succeed())
			Expect(config.MoveField(2, 0)).To(Succeed())
			Expect(config.Schema()).To(Equal(nfse.Schema{"valor_bruto", "serie", "numero_nota"}))
			Expect(store.saves).To(Equal(2))
		})

		It("rejects out of range moves", func() {
			Expect(config.MoveField(0, 999)).To(HaveOccurred())
		})
	})

	When("saving fails", func() {
		BeforeEach(func() {
			store.saveErr = errors.New("read-only")
		})

		It("keeps the previous settings", func() {
			Expect(config.SetDecimal("en")).To(MatchError(ContainSubstring("saving settings")))
			Expect(config.Decimal()).To(Equal(nfse.DecimalPT))
		})
	})

	It("returns copies", func() {
		s := config.Schema()
		s[0] = "mutated"
		Expect(config.Schema()[0]).To(Equal("cnpj_prestador"))
	})
})
