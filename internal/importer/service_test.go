package importer

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/limiter"
	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

const sampleInvoice = `PREFEITURA MUNICIPAL DE CURITIBA
NOTA FISCAL DE SERVIÇOS ELETRÔNICA
Número da Nota: 000123
Data de Emissão: 05/03/2024
CNPJ: 12345678000190
Valor do Serviço R$ 1.500,00`

// newTestService wires a Service over in-memory collaborators and the real recognizer and validator
func newTestService(storage *mockStorage, extractor *mockExtractor, store *mockSettingsStore, exports *mockStorage, now time.Time) (*Service, *Orchestrator) {
	validator, err := nfse.NewValidator()
	Expect(err).NotTo(HaveOccurred())
	config := LoadConfig(store)
	clock := &fixedTime{t: now}
	o := NewOrchestratorWithDeps(storage, extractor, nfse.NewRecognizerWithIDs(func() string { return "rec" }), validator, limiter.New(2), config, &sequentialIDs{}, clock)
	return NewServiceWithDeps(o, config, exports, clock), o
}

var _ = Describe("Service", func() {
	var (
		storage   *mockStorage
		exports   *mockStorage
		extractor *mockExtractor
		store     *mockSettingsStore
		service   *Service
		now       time.Time
	)

	BeforeEach(func() {
		storage = newMockStorage()
		exports = newMockStorage()
		extractor = newMockExtractor()
		store = &mockSettingsStore{}
		now = time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		service, _ = newTestService(storage, extractor, store, exports, now)
	})

	Describe("Export", func() {
		When("there are no records", func() {
			It("returns ErrNoRecords and produces nothing", func() {
				_, err := service.Export(context.Background())
				Expect(err).To(MatchError(ErrNoRecords))

				_, err = service.SaveExport(context.Background())
				Expect(err).To(MatchError(ErrNoRecords))
				Expect(exports.names()).To(BeEmpty())
			})
		})

		When("records exist", func() {
			JustBeforeEach(func() {
				Expect(service.config.SetSchema([]string{"numero_nota", "cnpj_prestador", "valor_bruto"})).To(Succeed())
				_, err := service.Submit([]Upload{{Filename: "nota.pdf", Data: []byte(sampleInvoice)}})
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Run(context.Background())
				Expect(err).NotTo(HaveOccurred())
			})

			It("renders the delimited text with the active schema", func() {
				export, err := service.Export(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(export.TXT.Filename).To(Equal("servicos_tomados_20240305_1407.txt"))
				Expect(string(export.TXT.Data)).To(Equal("000123;12.345.678/0001-90;1500,00"))
			})

			It("follows the decimal setting", func() {
				_, err := service.UpdateSettings(SettingsUpdate{Decimal: ptr("en")})
				Expect(err).NotTo(HaveOccurred())
				export, err := service.Export(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(string(export.TXT.Data)).To(HaveSuffix(";1500.00"))
			})

			It("renders the report workbook", func() {
				export, err := service.Export(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(export.XLSX.Filename).To(Equal("servicos_tomados_relatorio_tributos_20240305_1407.xlsx"))

				f, err := excelize.OpenReader(bytes.NewReader(export.XLSX.Data))
				Expect(err).NotTo(HaveOccurred())
				defer f.Close()
				v, err := f.GetCellValue(nfse.ReportSheet, "A2")
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(Equal("000123"))
			})

			It("saves both artifacts", func() {
				names, err := service.SaveExport(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(names).To(Equal([]string{
					"servicos_tomados_20240305_1407.txt",
					"servicos_tomados_relatorio_tributos_20240305_1407.xlsx",
				}))
				Expect(exports.names()).To(HaveLen(2))
			})

			It("reports storage failures", func() {
				exports.saveErr = errors.New("disk full")
				_, err := service.SaveExport(context.Background())
				Expect(err).To(MatchError(ContainSubstring("disk full")))
			})

			It("validates records against the schema", func() {
				Expect(service.Records()).To(HaveLen(1))
				Expect(service.Records()[0].Errors).To(BeEmpty())
				Expect(service.LastRun().Records).To(Equal(1))
			})
		})
	})

	Describe("UpdateSettings", func() {
		It("applies the schema, the move and the decimal locale", func() {
			s, err := service.UpdateSettings(SettingsUpdate{
				Schema:  []string{"serie", "numero_nota"},
				Move:    &FieldMove{From: 1, To: 0},
				Decimal: ptr("en"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Schema).To(Equal(nfse.Schema{"numero_nota", "serie"}))
			Expect(s.Decimal).To(Equal(nfse.DecimalEN))
			Expect(store.settings.Schema).To(Equal(nfse.Schema{"numero_nota", "serie"}))
		})

		It("stops at the first invalid change", func() {
			_, err := service.UpdateSettings(SettingsUpdate{
				Schema:  []string{"inexistente"},
				Decimal: ptr("en"),
			})
			Expect(err).To(MatchError(nfse.ErrUnknownField))
			Expect(service.Settings().Decimal).To(Equal(nfse.DecimalPT))
		})
	})

	Describe("StartRun", func() {
		var release chan struct{}

		BeforeEach(func() {
			release = make(chan struct{})
			extractor.block["nota-1.pdf"] = release
		})

		It("runs in the background and refuses overlapping runs", func() {
			_, err := service.Submit(uploadsOf("a"))
			Expect(err).NotTo(HaveOccurred())

			Expect(service.StartRun(context.Background())).To(Succeed())
			Eventually(service.Running).Should(BeTrue())
			Expect(service.StartRun(context.Background())).To(MatchError(ErrRunInProgress))

			close(release)
			Eventually(service.Running).Should(BeFalse())
			Eventually(func() Status { return service.Jobs()[0].Status }).Should(Equal(StatusOK))
			Eventually(service.LastRun).ShouldNot(BeNil())
		})

		It("outlives the request context", func() {
			_, err := service.Submit(uploadsOf("a"))
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			Expect(service.StartRun(ctx)).To(Succeed())
			cancel()
			Eventually(service.Running).Should(BeTrue())
			close(release)
			Eventually(func() Status { return service.Jobs()[0].Status }).Should(Equal(StatusOK))
		})

		It("can be cancelled", func() {
			extractor.block["nota-2.pdf"] = release
			_, err := service.Submit(uploadsOf("a", "b", "c", "d"))
			Expect(err).NotTo(HaveOccurred())
			Expect(service.StartRun(context.Background())).To(Succeed())

			// both slots are taken; the third job waits for one
			Eventually(func() Status { return service.Jobs()[2].Status }).Should(Equal(StatusProcessing))

			go func() {
				time.Sleep(50 * time.Millisecond)
				close(release)
			}()
			Expect(service.CancelRun()).To(BeTrue())
			Expect(service.Running()).To(BeFalse())

			jobs := service.Jobs()
			Expect(jobs[0].Status).To(Equal(StatusOK))
			Expect(jobs[2].Status).To(Equal(StatusOK))
			Expect(jobs[3].Status).To(Equal(StatusPending))
			Expect(service.LastRun().Cancelled).To(BeTrue())
			Expect(service.LastRun().Remaining).To(Equal(1))
		})

		It("accepts a new run as soon as the previous one stops running", func() {
			_, err := service.Submit(uploadsOf("a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(service.StartRun(context.Background())).To(Succeed())
			close(release)

			Eventually(service.Running).Should(BeFalse())
			Expect(service.LastRun()).NotTo(BeNil())
			Expect(service.StartRun(context.Background())).To(Succeed())
			Eventually(service.Running).Should(BeFalse())
			Expect(service.LastRun().Skipped).To(Equal(1))
		})

		It("reports false when nothing runs", func() {
			close(release)
			Expect(service.CancelRun()).To(BeFalse())
		})
	})

	It("resets jobs and records", func() {
		_, err := service.Submit(uploadsOf("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(service.Reset()).To(Succeed())
		Expect(service.Jobs()).To(BeEmpty())
	})
})

func ptr[T any](v T) *T { return &v }
