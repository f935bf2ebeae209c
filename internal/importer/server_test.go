package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		storage     *mockStorage
		extractor   *mockExtractor
		store       *mockSettingsStore
		service     *Service
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		storage = newMockStorage()
		extractor = newMockExtractor()
		store = &mockSettingsStore{}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		now := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
		service, _ = newTestService(storage, extractor, store, newMockStorage(), now)
		server := NewServerWithMux(service, auth, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, regexp.MustCompile(`.*`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	upload := func(files map[string]string) *http.Response {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		for name, content := range files {
			part, err := w.CreateFormFile("files", name)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte(content))
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(w.Close()).To(Succeed())
		return do("POST", "/api/jobs", &b, w.FormDataContentType())
	}

	Describe("GET /healthz", func() {
		It("reports ok", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body map[string]any
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("status", "ok"))
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			resp := do("OPTIONS", "/api/jobs", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})

		It("sets headers on regular responses", func() {
			resp := do("GET", "/api/jobs", nil, "")
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "ana", Password: "segredo"}
		})

		It("rejects requests without credentials", func() {
			resp := do("GET", "/api/jobs", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("rejects wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/jobs", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("ana", "errado")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/jobs", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("ana", "segredo")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("leaves the health check open", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/jobs", func() {
		It("queues the uploaded documents", func() {
			resp := upload(map[string]string{"nota.pdf": sampleInvoice})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var jobs []Job
			decode(resp, &jobs)
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Filename).To(Equal("nota.pdf"))
			Expect(jobs[0].Status).To(Equal(StatusPending))
			Expect(storage.names()).To(ConsistOf("job-1_nota.pdf"))
		})

		It("rejects a form without files", func() {
			var b bytes.Buffer
			w := multipart.NewWriter(&b)
			Expect(w.WriteField("other", "x")).To(Succeed())
			Expect(w.Close()).To(Succeed())
			resp := do("POST", "/api/jobs", &b, w.FormDataContentType())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a body that is not multipart", func() {
			resp := do("POST", "/api/jobs", strings.NewReader("{}"), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports files beyond the job limit", func() {
			_, err := service.Submit(make([]Upload, MaxJobs))
			Expect(err).NotTo(HaveOccurred())

			resp := upload(map[string]string{"a.pdf": "a", "b.pdf": "b"})
			Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
			var body map[string]any
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("rejected", BeNumerically("==", 2)))
		})
	})

	Describe("running jobs", func() {
		It("processes the queue and lists records", func() {
			upload(map[string]string{"nota.pdf": sampleInvoice})

			resp := do("POST", "/api/run", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			Eventually(func() []Job { return service.Jobs() }).Should(
				ContainElement(HaveField("Status", StatusOK)))
			Eventually(service.Running).Should(BeFalse())

			resp = do("GET", "/api/records", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []map[string]any
			decode(resp, &records)
			Expect(records).To(HaveLen(1))
			Expect(records[0]).To(HaveKeyWithValue("numero_nota", "000123"))
			Expect(records[0]).To(HaveKeyWithValue("valor_bruto", 1500.0))

			resp = do("GET", "/api/run", nil, "")
			var status map[string]any
			decode(resp, &status)
			Expect(status).To(HaveKeyWithValue("running", false))
			Expect(status).To(HaveKey("last"))
		})

		When("a run is in progress", func() {
			var release chan struct{}

			BeforeEach(func() {
				release = make(chan struct{})
				extractor.block["nota.pdf"] = release
			})

			It("refuses a second run and a reset, and cancels", func() {
				upload(map[string]string{"nota.pdf": "texto"})
				Expect(do("POST", "/api/run", nil, "").StatusCode).To(Equal(http.StatusAccepted))
				Eventually(service.Running).Should(BeTrue())

				Expect(do("POST", "/api/run", nil, "").StatusCode).To(Equal(http.StatusConflict))
				Expect(do("DELETE", "/api/jobs", nil, "").StatusCode).To(Equal(http.StatusConflict))

				go func() {
					time.Sleep(20 * time.Millisecond)
					close(release)
				}()
				resp := do("POST", "/api/run/cancel", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var body map[string]bool
				decode(resp, &body)
				Expect(body["cancelled"]).To(BeTrue())
			})
		})

		It("clears jobs", func() {
			upload(map[string]string{"nota.pdf": "texto"})
			Expect(do("DELETE", "/api/jobs", nil, "").StatusCode).To(Equal(http.StatusNoContent))
			Expect(service.Jobs()).To(BeEmpty())
		})
	})

	Describe("settings", func() {
		It("returns the active settings and the field catalogue", func() {
			resp := do("GET", "/api/settings", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body struct {
				Schema  []string            `json:"schema"`
				Decimal string              `json:"decimal"`
				Fields  []map[string]string `json:"fields"`
			}
			decode(resp, &body)
			Expect(body.Decimal).To(Equal("pt"))
			Expect(body.Schema[0]).To(Equal("cnpj_prestador"))
			Expect(body.Fields).To(ContainElement(map[string]string{"name": "valor_bruto", "kind": "money"}))
		})

		It("updates and persists settings", func() {
			resp := do("PUT", "/api/settings", strings.NewReader(`{"schema":["valor_bruto","numero_nota"],"decimal":"en"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(store.settings.Decimal).To(BeEquivalentTo("en"))
			Expect(service.Settings().Schema).To(HaveLen(2))
		})

		It("moves a field", func() {
			resp := do("PUT", "/api/settings", strings.NewReader(`{"move":{"from":1,"to":0}}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(service.Settings().Schema[0]).To(Equal("razao_social_prestador"))
		})

		It("rejects invalid settings", func() {
			resp := do("PUT", "/api/settings", strings.NewReader(`{"decimal":"fr"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed bodies", func() {
			resp := do("PUT", "/api/settings", strings.NewReader(`{`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("exports", func() {
		It("refuses to export without records", func() {
			resp := do("GET", "/api/export/txt", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp = do("GET", "/api/export/xlsx", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		When("records exist", func() {
			JustBeforeEach(func() {
				_, err := service.Submit([]Upload{{Filename: "nota.pdf", Data: []byte(sampleInvoice)}})
				Expect(err).NotTo(HaveOccurred())
				_, err = service.Run(context.Background())
				Expect(err).NotTo(HaveOccurred())
			})

			It("downloads the delimited text", func() {
				resp := do("GET", "/api/export/txt", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("servicos_tomados_20240305_1407.txt"))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(HavePrefix("12.345.678/0001-90;"))
			})

			It("downloads the report workbook", func() {
				resp := do("GET", "/api/export/xlsx", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal(contentTypeXLSX))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring(".xlsx"))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(body[:2]).To(Equal([]byte("PK")))
			})
		})
	})
})
