package closet

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/closet-tracker/internal/scanning"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		ocr         *mockOCR
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewServiceWithDeps(db, ocr, storage, &mockIDGenerator{prefix: "id"},
			&mockTimeSource{now: time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

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

	doJSON := func(method, path string, v any) *http.Response {
		body, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return do(method, path, bytes.NewReader(body), "application/json")
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	upload := func(filename string, data []byte) *http.Response {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		return do(http.MethodPost, "/api/scans", &buf, w.FormDataContentType())
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		ocr = newMockOCR()
		auth = BasicAuth{}
		ghttpServer = nil
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("GET /healthz", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("answers without credentials", func() {
			resp := do(http.MethodGet, "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		When("credentials are missing", func() {
			It("returns Unauthorized with a challenge", func() {
				resp := do(http.MethodGet, "/api/scans", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})
		})

		When("credentials are wrong", func() {
			It("returns Unauthorized", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/scans", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "nope")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("credentials are right", func() {
			It("serves the request", func() {
				req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/scans", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			resp := do(http.MethodOptions, "/api/items", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
		})
	})

	Describe("GET /api/categories", func() {
		It("returns the closet categories", func() {
			resp := do(http.MethodGet, "/api/categories", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var categories []string
			decode(resp, &categories)
			Expect(categories).To(Equal(scanning.Categories))
		})
	})

	Describe("POST /api/parse", func() {
		When("the text lists clothing", func() {
			It("returns the scan as Created", func() {
				resp := doJSON(http.MethodPost, "/api/parse", map[string]string{"text": scanning.SampleReceipt})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var scan Scan
				decode(resp, &scan)
				Expect(scan.ID).To(Equal("id-1"))
				Expect(scan.Items).To(HaveLen(3))
			})
		})

		When("the text has no clothing", func() {
			It("returns Unprocessable Entity with the scan", func() {
				resp := doJSON(http.MethodPost, "/api/parse", map[string]string{"text": "Milk $3.99"})
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				var body struct {
					Error string `json:"error"`
					Scan  *Scan  `json:"scan"`
				}
				decode(resp, &body)
				Expect(body.Error).To(Equal("no clothing items recognized"))
				Expect(body.Scan).NotTo(BeNil())
				Expect(body.Scan.Items).To(BeEmpty())
			})
		})

		When("the body is not JSON", func() {
			It("returns Bad Request", func() {
				resp := do(http.MethodPost, "/api/parse", strings.NewReader("{"), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/scans", func() {
		When("a receipt photo is uploaded", func() {
			It("returns the scan as Created", func() {
				resp := upload("receipt.jpg", []byte("jpeg bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				var scan Scan
				decode(resp, &scan)
				Expect(scan.Filename).To(Equal("id-1_receipt.jpg"))
				Expect(scan.Items).To(HaveLen(3))
			})

			It("infers the content type from the extension", func() {
				upload("receipt.HEIC", []byte("heic bytes"))
				Expect(ocr.contentType).To(Equal("image/heic"))
			})
		})

		When("OCR fails", func() {
			BeforeEach(func() {
				ocr.err = errors.New("model unavailable")
			})

			It("returns Bad Gateway", func() {
				resp := upload("receipt.jpg", []byte("jpeg bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		When("the receipt has no clothing", func() {
			BeforeEach(func() {
				ocr.text = "GROCERY MART\nMilk $3.99"
			})

			It("returns Unprocessable Entity", func() {
				resp := upload("receipt.jpg", []byte("jpeg bytes"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("no file is sent", func() {
			It("returns Bad Request", func() {
				var buf bytes.Buffer
				w := multipart.NewWriter(&buf)
				Expect(w.WriteField("note", "no file")).To(Succeed())
				Expect(w.Close()).To(Succeed())
				resp := do(http.MethodPost, "/api/scans", &buf, w.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("scans", func() {
		BeforeEach(func() {
			db.scans["s1"] = &Scan{ID: "s1", Filename: "s1_r.png", ContentType: "image/png", Items: []scanning.ParsedItem{
				{Name: "Nike Sweatshirt", Brand: "Nike", Category: "Top", Size: "M", Price: "79.99"},
			}}
			storage.files["s1_r.png"] = []byte("png data")
		})

		It("lists scans", func() {
			resp := do(http.MethodGet, "/api/scans", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var scans []*Scan
			decode(resp, &scans)
			Expect(scans).To(HaveLen(1))
		})

		It("gets a scan", func() {
			resp := do(http.MethodGet, "/api/scans/s1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var scan Scan
			decode(resp, &scan)
			Expect(scan.ID).To(Equal("s1"))
		})

		It("returns Not Found for an unknown scan", func() {
			resp := do(http.MethodGet, "/api/scans/missing", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves the receipt file", func() {
			resp := do(http.MethodGet, "/api/scans/s1/file", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("png data"))
		})

		It("deletes a scan", func() {
			resp := do(http.MethodDelete, "/api/scans/s1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.scans).To(BeEmpty())
		})

		It("imports selected items", func() {
			resp := doJSON(http.MethodPost, "/api/scans/s1/import", ImportRequest{
				OwnerID:    "owner-1",
				Selections: []ImportSelection{{Index: 0}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var items []*Item
			decode(resp, &items)
			Expect(items).To(HaveLen(1))
			Expect(items[0].Title).To(Equal("Nike Sweatshirt"))
			Expect(items[0].PurchasePrice.String()).To(Equal("79.99"))
		})

		It("rejects an invalid import", func() {
			resp := doJSON(http.MethodPost, "/api/scans/s1/import", ImportRequest{
				OwnerID:    "owner-1",
				Selections: []ImportSelection{{Index: 5}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(db.items).To(BeEmpty())
		})
	})

	Describe("items", func() {
		BeforeEach(func() {
			db.items["i1"] = &Item{ID: "i1", OwnerID: "owner-1", Title: "Tee", Category: "Top", Images: []string{}, IsActive: true}
			db.items["i2"] = &Item{ID: "i2", OwnerID: "owner-2", Title: "Jeans", Category: "Bottom", Images: []string{}, IsActive: true}
		})

		It("lists an owner's items", func() {
			resp := do(http.MethodGet, "/api/items?owner=owner-1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var items []*Item
			decode(resp, &items)
			Expect(items).To(HaveLen(1))
			Expect(items[0].ID).To(Equal("i1"))
		})

		It("adds an item", func() {
			resp := doJSON(http.MethodPost, "/api/items", map[string]any{
				"owner_id":       "owner-1",
				"title":          "Rain Shell",
				"category":       "outerwear",
				"purchase_price": "120.00",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var item Item
			decode(resp, &item)
			Expect(item.ID).To(Equal("id-1"))
			Expect(item.Category).To(Equal("Outerwear"))
			Expect(item.PurchasePrice.String()).To(Equal("120"))
		})

		It("rejects an item with an unknown category", func() {
			resp := doJSON(http.MethodPost, "/api/items", map[string]any{
				"owner_id": "owner-1",
				"title":    "Cap",
				"category": "Hat",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("gets an item", func() {
			resp := do(http.MethodGet, "/api/items/i1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("updates an item", func() {
			resp := doJSON(http.MethodPatch, "/api/items/i1", map[string]any{"size": "L"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var item Item
			decode(resp, &item)
			Expect(item.Size).To(Equal("L"))
			Expect(item.Title).To(Equal("Tee"))
		})

		It("returns Not Found when updating an unknown item", func() {
			resp := doJSON(http.MethodPatch, "/api/items/missing", map[string]any{"size": "L"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("soft deletes an item", func() {
			resp := do(http.MethodDelete, "/api/items/i1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.items["i1"].IsActive).To(BeFalse())
		})
	})

	Describe("unsupported methods", func() {
		It("returns Method Not Allowed", func() {
			resp := do(http.MethodPut, "/api/scans", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})
})
