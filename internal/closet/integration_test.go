package closet_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/closet-tracker/internal/closet"
	"github.com/zombor/closet-tracker/internal/scanning"
)

var _ = Describe("Closet tracker", func() {
	var (
		db      *closet.BoltDB
		service *closet.Service
		server  *httptest.Server
	)

	BeforeEach(func() {
		tmpDir := GinkgoT().TempDir()

		var err error
		db, err = closet.NewBoltDB(filepath.Join(tmpDir, "closet.db"))
		Expect(err).NotTo(HaveOccurred())

		storage, err := closet.NewLocalStorage(filepath.Join(tmpDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())

		service = closet.NewService(db, scanning.NewFixture(), storage)
		server = httptest.NewServer(closet.NewServer(service, closet.BasicAuth{}))
	})

	AfterEach(func() {
		server.Close()
		db.Close()
	})

	It("scans a receipt and imports its garments into a closet", func() {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "nike.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())

		resp, err := http.Post(server.URL+"/api/scans", w.FormDataContentType(), &buf)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var scan closet.Scan
		Expect(json.NewDecoder(resp.Body).Decode(&scan)).To(Succeed())
		Expect(scan.Items).To(HaveLen(3))

		body, err := json.Marshal(closet.ImportRequest{
			OwnerID:    "owner-1",
			Selections: []closet.ImportSelection{{Index: 0}, {Index: 1}, {Index: 2}},
		})
		Expect(err).NotTo(HaveOccurred())
		importResp, err := http.Post(server.URL+"/api/scans/"+scan.ID+"/import", "application/json", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer importResp.Body.Close()
		Expect(importResp.StatusCode).To(Equal(http.StatusCreated))

		items, err := service.ListItems("owner-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(3))

		categories := make([]string, 0, len(items))
		for _, item := range items {
			Expect(item.ScanID).To(Equal(scan.ID))
			categories = append(categories, item.Category)
		}
		Expect(categories).To(ConsistOf("Shoes", "Top", "Bottom"))

		fileResp, err := http.Get(server.URL + "/api/scans/" + scan.ID + "/file")
		Expect(err).NotTo(HaveOccurred())
		defer fileResp.Body.Close()
		Expect(fileResp.StatusCode).To(Equal(http.StatusOK))
	})

	It("keeps removed items retrievable but out of the closet listing", func() {
		item, err := service.AddItem(&closet.Item{OwnerID: "owner-1", Title: "Denim Jacket", Category: "Outerwear"})
		Expect(err).NotTo(HaveOccurred())

		Expect(service.DeleteItem(item.ID)).To(Succeed())

		items, err := service.ListItems("owner-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(BeEmpty())

		removed, err := service.GetItem(item.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed.IsActive).To(BeFalse())
	})

	It("rejects a scan when OCR is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := service.ScanReceipt(ctx, "receipt.jpg", []byte("jpeg"), "image/jpeg")
		Expect(err).To(MatchError(context.Canceled))
		Expect(closet.IsOCRFailure(err)).To(BeTrue())

		scans, err := service.ListScans()
		Expect(err).NotTo(HaveOccurred())
		Expect(scans).To(BeEmpty())
	})
})
