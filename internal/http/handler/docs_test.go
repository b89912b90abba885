package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/http/handler"
)

var _ = Describe("DocsHandler.Ingest", func() {
	It("returns 400 when text is missing", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		h := handler.NewDocsHandler(nil)
		router.POST("/context/docs", h.Ingest)

		req := httptest.NewRequest(http.MethodPost, "/context/docs", bytes.NewBufferString(`{"ref_id":"doc-1"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 on an unparseable body", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		h := handler.NewDocsHandler(nil)
		router.POST("/context/docs", h.Ingest)

		req := httptest.NewRequest(http.MethodPost, "/context/docs", bytes.NewBufferString(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
