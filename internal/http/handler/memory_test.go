package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autodev.dev/orchestrator/internal/config"
	"autodev.dev/orchestrator/internal/http/handler"
)

var _ = Describe("MemoryHandler.AddNote", func() {
	var router *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		h := handler.NewMemoryHandler(nil, config.MemoryConfig{MaxItemsPerJob: 100, MaxBytesPerItem: 16}, ".")
		router.POST("/memory/:id/notes", h.AddNote)
	})

	It("rejects an unknown note_type before touching storage", func() {
		body := []byte(`{"note_type":"Rumor","title":"x","body":"y"}`)
		req := httptest.NewRequest(http.MethodPost, "/memory/1/notes", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a note body over the per-item byte cap", func() {
		body := []byte(`{"note_type":"Decision","title":"x","body":"this body is definitely over sixteen bytes"}`)
		req := httptest.NewRequest(http.MethodPost, "/memory/1/notes", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 on an unparseable body", func() {
		req := httptest.NewRequest(http.MethodPost, "/memory/1/notes", bytes.NewBufferString(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
