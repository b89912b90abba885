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

var _ = Describe("JobHandler.Create", func() {
	var router *gin.Engine

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		h := handler.NewJobHandler(nil, nil, nil, config.BudgetConfig{}, config.LLMConfig{}, true)
		router.POST("/tasks", h.Create)
	})

	It("returns 400 on an unparseable body", func() {
		req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 when required fields are missing", func() {
		req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(`{"task":""}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("JobHandler.Get", func() {
	It("returns 400 for a non-numeric job id", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		h := handler.NewJobHandler(nil, nil, nil, config.BudgetConfig{}, config.LLMConfig{}, true)
		router.GET("/jobs/:id", h.Get)

		req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-number", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
