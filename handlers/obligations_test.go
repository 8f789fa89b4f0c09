package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fhdautomacao/fhdautomacaosite-sub001/billing"
	"github.com/fhdautomacao/fhdautomacaosite-sub001/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Obligation{}, &models.Installment{}))
	return db
}

func setupRouter(t *testing.T, db *gorm.DB, now time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetOutput(io.Discard)
	clock := func() time.Time { return now }

	gateway := billing.NewGormGateway(db)
	handler := NewObligationHandler(
		gateway,
		billing.NewScheduler(clock),
		billing.NewReceiptService(gateway, nil, log, clock),
		billing.NewReconciler(gateway, nil, nil, log, clock),
		log,
	)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", uint(7))
		c.Next()
	})
	router.POST("/obligations", handler.CreateObligation)
	router.GET("/obligations", handler.ListObligations)
	router.GET("/obligations/:id", handler.GetObligation)
	router.POST("/installments/:id/receipt", handler.AttachReceipt)
	router.DELETE("/installments/:id/receipt", handler.DetachReceipt)
	router.POST("/installments/:id/cancel", handler.CancelInstallment)
	router.POST("/reconciliation/run", handler.ForceReconcile)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestCreateObligation(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

	t.Run("Equal Split", func(t *testing.T) {
		db := setupTestDB(t)
		router := setupRouter(t, db, now)

		w := doJSON(router, "POST", "/obligations", CreateObligationRequest{
			Kind:         "payable",
			CompanyID:    3,
			Description:  "Compressor maintenance contract",
			Policy:       PolicyEqualSplit,
			TotalAmount:  decimal.NewFromInt(1200),
			Count:        3,
			IntervalDays: 30,
			FirstDueDate: "2024-04-10",
		})
		assert.Equal(t, http.StatusCreated, w.Code)

		var ob models.Obligation
		require.NoError(t, db.Preload("Installments").First(&ob).Error)
		assert.Equal(t, models.KindPayable, ob.Kind)
		assert.Equal(t, models.ObligationPending, ob.Status)
		require.Len(t, ob.Installments, 3)
		assert.True(t, ob.TotalAmount.Equal(decimal.NewFromInt(1200)))
		assert.True(t, ob.Installments[0].Amount.Equal(decimal.NewFromInt(400)))
	})

	t.Run("Fixed Recurring", func(t *testing.T) {
		db := setupTestDB(t)
		router := setupRouter(t, db, now)

		w := doJSON(router, "POST", "/obligations", CreateObligationRequest{
			Kind:          "internal-cost-fixed",
			Description:   "Warehouse rent",
			Policy:        PolicyFixedRecurring,
			MonthlyAmount: decimal.NewFromInt(500),
			StartMonth:    "2024-01",
			DueDay:        31,
			EndMonth:      "2024-03",
		})
		assert.Equal(t, http.StatusCreated, w.Code)

		var ob models.Obligation
		require.NoError(t, db.Preload("Installments").First(&ob).Error)
		require.Len(t, ob.Installments, 3)
		// Total derives from the generated sequence.
		assert.True(t, ob.TotalAmount.Equal(decimal.NewFromInt(1500)))
	})

	t.Run("Rejects Bad Input", func(t *testing.T) {
		db := setupTestDB(t)
		router := setupRouter(t, db, now)

		cases := []struct {
			name string
			req  CreateObligationRequest
		}{
			{"Unknown Kind", CreateObligationRequest{Kind: "lease", Policy: PolicyEqualSplit, TotalAmount: decimal.NewFromInt(10), Count: 1, FirstDueDate: "2024-04-10"}},
			{"Unknown Policy", CreateObligationRequest{Kind: "payable", Policy: "weekly"}},
			{"Zero Count", CreateObligationRequest{Kind: "payable", Policy: PolicyEqualSplit, TotalAmount: decimal.NewFromInt(10), Count: 0, FirstDueDate: "2024-04-10"}},
			{"Bad Date", CreateObligationRequest{Kind: "payable", Policy: PolicyEqualSplit, TotalAmount: decimal.NewFromInt(10), Count: 1, FirstDueDate: "10/04/2024"}},
			{"Bad Due Day", CreateObligationRequest{Kind: "payable", Policy: PolicyFixedRecurring, MonthlyAmount: decimal.NewFromInt(10), StartMonth: "2024-01", DueDay: 45}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				w := doJSON(router, "POST", "/obligations", tc.req)
				assert.Equal(t, http.StatusBadRequest, w.Code)

				var count int64
				db.Model(&models.Obligation{}).Count(&count)
				assert.Equal(t, int64(0), count)
			})
		}
	})
}

func TestGetObligation(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	db := setupTestDB(t)
	router := setupRouter(t, db, now)

	t.Run("Not Found", func(t *testing.T) {
		w := doJSON(router, "GET", "/obligations/99", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Returns Installments", func(t *testing.T) {
		w := doJSON(router, "POST", "/obligations", CreateObligationRequest{
			Kind: "receivable", Policy: PolicyEqualSplit,
			TotalAmount: decimal.NewFromInt(300), Count: 2, IntervalDays: 15, FirstDueDate: "2024-04-01",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var ob models.Obligation
		require.NoError(t, db.First(&ob).Error)

		w = doJSON(router, "GET", fmt.Sprintf("/obligations/%d", ob.ID), nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"installment_number":1`)
		assert.Contains(t, w.Body.String(), `"installment_number":2`)
	})
}

func TestReceiptEndpoints(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	db := setupTestDB(t)
	router := setupRouter(t, db, now)

	w := doJSON(router, "POST", "/obligations", CreateObligationRequest{
		Kind: "payable", Policy: PolicyEqualSplit,
		TotalAmount: decimal.NewFromInt(200), Count: 1, FirstDueDate: "2024-04-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var inst models.Installment
	require.NoError(t, db.First(&inst).Error)
	receiptPath := fmt.Sprintf("/installments/%d/receipt", inst.ID)

	t.Run("Attach Stamps Context User", func(t *testing.T) {
		w := doJSON(router, "POST", receiptPath, AttachReceiptRequest{
			URL: "https://blobs.example.com/r/abc", Filename: "nf-1042.pdf",
		})
		assert.Equal(t, http.StatusOK, w.Code)

		var got models.Installment
		require.NoError(t, db.First(&got, inst.ID).Error)
		assert.Equal(t, models.InstallmentPaid, got.Status)
		assert.Equal(t, "7", got.ReceiptUploadedBy)
	})

	t.Run("Attach Requires Fields", func(t *testing.T) {
		w := doJSON(router, "POST", receiptPath, AttachReceiptRequest{URL: "https://blobs.example.com/r/abc"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Attach Unknown Installment", func(t *testing.T) {
		w := doJSON(router, "POST", "/installments/4242/receipt", AttachReceiptRequest{
			URL: "https://blobs.example.com/r/abc", Filename: "nf.pdf",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Detach Keeps Paid", func(t *testing.T) {
		w := doJSON(router, "DELETE", receiptPath, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var got models.Installment
		require.NoError(t, db.First(&got, inst.ID).Error)
		assert.Equal(t, models.InstallmentPaid, got.Status)
		assert.Empty(t, got.ReceiptURL)
	})

	t.Run("Cancel Paid Conflicts", func(t *testing.T) {
		w := doJSON(router, "POST", fmt.Sprintf("/installments/%d/cancel", inst.ID), nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestForceReconcile(t *testing.T) {
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	db := setupTestDB(t)
	router := setupRouter(t, db, now)

	w := doJSON(router, "POST", "/obligations", CreateObligationRequest{
		Kind: "internal-cost-variable", Policy: PolicyEqualSplit,
		TotalAmount: decimal.NewFromInt(100), Count: 1, FirstDueDate: "2024-03-01",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, "POST", "/reconciliation/run", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id"`)
	assert.Contains(t, w.Body.String(), `"transitioned":1`)

	var got models.Installment
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, models.InstallmentOverdue, got.Status)
}
