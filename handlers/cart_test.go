package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace-svc/cart"
	"marketplace-svc/database/memstore"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/payment"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type stubScheduler struct{ n int }

func (s *stubScheduler) Schedule(ctx context.Context, cartID string) (string, error) {
	s.n++
	return fmt.Sprintf("job-%d", s.n), nil
}

func (s *stubScheduler) Cancel(ctx context.Context, jobID string) error { return nil }

type stubCoupons struct{}

func (stubCoupons) LookupPromotion(ctx context.Context, code string) (payment.Promotion, error) {
	if code == "SAVE10" {
		return payment.Promotion{ID: "promo_1", Code: code, PercentOff: 10}, nil
	}
	return payment.Promotion{}, payment.ErrPromotionNotFound
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"email":   userID + "@example.com",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return "Bearer " + token
}

func setupCartTest(t *testing.T) (*memstore.Store, *gin.Engine) {
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	store := memstore.New()
	store.PutProduct(&models.Product{ID: "mug", Title: "Mug", Price: 10, Quantity: 5, Stock: models.FlatStock{Quantity: 5}})

	handler := NewCartHandler(cart.NewService(store, &stubScheduler{}, stubCoupons{}, logger), logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1", middleware.AuthMiddleware(testSecret))
	api.GET("/cart", handler.GetCart)
	api.POST("/cart", handler.AddToCart)
	api.PUT("/cart", handler.UpdateItemQuantity)
	api.DELETE("/cart/item", handler.RemoveItem)
	api.DELETE("/cart", handler.ClearCart)
	api.PUT("/cart/applycoupon", handler.ApplyCoupon)

	return store, router
}

type cartResponse struct {
	Status         string      `json:"status"`
	Message        string      `json:"message"`
	Error          string      `json:"error"`
	NumOfCartItems int         `json:"numOfCartItems"`
	Data           models.Cart `json:"data"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path, auth string, body any) (*httptest.ResponseRecorder, cartResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp cartResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestCartHandler_RequiresAuth(t *testing.T) {
	_, router := setupCartTest(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/cart", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestCartHandler_AddAndRemove(t *testing.T) {
	store, router := setupCartTest(t)
	auth := bearer(t, "u1", "user")

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/cart", auth, gin.H{"productId": "mug", "quantity": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if resp.Status != "success" || resp.NumOfCartItems != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.Data.Pricing.TotalPrice != 30 {
		t.Errorf("Expected total price 30, got %v", resp.Data.Pricing.TotalPrice)
	}
	if got := store.Product("mug").Quantity; got != 2 {
		t.Errorf("Expected stock 2, got %d", got)
	}

	w, resp = doJSON(t, router, http.MethodDelete, "/api/v1/cart/item", auth, gin.H{"productId": "mug"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp.NumOfCartItems != 0 {
		t.Errorf("Expected empty cart, got %d items", resp.NumOfCartItems)
	}
	if got := store.Product("mug").Quantity; got != 5 {
		t.Errorf("Expected stock 5, got %d", got)
	}
}

func TestCartHandler_InsufficientStock(t *testing.T) {
	_, router := setupCartTest(t)

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/cart", bearer(t, "u1", "user"), gin.H{"productId": "mug", "quantity": 6})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if resp.Error != "Only 5 item(s) are available in stock." {
		t.Errorf("Unexpected error message: %q", resp.Error)
	}
}

func TestCartHandler_ValidationError(t *testing.T) {
	_, router := setupCartTest(t)

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/cart", bearer(t, "u1", "user"), gin.H{"productId": "mug", "quantity": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCartHandler_UpdateClearAndCoupon(t *testing.T) {
	store, router := setupCartTest(t)
	auth := bearer(t, "u1", "user")

	doJSON(t, router, http.MethodPost, "/api/v1/cart", auth, gin.H{"productId": "mug", "quantity": 1})

	w, resp := doJSON(t, router, http.MethodPut, "/api/v1/cart", auth, gin.H{"productId": "mug", "quantity": 4})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp.Data.CartItems[0].Quantity != 4 {
		t.Errorf("Expected quantity 4, got %d", resp.Data.CartItems[0].Quantity)
	}

	w, resp = doJSON(t, router, http.MethodPut, "/api/v1/cart/applycoupon", auth, gin.H{"couponCode": "SAVE10"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp.Data.Pricing.TotalPriceAfterDiscount == nil || *resp.Data.Pricing.TotalPriceAfterDiscount != 36 {
		t.Errorf("Expected discounted total 36, got %v", resp.Data.Pricing.TotalPriceAfterDiscount)
	}

	w, _ = doJSON(t, router, http.MethodPut, "/api/v1/cart/applycoupon", auth, gin.H{"couponCode": "NOPE1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w, resp = doJSON(t, router, http.MethodDelete, "/api/v1/cart", auth, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp.NumOfCartItems != 0 || resp.Data.Coupon != nil {
		t.Errorf("Expected cleared cart, got %+v", resp.Data)
	}
	if got := store.Product("mug").Quantity; got != 5 {
		t.Errorf("Expected stock 5, got %d", got)
	}
}

func TestCartHandler_GetCartIsPerUser(t *testing.T) {
	_, router := setupCartTest(t)

	doJSON(t, router, http.MethodPost, "/api/v1/cart", bearer(t, "u1", "user"), gin.H{"productId": "mug", "quantity": 1})

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/cart", bearer(t, "u2", "user"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp.NumOfCartItems != 0 {
		t.Errorf("Expected empty cart for another user, got %d items", resp.NumOfCartItems)
	}
}
