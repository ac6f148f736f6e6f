package models

import "time"

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type ShippingAddress struct {
	Country    string `json:"country" binding:"required,min=2,max=50"`
	State      string `json:"state" binding:"required,min=2,max=50"`
	City       string `json:"city" binding:"required,min=2,max=50"`
	Street     string `json:"street" binding:"required,min=5,max=100"`
	PostalCode string `json:"postalCode" binding:"required,numeric,min=4,max=10"`
}

type OrderItem struct {
	ProductID  string  `json:"product"`
	Quantity   int     `json:"quantity"`
	Size       string  `json:"size,omitempty"`
	Color      string  `json:"color,omitempty"`
	Price      float64 `json:"price"`
	TotalPrice float64 `json:"totalPrice"`
}

// Order is an immutable snapshot of a cart. Only the status fields and
// their timestamps change after creation.
type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user"`
	OrderItems        []OrderItem     `json:"orderItems"`
	Pricing           Pricing         `json:"pricing"`
	Coupon            *Coupon         `json:"coupon,omitempty"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod"`
	PaymentStatus     PaymentStatus   `json:"paymentStatus"`
	OrderStatus       OrderStatus     `json:"orderStatus"`
	Phone             string          `json:"phone"`
	ShippingAddress   ShippingAddress `json:"shippingAddress"`
	CheckoutSessionID string          `json:"checkoutSessionId,omitempty"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type CreateOrderRequest struct {
	Phone string `json:"phone" binding:"required,min=5,max=15"`
	ShippingAddress
}

type UpdateOrderStatusRequest struct {
	OrderStatus OrderStatus `json:"orderStatus" binding:"required"`
}

type CheckoutSession struct {
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionURL"`
}

type OrderEvent struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ItemCount     int           `json:"item_count"`
	TotalPrice    float64       `json:"total_price"`
	EventType     string        `json:"event_type"` // order_created, order_status_changed
}
