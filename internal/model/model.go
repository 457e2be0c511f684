package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Sizes       []ProductSize
	Images      []ProductImage
	Tags        []Tag
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ProductSize struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Label     string
	Stock     int
}

type ProductImage struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Path      string // relative to the upload dir
	Position  int
}

type Tag struct {
	ID   uuid.UUID
	Name string
}

// StockEntry is one SKU position: stock is tracked per (product, size).
type StockEntry struct {
	ProductID uuid.UUID
	SizeID    uuid.UUID
	Stock     int
}

type OrderStatus string

// Status values are the storefront's wire format and are kept verbatim.
const (
	OrderStatusOrdered   OrderStatus = "Bestellt"
	OrderStatusPaid      OrderStatus = "Bezahlt"
	OrderStatusCancelled OrderStatus = "Storniert"
)

var orderStatusNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusOrdered:   {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {OrderStatusCancelled: true},
	OrderStatusCancelled: {},
}

func ValidOrderStatus(s OrderStatus) bool {
	_, ok := orderStatusNext[s]
	return ok
}

func CanTransitionOrder(from, to OrderStatus) bool {
	return orderStatusNext[from][to]
}

type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    OrderStatus
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total is derived from the snapshotted item prices, never from the catalog.
func (o *Order) Total() decimal.Decimal {
	var total decimal.Decimal
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	SizeID      uuid.UUID
	Quantity    int
	Price       decimal.Decimal // frozen at order creation
	ProductName string
	SizeLabel   string
}

type AiJobStatus string

const (
	AiJobStatusPending    AiJobStatus = "PENDING"
	AiJobStatusProcessing AiJobStatus = "PROCESSING"
	AiJobStatusSuccess    AiJobStatus = "SUCCESS"
	AiJobStatusFailed     AiJobStatus = "FAILED"
)

type ProductAiJob struct {
	ID                uuid.UUID
	ProductID         *uuid.UUID
	ImagePaths        []string
	Price             decimal.Decimal
	Status            AiJobStatus
	ResultDisplayName string
	ResultDescription string
	ResultTags        []string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	SizeID    uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MailMessage is the payload published to the order-confirmation queue.
type MailMessage struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
