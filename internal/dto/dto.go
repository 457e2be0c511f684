package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wallau/shop-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Product ---

type SizeInput struct {
	Label string `json:"label" binding:"required"`
	Stock int    `json:"stock" binding:"min=0"`
}

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Sizes       []SizeInput     `json:"sizes" binding:"required,min=1,dive"`
	Tags        []string        `json:"tags"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Tags        []string         `json:"tags"`
}

type UpdateStockRequest struct {
	Stock int `json:"stock" binding:"min=0"`
}

type ListProductsRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search string `form:"search"`
	Sort   string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order  string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type SizeResponse struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
	Stock int       `json:"stock"`
}

type ImageResponse struct {
	ID   uuid.UUID `json:"id"`
	URL  string    `json:"url"`
	Path string    `json:"path"`
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Sizes       []SizeResponse  `json:"sizes"`
	Images      []ImageResponse `json:"images"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	SizeID    uuid.UUID `json:"size_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type CartResponse struct {
	ID    uuid.UUID          `json:"id"`
	Items []CartItemResponse `json:"items"`
}

type CartItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	SizeID    uuid.UUID `json:"size_id"`
	Quantity  int       `json:"quantity"`
}

// --- Order ---

type OrderItemInput struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	SizeID    uuid.UUID `json:"sizeId" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	Items  []OrderItemInput  `json:"items" binding:"required,min=1,dive"`
	Status model.OrderStatus `json:"status"`
	UserID *uuid.UUID        `json:"userId"` // admin only: order on behalf of a user
}

type UpdateOrderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

type OrderItemResponse struct {
	ProductID   uuid.UUID       `json:"productId"`
	SizeID      uuid.UUID       `json:"sizeId"`
	ProductName string          `json:"productName"`
	SizeLabel   string          `json:"sizeLabel"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	ID        uuid.UUID           `json:"id"`
	UserID    uuid.UUID           `json:"userId"`
	Status    model.OrderStatus   `json:"status"`
	Items     []OrderItemResponse `json:"items"`
	Total     decimal.Decimal     `json:"total"`
	CreatedAt time.Time           `json:"createdAt"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

// --- Domain error payloads ---

// InsufficientStockDetails pinpoints the offending cart line so the
// storefront can highlight it.
type InsufficientStockDetails struct {
	ProductID uuid.UUID `json:"productId"`
	SizeID    uuid.UUID `json:"sizeId"`
	Available int       `json:"available"`
	Requested int       `json:"requested"`
}

// DomainErrorResponse is returned with HTTP 200 for recoverable business
// errors; clients branch on Code, not on the status line.
type DomainErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// --- AI jobs ---

type AiJobResponse struct {
	ID                uuid.UUID         `json:"id"`
	ProductID         *uuid.UUID        `json:"productId"`
	ImagePaths        []string          `json:"imagePaths"`
	Price             decimal.Decimal   `json:"price"`
	Status            model.AiJobStatus `json:"status"`
	ResultDisplayName string            `json:"resultDisplayName,omitempty"`
	ResultDescription string            `json:"resultDescription,omitempty"`
	ResultTags        []string          `json:"resultTags,omitempty"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}
