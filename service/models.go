package service

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Title       *string  `json:"title,omitempty"`
	Subtitle    *string  `json:"subtitle,omitempty"`
	Description *string  `json:"description,omitempty"`
	Features    []string `json:"features"`
}

type CategoryInput struct {
	Name        string   `json:"name" validate:"required,max=150"`
	Title       *string  `json:"title" validate:"omitempty,max=255"`
	Subtitle    *string  `json:"subtitle" validate:"omitempty,max=255"`
	Description *string  `json:"description"`
	Features    []string `json:"features"`
}

type Subcategory struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CategoryID  int     `json:"category_id"`
}

type SubcategoryInput struct {
	Name        string  `json:"name" validate:"required,max=150"`
	Description *string `json:"description"`
	CategoryID  int     `json:"category_id" validate:"required,gt=0"`
}

type Specification struct {
	ID            int    `json:"id"`
	SubcategoryID int    `json:"subcategory_id"`
	Name          string `json:"name"`
	ValueType     string `json:"value_type"`
}

type SpecificationInput struct {
	Name      string `json:"name" validate:"required,max=150"`
	ValueType string `json:"value_type" validate:"omitempty,oneof=string number boolean"`
}

type ProductImage struct {
	ID        int       `json:"id"`
	ProductID int       `json:"product_id"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// SpecValue is a specification value attached to a product
type SpecValue struct {
	ID              int    `json:"id"`
	ProductID       int    `json:"product_id"`
	SpecificationID int    `json:"specification_id"`
	Name            string `json:"name"`
	Value           string `json:"value"`
}

type SpecValueInput struct {
	SpecificationID int    `json:"specification_id" validate:"required,gt=0"`
	Value           string `json:"value" validate:"required,max=255"`
}

type Product struct {
	ID             int                 `json:"id"`
	Name           string              `json:"name"`
	Cost           decimal.Decimal     `json:"cost"`
	Price          decimal.Decimal     `json:"price"`
	OriginalPrice  decimal.NullDecimal `json:"original_price"`
	StockQuantity  decimal.Decimal     `json:"stock_quantity"`
	Barcode        int64               `json:"barcode"`
	Brand          *string             `json:"brand,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Rating         decimal.Decimal     `json:"rating"`
	Discount       decimal.Decimal     `json:"discount"`
	IsNew          bool                `json:"is_new"`
	CategoryID     *int                `json:"category_id,omitempty"`
	SubcategoryID  *int                `json:"subcategory_id,omitempty"`
	UserID         *int                `json:"user_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Images         []ProductImage      `json:"images"`
	Specifications []SpecValue         `json:"specifications"`
}

type ProductInput struct {
	Name           string              `json:"name" validate:"required,max=255"`
	Cost           decimal.Decimal     `json:"cost" validate:"gte=0"`
	Price          decimal.Decimal     `json:"price" validate:"gt=0"`
	OriginalPrice  decimal.NullDecimal `json:"original_price"`
	StockQuantity  decimal.Decimal     `json:"stock_quantity" validate:"gte=0"`
	Barcode        int64               `json:"barcode" validate:"required"`
	Brand          *string             `json:"brand" validate:"omitempty,max=150"`
	Description    *string             `json:"description"`
	Discount       decimal.Decimal     `json:"discount" validate:"gte=0,lte=100"`
	IsNew          bool                `json:"is_new"`
	CategoryID     *int                `json:"category_id" validate:"omitempty,gt=0"`
	SubcategoryID  *int                `json:"subcategory_id" validate:"omitempty,gt=0"`
	Images         []string            `json:"images" validate:"omitempty,dive,required"`
	Specifications []SpecValueInput    `json:"specifications" validate:"omitempty,dive"`
}

// ProductPatch is a partial update; nil fields are left unchanged
type ProductPatch struct {
	Name          *string          `json:"name" validate:"omitempty,max=255"`
	Cost          *decimal.Decimal `json:"cost"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	StockQuantity *decimal.Decimal `json:"stock_quantity"`
	Barcode       *int64           `json:"barcode"`
	Brand         *string          `json:"brand" validate:"omitempty,max=150"`
	Description   *string          `json:"description"`
	Discount      *decimal.Decimal `json:"discount"`
	IsNew         *bool            `json:"is_new"`
	CategoryID    *int             `json:"category_id" validate:"omitempty,gt=0"`
	SubcategoryID *int             `json:"subcategory_id" validate:"omitempty,gt=0"`
}

type ProductFilter struct {
	Search        string
	Page          int
	Limit         int
	CategoryID    int
	SubcategoryID int
	IDs           []int
}

type Address struct {
	ID             int       `json:"id"`
	UserID         int       `json:"user_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	PhoneNumber    string    `json:"phone_number"`
	Address        string    `json:"address"`
	AdditionalInfo *string   `json:"additional_info,omitempty"`
	Region         string    `json:"region"`
	City           string    `json:"city"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
}

type AddressInput struct {
	FirstName      string  `json:"first_name" validate:"required,max=100"`
	LastName       string  `json:"last_name" validate:"required,max=100"`
	PhoneNumber    string  `json:"phone_number" validate:"required,max=20"`
	Address        string  `json:"address" validate:"required,max=255"`
	AdditionalInfo *string `json:"additional_info" validate:"omitempty,max=255"`
	Region         string  `json:"region" validate:"required,max=100"`
	City           string  `json:"city" validate:"required,max=100"`
	IsDefault      bool    `json:"is_default"`
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

type Order struct {
	ID          int             `json:"order_id"`
	Total       decimal.Decimal `json:"total"`
	Datetime    time.Time       `json:"datetime"`
	Status      OrderStatus     `json:"status"`
	UserID      int             `json:"user_id"`
	AddressID   *int            `json:"address_id,omitempty"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Username    string          `json:"username,omitempty"`
	Address     *Address        `json:"address,omitempty"`
	Details     []OrderDetail   `json:"details"`
}

type OrderDetail struct {
	ID          int             `json:"order_detail_id"`
	OrderID     int             `json:"order_id"`
	ProductID   *int            `json:"product_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type CartItem struct {
	ID       int             `json:"id" validate:"required,gt=0"`
	Quantity decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type OrderInput struct {
	Cart          []CartItem      `json:"cart" validate:"required,min=1,dive"`
	AddressID     *int            `json:"address_id" validate:"omitempty,gt=0"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee" validate:"gte=0"`
	TransactionID *int            `json:"transaction_id" validate:"omitempty,gt=0"`
}

type OrderFilter struct {
	Skip   int
	Limit  int
	Status OrderStatus
	Search string
}

// TxStatus is the lifecycle state of a payment transaction
type TxStatus int

const (
	TxPending    TxStatus = 0
	TxProcessing TxStatus = 1
	TxProcessed  TxStatus = 2
	TxRejected   TxStatus = 3
	TxAccepted   TxStatus = 4
)

// Terminal reports states that are never left again
func (s TxStatus) Terminal() bool {
	return s == TxAccepted || s == TxRejected
}

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "PENDING"
	case TxProcessing:
		return "PROCESSING"
	case TxProcessed:
		return "PROCESSED"
	case TxRejected:
		return "REJECTED"
	case TxAccepted:
		return "ACCEPTED"
	}
	return "UNKNOWN"
}

type Transaction struct {
	ID                int             `json:"id"`
	OrderID           *int            `json:"order_id,omitempty"`
	PartyA            string          `json:"party_a"`
	PartyB            string          `json:"party_b"`
	AccountReference  string          `json:"account_reference"`
	Category          int             `json:"transaction_category"`
	Type              int             `json:"transaction_type"`
	Channel           int             `json:"transaction_channel"`
	Aggregator        int             `json:"transaction_aggregator"`
	TransactionID     string          `json:"transaction_id"`
	MerchantRequestID *string         `json:"merchant_request_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionCode   *string         `json:"transaction_code,omitempty"`
	Timestamp         time.Time       `json:"transaction_timestamp"`
	Details           *string         `json:"transaction_details,omitempty"`
	Feedback          []byte          `json:"-"`
	Status            TxStatus        `json:"status"`
	UserID            int             `json:"user_id"`
	CallbackRef       string          `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type TransactInput struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	PhoneNumber string          `json:"phone_number" validate:"required,msisdn"`
	OrderID     *int            `json:"order_id" validate:"omitempty,gt=0"`
}

type Favorite struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	ProductID int       `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
	Product   *Product  `json:"product,omitempty"`
}

type Review struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ProductID int       `json:"product_id"`
	OrderID   int       `json:"order_id"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ReviewInput struct {
	ProductID int     `json:"product_id" validate:"required,gt=0"`
	OrderID   int     `json:"order_id" validate:"required,gt=0"`
	Rating    int     `json:"rating" validate:"required,min=1,max=5"`
	Comment   *string `json:"comment"`
}

type ReviewPatch struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment"`
}

type Banner struct {
	ID         int       `json:"id"`
	ImageURL   string    `json:"image_url"`
	Title      *string   `json:"title,omitempty"`
	Subtitle   *string   `json:"subtitle,omitempty"`
	Active     bool      `json:"active"`
	Type       *string   `json:"type,omitempty"`
	CategoryID *int      `json:"category_id,omitempty"`
	ButtonText *string   `json:"button_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type BannerInput struct {
	ImageURL   string  `json:"image_url" validate:"required,max=500"`
	Title      *string `json:"title" validate:"omitempty,max=255"`
	Subtitle   *string `json:"subtitle" validate:"omitempty,max=255"`
	Active     *bool   `json:"active"`
	Type       *string `json:"type" validate:"omitempty,max=50"`
	CategoryID *int    `json:"category_id" validate:"omitempty,gt=0"`
	ButtonText *string `json:"button_text" validate:"omitempty,max=100"`
}

type BannerPatch struct {
	ImageURL   *string `json:"image_url" validate:"omitempty,max=500"`
	Title      *string `json:"title" validate:"omitempty,max=255"`
	Subtitle   *string `json:"subtitle" validate:"omitempty,max=255"`
	Active     *bool   `json:"active"`
	Type       *string `json:"type" validate:"omitempty,max=50"`
	CategoryID *int    `json:"category_id" validate:"omitempty,gt=0"`
	ButtonText *string `json:"button_text" validate:"omitempty,max=100"`
}
