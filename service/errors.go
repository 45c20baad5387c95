package service

import "errors"

var (
	ErrCategoryNotFound      = errors.New("category not found")
	ErrSubcategoryNotFound   = errors.New("subcategory not found")
	ErrSpecificationNotFound = errors.New("specification not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrImageNotFound         = errors.New("image not found")
	ErrAddressNotFound       = errors.New("address not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrFavoriteNotFound      = errors.New("favorite not found")
	ErrReviewNotFound        = errors.New("review not found")
	ErrBannerNotFound        = errors.New("banner not found")

	ErrForbidden     = errors.New("not allowed to modify this resource")
	ErrDuplicateName = errors.New("name already exists")
	ErrInUse         = errors.New("resource is referenced by other records")

	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrTransactionUnavailable = errors.New("invalid or already used transaction")
	ErrInsufficientAmount     = errors.New("insufficient transaction amount")
	ErrOrderAlreadyPaid       = errors.New("order already has an accepted payment")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidQuantity        = errors.New("quantity must be positive with at most 2 decimals")

	ErrAlreadyFavorite   = errors.New("product already in favorites")
	ErrAlreadyReviewed   = errors.New("product already reviewed for this order")
	ErrReviewNotAllowed  = errors.New("order does not contain this product")
	ErrAlreadySubscribed = errors.New("email already subscribed")

	ErrInvalidFile  = errors.New("invalid file type")
	ErrFileTooLarge = errors.New("file too large")

	ErrInvalidAmount        = errors.New("amount must be a positive whole number")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayRejected      = errors.New("payment request rejected by gateway")
	ErrCallbackUnauthorized = errors.New("callback not authorized")
	ErrInvalidCallback      = errors.New("unreadable callback payload")
)
