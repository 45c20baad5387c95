package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

// EngagementService covers favorites, reviews, banners and the newsletter
type EngagementService interface {
	AddFavorite(ctx context.Context, userID, productID int) (*service.Favorite, error)
	ListFavorites(ctx context.Context, userID int) ([]service.Favorite, error)
	DeleteFavorite(ctx context.Context, userID, id int) error

	CreateReview(ctx context.Context, userID int, in service.ReviewInput) (*service.Review, error)
	ProductReviews(ctx context.Context, productID int) ([]service.Review, error)
	MyReviews(ctx context.Context, userID int) ([]service.Review, error)
	UpdateReview(ctx context.Context, userID, id int, patch service.ReviewPatch) (*service.Review, error)
	DeleteReview(ctx context.Context, userID, id int) error
	RecalculateRatings(ctx context.Context) (int, error)

	CreateBanner(ctx context.Context, in service.BannerInput) (*service.Banner, error)
	ListBanners(ctx context.Context, bannerType string, categoryID int, activeOnly bool) ([]service.Banner, error)
	UpdateBanner(ctx context.Context, id int, patch service.BannerPatch) (*service.Banner, error)
	DeleteBanner(ctx context.Context, id int) error
	RemoveBannerImage(ctx context.Context, id int) (*service.Banner, error)

	Subscribe(ctx context.Context, email string) error
}

type EngagementHandler struct {
	engagement EngagementService
	validate   *validator.Validate
}

func NewEngagementHandler(engagement EngagementService, validate *validator.Validate) *EngagementHandler {
	return &EngagementHandler{engagement: engagement, validate: validate}
}

type FavoriteRequest struct {
	ProductID int `json:"product_id" validate:"required,gt=0"`
}

type SubscribeRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func (h *EngagementHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req FavoriteRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	f, err := h.engagement.AddFavorite(r.Context(), claims.ID, req.ProductID)
	if err != nil {
		fail(w, r, "Failed to add favorite", err)
		return
	}
	response.Success(w, http.StatusCreated, "Added to favorites", f)
}

func (h *EngagementHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.engagement.ListFavorites(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, "Failed to list favorites", err)
		return
	}
	response.Success(w, http.StatusOK, "", list)
}

func (h *EngagementHandler) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "favoriteID")
	if !ok {
		return
	}

	if err := h.engagement.DeleteFavorite(r.Context(), claims.ID, id); err != nil {
		fail(w, r, "Failed to remove favorite", err)
		return
	}
	response.Success(w, http.StatusOK, "Removed from favorites", nil)
}

func (h *EngagementHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.ReviewInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	rev, err := h.engagement.CreateReview(r.Context(), claims.ID, in)
	if err != nil {
		fail(w, r, "Failed to create review", err)
		return
	}
	response.Success(w, http.StatusCreated, "Review created", rev)
}

func (h *EngagementHandler) ProductReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	list, err := h.engagement.ProductReviews(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to list reviews", err)
		return
	}
	response.Success(w, http.StatusOK, "", list)
}

func (h *EngagementHandler) MyReviews(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.engagement.MyReviews(r.Context(), claims.ID)
	if err != nil {
		fail(w, r, "Failed to list reviews", err)
		return
	}
	response.Success(w, http.StatusOK, "", list)
}

func (h *EngagementHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}
	var patch service.ReviewPatch
	if !decode(w, r, &patch, h.validate) {
		return
	}

	rev, err := h.engagement.UpdateReview(r.Context(), claims.ID, id, patch)
	if err != nil {
		fail(w, r, "Failed to update review", err)
		return
	}
	response.Success(w, http.StatusOK, "Review updated", rev)
}

func (h *EngagementHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}

	if err := h.engagement.DeleteReview(r.Context(), claims.ID, id); err != nil {
		fail(w, r, "Failed to delete review", err)
		return
	}
	response.Success(w, http.StatusOK, "Review deleted", nil)
}

func (h *EngagementHandler) RecalculateRatings(w http.ResponseWriter, r *http.Request) {
	n, err := h.engagement.RecalculateRatings(r.Context())
	if err != nil {
		fail(w, r, "Failed to recalculate ratings", err)
		return
	}
	response.Success(w, http.StatusOK, "Ratings recalculated", map[string]int{"products": n})
}

// ListBanners serves the storefront: active banners only
func (h *EngagementHandler) ListBanners(w http.ResponseWriter, r *http.Request) {
	h.listBanners(w, r, true)
}

// AdminListBanners includes inactive banners
func (h *EngagementHandler) AdminListBanners(w http.ResponseWriter, r *http.Request) {
	h.listBanners(w, r, false)
}

func (h *EngagementHandler) listBanners(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	list, err := h.engagement.ListBanners(r.Context(), r.URL.Query().Get("type"), queryInt(r, "category_id", 0), activeOnly)
	if err != nil {
		fail(w, r, "Failed to list banners", err)
		return
	}
	response.Success(w, http.StatusOK, "", list)
}

func (h *EngagementHandler) CreateBanner(w http.ResponseWriter, r *http.Request) {
	var in service.BannerInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	b, err := h.engagement.CreateBanner(r.Context(), in)
	if err != nil {
		fail(w, r, "Failed to create banner", err)
		return
	}
	response.Success(w, http.StatusCreated, "Banner created", b)
}

func (h *EngagementHandler) UpdateBanner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bannerID")
	if !ok {
		return
	}
	var patch service.BannerPatch
	if !decode(w, r, &patch, h.validate) {
		return
	}

	b, err := h.engagement.UpdateBanner(r.Context(), id, patch)
	if err != nil {
		fail(w, r, "Failed to update banner", err)
		return
	}
	response.Success(w, http.StatusOK, "Banner updated", b)
}

func (h *EngagementHandler) DeleteBanner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bannerID")
	if !ok {
		return
	}

	if err := h.engagement.DeleteBanner(r.Context(), id); err != nil {
		fail(w, r, "Failed to delete banner", err)
		return
	}
	response.Success(w, http.StatusOK, "Banner deleted", nil)
}

func (h *EngagementHandler) RemoveBannerImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bannerID")
	if !ok {
		return
	}

	b, err := h.engagement.RemoveBannerImage(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to remove banner image", err)
		return
	}
	response.Success(w, http.StatusOK, "Banner image removed", b)
}

func (h *EngagementHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	if err := h.engagement.Subscribe(r.Context(), req.Email); err != nil {
		fail(w, r, "Subscription failed", err)
		return
	}
	response.Success(w, http.StatusCreated, "Subscribed to newsletter", nil)
}
