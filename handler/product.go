package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

// ProductService is the product API used by ProductHandler
type ProductService interface {
	ListPublic(ctx context.Context, f service.ProductFilter) (response.Page[service.Product], error)
	BySubcategory(ctx context.Context, subcategoryID int) ([]service.Product, error)
	Get(ctx context.Context, id int) (*service.Product, error)
	Create(ctx context.Context, actor service.Actor, in service.ProductInput) (*service.Product, error)
	Update(ctx context.Context, actor service.Actor, id int, patch service.ProductPatch) (*service.Product, error)
	Delete(ctx context.Context, actor service.Actor, id int) error
	AddImage(ctx context.Context, productID int, url string) (*service.ProductImage, error)
	ListImages(ctx context.Context, productID int) ([]service.ProductImage, error)
	DeleteImage(ctx context.Context, productID, imageID int) error
	AddSpecValue(ctx context.Context, productID int, in service.SpecValueInput) (*service.SpecValue, error)
	ListSpecValues(ctx context.Context, productID int) ([]service.SpecValue, error)
}

// FileStore keeps uploaded images
type FileStore interface {
	Save(filename string, r io.Reader) (string, error)
}

type ProductHandler struct {
	products ProductService
	files    FileStore
	validate *validator.Validate
}

func NewProductHandler(products ProductService, files FileStore, validate *validator.Validate) *ProductHandler {
	return &ProductHandler{products: products, files: files, validate: validate}
}

type ImageRequest struct {
	ImageURL string `json:"image_url" validate:"required,max=500"`
}

// List serves the storefront listing: search, category filters and id batches
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	f := service.ProductFilter{
		Search:        strings.TrimSpace(r.URL.Query().Get("search")),
		Page:          queryInt(r, "page", 1),
		Limit:         queryInt(r, "limit", 0),
		CategoryID:    queryInt(r, "category_id", 0),
		SubcategoryID: queryInt(r, "subcategory_id", 0),
		IDs:           queryIDs(r, "ids"),
	}

	page, err := h.products.ListPublic(r.Context(), f)
	if err != nil {
		fail(w, r, "Failed to list products", err)
		return
	}
	response.Success(w, http.StatusOK, "", page)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to load product", err)
		return
	}
	response.Success(w, http.StatusOK, "", p)
}

func (h *ProductHandler) BySubcategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}

	products, err := h.products.BySubcategory(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to list products", err)
		return
	}
	response.Success(w, http.StatusOK, "", products)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.ProductInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	p, err := h.products.Create(r.Context(), actorOf(claims), in)
	if err != nil {
		fail(w, r, "Failed to create product", err)
		return
	}
	response.Success(w, http.StatusCreated, "Product created", p)
}

// Update applies a partial update; only the owning admin or a superadmin may
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var patch service.ProductPatch
	if !decode(w, r, &patch, h.validate) {
		return
	}

	p, err := h.products.Update(r.Context(), actorOf(claims), id, patch)
	if err != nil {
		fail(w, r, "Failed to update product", err)
		return
	}
	response.Success(w, http.StatusOK, "Product updated", p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	if err := h.products.Delete(r.Context(), actorOf(claims), id); err != nil {
		fail(w, r, "Failed to delete product", err)
		return
	}
	response.Success(w, http.StatusOK, "Product deleted", nil)
}

func (h *ProductHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	images, err := h.products.ListImages(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to list images", err)
		return
	}
	response.Success(w, http.StatusOK, "", images)
}

func (h *ProductHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var req ImageRequest
	if !decode(w, r, &req, h.validate) {
		return
	}

	img, err := h.products.AddImage(r.Context(), id, req.ImageURL)
	if err != nil {
		fail(w, r, "Failed to add image", err)
		return
	}
	response.Success(w, http.StatusCreated, "Image added", img)
}

func (h *ProductHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	imageID, ok := pathID(w, r, "imageID")
	if !ok {
		return
	}

	if err := h.products.DeleteImage(r.Context(), id, imageID); err != nil {
		fail(w, r, "Failed to delete image", err)
		return
	}
	response.Success(w, http.StatusOK, "Image deleted", nil)
}

func (h *ProductHandler) ListSpecValues(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	values, err := h.products.ListSpecValues(r.Context(), id)
	if err != nil {
		fail(w, r, "Failed to list specifications", err)
		return
	}
	response.Success(w, http.StatusOK, "", values)
}

func (h *ProductHandler) AddSpecValue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var in service.SpecValueInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	v, err := h.products.AddSpecValue(r.Context(), id, in)
	if err != nil {
		fail(w, r, "Failed to add specification", err)
		return
	}
	response.Success(w, http.StatusCreated, "Specification added", v)
}

// UploadImage stores a multipart "file" field and returns its public path
func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	// room for multipart framing on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "File exceeds 20MB", nil)
			return
		}
		response.Error(w, http.StatusBadRequest, "A file field is required", err)
		return
	}
	defer file.Close()

	path, err := h.files.Save(header.Filename, file)
	if err != nil {
		fail(w, r, "Upload failed", err)
		return
	}
	response.Success(w, http.StatusCreated, "File uploaded", map[string]string{"url": path})
}
