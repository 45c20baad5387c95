package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/service"
)

// CatalogService manages the category tree
type CatalogService interface {
	CreateCategory(ctx context.Context, in service.CategoryInput) (*service.Category, error)
	UpdateCategory(ctx context.Context, id int, in service.CategoryInput) (*service.Category, error)
	ListCategories(ctx context.Context) ([]service.Category, error)
	DeleteCategory(ctx context.Context, id int) error

	CreateSubcategory(ctx context.Context, in service.SubcategoryInput) (*service.Subcategory, error)
	UpdateSubcategory(ctx context.Context, id int, in service.SubcategoryInput) (*service.Subcategory, error)
	ListSubcategories(ctx context.Context, categoryID int) ([]service.Subcategory, error)
	DeleteSubcategory(ctx context.Context, id int) error

	CreateSpecification(ctx context.Context, subcategoryID int, in service.SpecificationInput) (*service.Specification, error)
	ListSpecifications(ctx context.Context, subcategoryID int) ([]service.Specification, error)
	UpdateSpecification(ctx context.Context, subcategoryID, id int, in service.SpecificationInput) (*service.Specification, error)
	DeleteSpecification(ctx context.Context, subcategoryID, id int) error
}

type CatalogHandler struct {
	catalog  CatalogService
	validate *validator.Validate
}

func NewCatalogHandler(catalog CatalogService, validate *validator.Validate) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, validate: validate}
}

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		fail(w, r, "Failed to list categories", err)
		return
	}
	response.Success(w, http.StatusOK, "", cats)
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	cat, err := h.catalog.CreateCategory(r.Context(), in)
	if err != nil {
		fail(w, r, "Failed to create category", err)
		return
	}
	response.Success(w, http.StatusCreated, "Category created", cat)
}

func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID")
	if !ok {
		return
	}
	var in service.CategoryInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	cat, err := h.catalog.UpdateCategory(r.Context(), id, in)
	if err != nil {
		fail(w, r, "Failed to update category", err)
		return
	}
	response.Success(w, http.StatusOK, "Category updated", cat)
}

func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "categoryID")
	if !ok {
		return
	}

	if err := h.catalog.DeleteCategory(r.Context(), id); err != nil {
		fail(w, r, "Failed to delete category", err)
		return
	}
	response.Success(w, http.StatusOK, "Category deleted", nil)
}

// ListSubcategories accepts an optional category_id filter
func (h *CatalogHandler) ListSubcategories(w http.ResponseWriter, r *http.Request) {
	subs, err := h.catalog.ListSubcategories(r.Context(), queryInt(r, "category_id", 0))
	if err != nil {
		fail(w, r, "Failed to list subcategories", err)
		return
	}
	response.Success(w, http.StatusOK, "", subs)
}

func (h *CatalogHandler) CreateSubcategory(w http.ResponseWriter, r *http.Request) {
	var in service.SubcategoryInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	sub, err := h.catalog.CreateSubcategory(r.Context(), in)
	if err != nil {
		fail(w, r, "Failed to create subcategory", err)
		return
	}
	response.Success(w, http.StatusCreated, "Subcategory created", sub)
}

func (h *CatalogHandler) UpdateSubcategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}
	var in service.SubcategoryInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	sub, err := h.catalog.UpdateSubcategory(r.Context(), id, in)
	if err != nil {
		fail(w, r, "Failed to update subcategory", err)
		return
	}
	response.Success(w, http.StatusOK, "Subcategory updated", sub)
}

func (h *CatalogHandler) DeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}

	if err := h.catalog.DeleteSubcategory(r.Context(), id); err != nil {
		fail(w, r, "Failed to delete subcategory", err)
		return
	}
	response.Success(w, http.StatusOK, "Subcategory deleted", nil)
}

func (h *CatalogHandler) ListSpecifications(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}

	specs, err := h.catalog.ListSpecifications(r.Context(), subID)
	if err != nil {
		fail(w, r, "Failed to list specifications", err)
		return
	}
	response.Success(w, http.StatusOK, "", specs)
}

func (h *CatalogHandler) CreateSpecification(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}
	var in service.SpecificationInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	spec, err := h.catalog.CreateSpecification(r.Context(), subID, in)
	if err != nil {
		fail(w, r, "Failed to create specification", err)
		return
	}
	response.Success(w, http.StatusCreated, "Specification created", spec)
}

func (h *CatalogHandler) UpdateSpecification(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "specificationID")
	if !ok {
		return
	}
	var in service.SpecificationInput
	if !decode(w, r, &in, h.validate) {
		return
	}

	spec, err := h.catalog.UpdateSpecification(r.Context(), subID, id, in)
	if err != nil {
		fail(w, r, "Failed to update specification", err)
		return
	}
	response.Success(w, http.StatusOK, "Specification updated", spec)
}

func (h *CatalogHandler) DeleteSpecification(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(w, r, "subcategoryID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "specificationID")
	if !ok {
		return
	}

	if err := h.catalog.DeleteSpecification(r.Context(), subID, id); err != nil {
		fail(w, r, "Failed to delete specification", err)
		return
	}
	response.Success(w, http.StatusOK, "Specification deleted", nil)
}
