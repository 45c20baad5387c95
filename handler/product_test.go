package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/infra/validate"
	"github.com/mstgnz/dukapi/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProductService struct {
	mock.Mock
	ProductService
}

func (m *mockProductService) ListPublic(ctx context.Context, f service.ProductFilter) (response.Page[service.Product], error) {
	args := m.Called(ctx, f)
	return args.Get(0).(response.Page[service.Product]), args.Error(1)
}

func (m *mockProductService) Update(ctx context.Context, actor service.Actor, id int, patch service.ProductPatch) (*service.Product, error) {
	args := m.Called(ctx, actor, id, patch)
	p, _ := args.Get(0).(*service.Product)
	return p, args.Error(1)
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProductHandler_UploadImage(t *testing.T) {
	t.Run("stored", func(t *testing.T) {
		dir := t.TempDir()
		h := NewProductHandler(nil, service.NewUploads(dir), validate.New())
		w := httptest.NewRecorder()

		h.UploadImage(w, multipartRequest(t, "file", "phone.PNG", []byte("\x89PNG fake")))

		require.Equal(t, http.StatusCreated, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		url := data["url"].(string)
		assert.True(t, strings.HasPrefix(url, "/uploads/"))
		assert.True(t, strings.HasSuffix(url, ".png"))

		_, err := os.Stat(filepath.Join(dir, filepath.Base(url)))
		assert.NoError(t, err)
	})

	t.Run("bad_extension", func(t *testing.T) {
		h := NewProductHandler(nil, service.NewUploads(t.TempDir()), validate.New())
		w := httptest.NewRecorder()

		h.UploadImage(w, multipartRequest(t, "file", "script.sh", []byte("#!/bin/sh")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing_field", func(t *testing.T) {
		h := NewProductHandler(nil, service.NewUploads(t.TempDir()), validate.New())
		w := httptest.NewRecorder()

		h.UploadImage(w, multipartRequest(t, "image", "phone.png", []byte("x")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProductHandler_List(t *testing.T) {
	m := &mockProductService{}
	m.On("ListPublic", mock.Anything, service.ProductFilter{
		Search: "spark",
		Page:   2,
		IDs:    []int{4, 9},
	}).Return(response.NewPage([]service.Product{{ID: 4}}, 1, 2, 20), nil)
	h := NewProductHandler(m, nil, validate.New())
	w := httptest.NewRecorder()

	h.List(w, newRequest(http.MethodGet, "/products?search=spark&page=2&ids=4,9", "", 0, "", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	m.AssertExpectations(t)
}

func TestProductHandler_Update_NotOwner(t *testing.T) {
	m := &mockProductService{}
	m.On("Update", mock.Anything, service.Actor{ID: 2, Role: auth.RoleAdmin}, 8, mock.Anything).
		Return(nil, service.ErrForbidden)
	h := NewProductHandler(m, nil, validate.New())
	w := httptest.NewRecorder()

	h.Update(w, newRequest(http.MethodPatch, "/products/8", `{"name":"Renamed"}`, 2, auth.RoleAdmin,
		map[string]string{"productID": "8"}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	m.AssertExpectations(t)
}
