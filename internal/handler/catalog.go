package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/volfir1/gadget-galaxy-api/internal/service"
	"github.com/volfir1/gadget-galaxy-api/internal/upload"
)

// CatalogHandler owns /api/categories and /api/products. Reads are public;
// the router gates writes behind the admin role.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// CategoryRoutes mounts the public category reads.
func (h *CatalogHandler) CategoryRoutes(r chi.Router) {
	r.Get("/", h.listCategories)
	r.Get("/{id}", h.getCategory)
}

// CategoryAdminRoutes mounts the admin-gated category writes.
func (h *CatalogHandler) CategoryAdminRoutes(r chi.Router) {
	r.Post("/", h.createCategory)
	r.Put("/{id}", h.updateCategory)
	r.Delete("/{id}", h.deleteCategory)

	r.Post("/{id}/subcategories", h.createSubcategory)
	r.Put("/subcategories/{id}", h.updateSubcategory)
	r.Delete("/subcategories/{id}", h.deleteSubcategory)
}

// ProductRoutes mounts the public product reads.
func (h *CatalogHandler) ProductRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Get("/{id}", h.getProduct)
}

// ProductAdminRoutes mounts the admin-gated product writes.
func (h *CatalogHandler) ProductAdminRoutes(r chi.Router) {
	r.Post("/", h.createProduct)
	r.Put("/{id}", h.updateProduct)
	r.Delete("/{id}", h.deleteProduct)
}

func (h *CatalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"categories": categories})
}

func (h *CatalogHandler) getCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.catalog.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"category": category})
}

func (h *CatalogHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	params, verr := h.categoryParams(w, r)
	if verr {
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusCreated, "Category created successfully", envelope{"category": category})
}

func (h *CatalogHandler) updateCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return
	}
	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	category, err := h.catalog.UpdateCategory(r.Context(), chi.URLParam(r, "id"), service.CategoryParams{
		Name:      r.FormValue("name"),
		ImageData: imageData,
		ImageExt:  imageExt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Category updated successfully", envelope{"category": category})
}

func (h *CatalogHandler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Category deleted successfully", nil)
}

func (h *CatalogHandler) createSubcategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return
	}

	name := r.FormValue("name")
	var v validator
	v.required("name", name, "Subcategory name is required")
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sc, err := h.catalog.CreateSubcategory(r.Context(), service.SubcategoryParams{
		CategoryID: chi.URLParam(r, "id"),
		Name:       name,
		ImageData:  imageData,
		ImageExt:   imageExt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusCreated, "Subcategory created successfully", envelope{"subcategory": sc})
}

func (h *CatalogHandler) updateSubcategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return
	}
	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sc, err := h.catalog.UpdateSubcategory(r.Context(), chi.URLParam(r, "id"), service.SubcategoryParams{
		CategoryID: r.FormValue("category"),
		Name:       r.FormValue("name"),
		ImageData:  imageData,
		ImageExt:   imageExt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Subcategory updated successfully", envelope{"subcategory": sc})
}

func (h *CatalogHandler) deleteSubcategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteSubcategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Subcategory deleted successfully", nil)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), listOptions(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"products": products})
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"product": product})
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	params, bad := h.productParams(w, r, true)
	if bad {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusCreated, "Product created successfully", envelope{"product": product})
}

func (h *CatalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	params, bad := h.productParams(w, r, false)
	if bad {
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Product updated successfully", envelope{"product": product})
}

func (h *CatalogHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Product deleted successfully", nil)
}

// categoryParams parses and validates the multipart category form. The bool
// return reports whether an error response was already written.
func (h *CatalogHandler) categoryParams(w http.ResponseWriter, r *http.Request) (service.CategoryParams, bool) {
	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return service.CategoryParams{}, true
	}

	name := r.FormValue("name")
	var v validator
	v.required("name", name, "Category name is required")
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return service.CategoryParams{}, true
	}

	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return service.CategoryParams{}, true
	}

	return service.CategoryParams{Name: name, ImageData: imageData, ImageExt: imageExt}, false
}

// productParams parses the multipart product form. On create the name, price,
// and category are required; on update absent fields mean "keep current"
// (price -1 signals that to the service).
func (h *CatalogHandler) productParams(w http.ResponseWriter, r *http.Request, create bool) (service.ProductParams, bool) {
	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return service.ProductParams{}, true
	}

	var v validator
	name := r.FormValue("name")
	priceStr := r.FormValue("price")
	stockStr := r.FormValue("stock")
	categoryID := r.FormValue("category")

	if create {
		v.required("name", name, "Product name is required")
		v.required("price", priceStr, "Price is required")
		v.required("category", categoryID, "Category is required")
	}

	priceCents := int64(-1)
	if priceStr != "" {
		p, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || p < 0 {
			v.add("price", "Price must be a non-negative number")
		} else {
			priceCents = int64(p*100 + 0.5)
		}
	}

	stock := -1
	if stockStr != "" {
		n, err := strconv.Atoi(stockStr)
		if err != nil || n < 0 {
			v.add("stock", "Stock must be a non-negative integer")
		} else {
			stock = n
		}
	}
	if create && stock < 0 {
		stock = 0
	}

	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return service.ProductParams{}, true
	}

	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return service.ProductParams{}, true
	}

	return service.ProductParams{
		Name:          name,
		Description:   r.FormValue("description"),
		PriceCents:    priceCents,
		Stock:         stock,
		CategoryID:    categoryID,
		SubcategoryID: r.FormValue("subcategory"),
		ImageData:     imageData,
		ImageExt:      imageExt,
	}, false
}
