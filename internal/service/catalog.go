package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
	"github.com/volfir1/gadget-galaxy-api/internal/upload"
)

// CatalogService manages categories, subcategories, and products.
type CatalogService struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	images     upload.Store
	logger     *slog.Logger
}

func NewCatalogService(
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	images upload.Store,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{categories: categories, products: products, images: images, logger: logger}
}

// CategoryParams is the validated category input. Image bytes are optional.
type CategoryParams struct {
	Name      string
	ImageData []byte
	ImageExt  string
}

func (s *CatalogService) CreateCategory(ctx context.Context, p CategoryParams) (*model.Category, error) {
	image, err := s.storeImage(ctx, "category", p.ImageData, p.ImageExt, model.Image{})
	if err != nil {
		return nil, err
	}

	c := &model.Category{Name: p.Name, Image: image}
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("service/catalog: creating category: %w", err)
	}
	s.logger.Info("category created", slog.String("categoryID", c.ID))
	return c, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return s.categories.GetCategoryByID(ctx, id)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.categories.ListCategories(ctx)
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id string, p CategoryParams) (*model.Category, error) {
	c, err := s.categories.GetCategoryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != "" {
		c.Name = p.Name
	}
	c.Image, err = s.storeImage(ctx, "category", p.ImageData, p.ImageExt, c.Image)
	if err != nil {
		return nil, err
	}

	if err := s.categories.UpdateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("service/catalog: updating category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes the category and, by cascade, its subcategories.
// The foreign key on products blocks the delete while products still
// reference it; the console recategorizes them first.
func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logger.Info("category deleted", slog.String("categoryID", id))
	return nil
}

// SubcategoryParams is the validated subcategory input.
type SubcategoryParams struct {
	CategoryID string
	Name       string
	ImageData  []byte
	ImageExt   string
}

func (s *CatalogService) CreateSubcategory(ctx context.Context, p SubcategoryParams) (*model.Subcategory, error) {
	// The parent must exist; the foreign key would catch it anyway but this
	// yields a proper 404 instead of a constraint error.
	if _, err := s.categories.GetCategoryByID(ctx, p.CategoryID); err != nil {
		return nil, err
	}

	image, err := s.storeImage(ctx, "subcategory", p.ImageData, p.ImageExt, model.Image{})
	if err != nil {
		return nil, err
	}

	sc := &model.Subcategory{CategoryID: p.CategoryID, Name: p.Name, Image: image}
	if err := s.categories.CreateSubcategory(ctx, sc); err != nil {
		return nil, fmt.Errorf("service/catalog: creating subcategory: %w", err)
	}
	s.logger.Info("subcategory created",
		slog.String("subcategoryID", sc.ID), slog.String("categoryID", p.CategoryID))
	return sc, nil
}

func (s *CatalogService) GetSubcategory(ctx context.Context, id string) (*model.Subcategory, error) {
	return s.categories.GetSubcategoryByID(ctx, id)
}

func (s *CatalogService) UpdateSubcategory(ctx context.Context, id string, p SubcategoryParams) (*model.Subcategory, error) {
	sc, err := s.categories.GetSubcategoryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != "" {
		sc.Name = p.Name
	}
	if p.CategoryID != "" && p.CategoryID != sc.CategoryID {
		if _, err := s.categories.GetCategoryByID(ctx, p.CategoryID); err != nil {
			return nil, err
		}
		sc.CategoryID = p.CategoryID
	}
	sc.Image, err = s.storeImage(ctx, "subcategory", p.ImageData, p.ImageExt, sc.Image)
	if err != nil {
		return nil, err
	}

	if err := s.categories.UpdateSubcategory(ctx, sc); err != nil {
		return nil, fmt.Errorf("service/catalog: updating subcategory: %w", err)
	}
	return sc, nil
}

func (s *CatalogService) DeleteSubcategory(ctx context.Context, id string) error {
	return s.categories.DeleteSubcategory(ctx, id)
}

// ProductParams is the validated product input. PriceCents < 0 means "keep
// the current price" on update.
type ProductParams struct {
	Name          string
	Description   string
	PriceCents    int64
	Stock         int
	CategoryID    string
	SubcategoryID string
	ImageData     []byte
	ImageExt      string
}

func (s *CatalogService) CreateProduct(ctx context.Context, p ProductParams) (*model.Product, error) {
	if p.PriceCents < 0 {
		return nil, apperror.ValidationFailed("price", "Price must not be negative")
	}
	if _, err := s.categories.GetCategoryByID(ctx, p.CategoryID); err != nil {
		return nil, err
	}
	if p.SubcategoryID != "" {
		sc, err := s.categories.GetSubcategoryByID(ctx, p.SubcategoryID)
		if err != nil {
			return nil, err
		}
		if sc.CategoryID != p.CategoryID {
			return nil, apperror.ValidationFailed("subcategory",
				"Subcategory does not belong to the selected category")
		}
	}

	image, err := s.storeImage(ctx, "product", p.ImageData, p.ImageExt, model.Image{})
	if err != nil {
		return nil, err
	}

	prod := &model.Product{
		Name:          p.Name,
		Description:   p.Description,
		PriceCents:    p.PriceCents,
		Stock:         p.Stock,
		CategoryID:    p.CategoryID,
		SubcategoryID: p.SubcategoryID,
		Image:         image,
		IsActive:      true,
	}
	if err := s.products.CreateProduct(ctx, prod); err != nil {
		return nil, fmt.Errorf("service/catalog: creating product: %w", err)
	}
	s.logger.Info("product created", slog.String("productID", prod.ID))
	return prod, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return s.products.GetProductByID(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context, opts repository.ListOptions) ([]model.Product, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.products.ListProducts(ctx, opts)
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, p ProductParams) (*model.Product, error) {
	prod, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != "" {
		prod.Name = p.Name
	}
	if p.Description != "" {
		prod.Description = p.Description
	}
	if p.PriceCents >= 0 {
		prod.PriceCents = p.PriceCents
	}
	if p.Stock >= 0 {
		prod.Stock = p.Stock
	}
	if p.CategoryID != "" {
		if _, err := s.categories.GetCategoryByID(ctx, p.CategoryID); err != nil {
			return nil, err
		}
		prod.CategoryID = p.CategoryID
	}
	if p.SubcategoryID != "" {
		sc, err := s.categories.GetSubcategoryByID(ctx, p.SubcategoryID)
		if err != nil {
			return nil, err
		}
		if sc.CategoryID != prod.CategoryID {
			return nil, apperror.ValidationFailed("subcategory",
				"Subcategory does not belong to the selected category")
		}
		prod.SubcategoryID = p.SubcategoryID
	}
	prod.Image, err = s.storeImage(ctx, "product", p.ImageData, p.ImageExt, prod.Image)
	if err != nil {
		return nil, err
	}

	if err := s.products.UpdateProduct(ctx, prod); err != nil {
		return nil, fmt.Errorf("service/catalog: updating product: %w", err)
	}
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", slog.String("productID", id))
	return nil
}

// storeImage uploads new image bytes if present, otherwise keeps current.
// Catalog uploads are not best-effort like avatars: a failed upload fails
// the operation, since a product without its picture is not useful.
func (s *CatalogService) storeImage(ctx context.Context, kind string, data []byte, ext string, current model.Image) (model.Image, error) {
	if len(data) == 0 {
		return current, nil
	}
	stored, err := s.images.Put(ctx, data, kind, ext)
	if err != nil {
		return model.Image{}, fmt.Errorf("service/catalog: storing %s image: %w", kind, err)
	}
	return stored, nil
}
