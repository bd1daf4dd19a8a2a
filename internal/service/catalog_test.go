package service

import (
	"context"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
)

type fakeCatalogRepo struct {
	categories    map[string]*model.Category
	subcategories map[string]*model.Subcategory
	products      map[string]*model.Product
	nextID        int
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		categories:    make(map[string]*model.Category),
		subcategories: make(map[string]*model.Subcategory),
		products:      make(map[string]*model.Product),
	}
}

func (r *fakeCatalogRepo) id() string {
	r.nextID++
	return "id-" + strconv.Itoa(r.nextID)
}

func (r *fakeCatalogRepo) CreateCategory(_ context.Context, c *model.Category) error {
	c.ID = r.id()
	cp := *c
	r.categories[c.ID] = &cp
	return nil
}

func (r *fakeCatalogRepo) GetCategoryByID(_ context.Context, id string) (*model.Category, error) {
	c, found := r.categories[id]
	if !found {
		return nil, apperror.NotFound("Category", id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCatalogRepo) ListCategories(_ context.Context) ([]model.Category, error) {
	out := make([]model.Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeCatalogRepo) UpdateCategory(_ context.Context, c *model.Category) error {
	if _, found := r.categories[c.ID]; !found {
		return apperror.NotFound("Category", c.ID)
	}
	cp := *c
	r.categories[c.ID] = &cp
	return nil
}

func (r *fakeCatalogRepo) DeleteCategory(_ context.Context, id string) error {
	if _, found := r.categories[id]; !found {
		return apperror.NotFound("Category", id)
	}
	delete(r.categories, id)
	return nil
}

func (r *fakeCatalogRepo) CreateSubcategory(_ context.Context, s *model.Subcategory) error {
	s.ID = r.id()
	cp := *s
	r.subcategories[s.ID] = &cp
	return nil
}

func (r *fakeCatalogRepo) GetSubcategoryByID(_ context.Context, id string) (*model.Subcategory, error) {
	s, found := r.subcategories[id]
	if !found {
		return nil, apperror.NotFound("Subcategory", id)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeCatalogRepo) UpdateSubcategory(_ context.Context, s *model.Subcategory) error {
	if _, found := r.subcategories[s.ID]; !found {
		return apperror.NotFound("Subcategory", s.ID)
	}
	cp := *s
	r.subcategories[s.ID] = &cp
	return nil
}

func (r *fakeCatalogRepo) DeleteSubcategory(_ context.Context, id string) error {
	delete(r.subcategories, id)
	return nil
}

func (r *fakeCatalogRepo) CreateProduct(_ context.Context, p *model.Product) error {
	p.ID = r.id()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeCatalogRepo) GetProductByID(_ context.Context, id string) (*model.Product, error) {
	p, found := r.products[id]
	if !found {
		return nil, apperror.NotFound("Product", id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeCatalogRepo) ListProducts(_ context.Context, opts repository.ListOptions) ([]model.Product, error) {
	out := make([]model.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *fakeCatalogRepo) UpdateProduct(_ context.Context, p *model.Product) error {
	if _, found := r.products[p.ID]; !found {
		return apperror.NotFound("Product", p.ID)
	}
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeCatalogRepo) DeleteProduct(_ context.Context, id string) error {
	if _, found := r.products[id]; !found {
		return apperror.NotFound("Product", id)
	}
	delete(r.products, id)
	return nil
}

func newCatalogFixture() (*CatalogService, *fakeCatalogRepo, *fakeStore) {
	repo := newFakeCatalogRepo()
	store := &fakeStore{}
	svc := NewCatalogService(repo, repo, store, slog.New(slog.DiscardHandler))
	return svc, repo, store
}

func TestCatalogService_CreateProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture()

	cat, err := svc.CreateCategory(ctx, CategoryParams{Name: "Phones"})
	require.NoError(t, err)
	sub, err := svc.CreateSubcategory(ctx, SubcategoryParams{CategoryID: cat.ID, Name: "Android"})
	require.NoError(t, err)

	prod, err := svc.CreateProduct(ctx, ProductParams{
		Name:          "Pixel 9",
		PriceCents:    79900,
		Stock:         12,
		CategoryID:    cat.ID,
		SubcategoryID: sub.ID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, prod.ID)
	assert.True(t, prod.IsActive)
	assert.Equal(t, int64(79900), prod.PriceCents)
}

func TestCatalogService_CreateProduct_UnknownCategory(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	_, err := svc.CreateProduct(context.Background(), ProductParams{
		Name: "Orphan", PriceCents: 100, CategoryID: "nope",
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCatalogService_CreateProduct_SubcategoryMismatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture()

	phones, err := svc.CreateCategory(ctx, CategoryParams{Name: "Phones"})
	require.NoError(t, err)
	laptops, err := svc.CreateCategory(ctx, CategoryParams{Name: "Laptops"})
	require.NoError(t, err)
	gaming, err := svc.CreateSubcategory(ctx, SubcategoryParams{CategoryID: laptops.ID, Name: "Gaming"})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, ProductParams{
		Name: "Mismatched", PriceCents: 100,
		CategoryID: phones.ID, SubcategoryID: gaming.ID,
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCatalogService_UpdateProduct_KeepCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture()

	cat, err := svc.CreateCategory(ctx, CategoryParams{Name: "Phones"})
	require.NoError(t, err)
	prod, err := svc.CreateProduct(ctx, ProductParams{
		Name: "Pixel 9", Description: "flagship", PriceCents: 79900, Stock: 12, CategoryID: cat.ID,
	})
	require.NoError(t, err)

	// Empty name/description and negative price/stock mean "keep current".
	updated, err := svc.UpdateProduct(ctx, prod.ID, ProductParams{PriceCents: -1, Stock: -1})
	require.NoError(t, err)
	assert.Equal(t, "Pixel 9", updated.Name)
	assert.Equal(t, "flagship", updated.Description)
	assert.Equal(t, int64(79900), updated.PriceCents)
	assert.Equal(t, 12, updated.Stock)

	updated, err = svc.UpdateProduct(ctx, prod.ID, ProductParams{PriceCents: 0, Stock: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.PriceCents)
	assert.Equal(t, 0, updated.Stock)
}

func TestCatalogService_UpdateSubcategory_MoveToCategory(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture()

	phones, err := svc.CreateCategory(ctx, CategoryParams{Name: "Phones"})
	require.NoError(t, err)
	laptops, err := svc.CreateCategory(ctx, CategoryParams{Name: "Laptops"})
	require.NoError(t, err)
	sub, err := svc.CreateSubcategory(ctx, SubcategoryParams{CategoryID: phones.ID, Name: "Budget"})
	require.NoError(t, err)

	moved, err := svc.UpdateSubcategory(ctx, sub.ID, SubcategoryParams{CategoryID: laptops.ID})
	require.NoError(t, err)
	assert.Equal(t, laptops.ID, moved.CategoryID)
	assert.Equal(t, "Budget", moved.Name)

	_, err = svc.UpdateSubcategory(ctx, sub.ID, SubcategoryParams{CategoryID: "nope"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCatalogService_ImageUploadFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newCatalogFixture()

	cat, err := svc.CreateCategory(ctx, CategoryParams{Name: "Phones"})
	require.NoError(t, err)

	store.fail = true
	_, err = svc.CreateProduct(ctx, ProductParams{
		Name: "Pixel 9", PriceCents: 79900, CategoryID: cat.ID,
		ImageData: []byte("png bytes"), ImageExt: ".png",
	})
	require.Error(t, err)
}

func TestCatalogService_ListProducts_ClampsLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture()

	cat, err := svc.CreateCategory(ctx, CategoryParams{Name: "Phones"})
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		_, err := svc.CreateProduct(ctx, ProductParams{
			Name: "P" + strconv.Itoa(i), PriceCents: 100, CategoryID: cat.ID,
		})
		require.NoError(t, err)
	}

	products, err := svc.ListProducts(ctx, repository.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, products, 20)
}
