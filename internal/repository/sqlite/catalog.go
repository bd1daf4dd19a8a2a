package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
)

var (
	_ repository.CategoryRepository = (*DB)(nil)
	_ repository.ProductRepository  = (*DB)(nil)
)

func (db *DB) CreateCategory(ctx context.Context, c *model.Category) error {
	now := time.Now()
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO categories (id, name, image_public_id, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Image.PublicID, c.Image.URL, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateKey("Category name is already in use")
		}
		return fmt.Errorf("sqlite: inserting category: %w", err)
	}
	return nil
}

func (db *DB) GetCategoryByID(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, image_public_id, image_url, created_at, updated_at
		 FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Image.PublicID, &c.Image.URL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("category", id)
		}
		return nil, fmt.Errorf("sqlite: getting category %s: %w", id, err)
	}

	subs, err := db.listSubcategories(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Subcategories = subs
	return &c, nil
}

func (db *DB) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, image_public_id, image_url, created_at, updated_at
		 FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Image.PublicID, &c.Image.URL,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category row: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cats {
		subs, err := db.listSubcategories(ctx, cats[i].ID)
		if err != nil {
			return nil, err
		}
		cats[i].Subcategories = subs
	}
	return cats, nil
}

func (db *DB) UpdateCategory(ctx context.Context, c *model.Category) error {
	c.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE categories SET name = ?, image_public_id = ?, image_url = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Image.PublicID, c.Image.URL, c.UpdatedAt, c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateKey("Category name is already in use")
		}
		return fmt.Errorf("sqlite: updating category %s: %w", c.ID, err)
	}
	return requireRow(res, "category", c.ID)
}

// DeleteCategory removes the category and, via ON DELETE CASCADE, its
// subcategories. Products referencing it block the delete (foreign key).
func (db *DB) DeleteCategory(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting category %s: %w", id, err)
	}
	return requireRow(res, "category", id)
}

func (db *DB) CreateSubcategory(ctx context.Context, s *model.Subcategory) error {
	now := time.Now()
	if s.ID == "" {
		s.ID = xid.New().String()
	}
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO subcategories (id, category_id, name, image_public_id, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CategoryID, s.Name, s.Image.PublicID, s.Image.URL, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting subcategory: %w", err)
	}
	return nil
}

func (db *DB) GetSubcategoryByID(ctx context.Context, id string) (*model.Subcategory, error) {
	var s model.Subcategory
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, category_id, name, image_public_id, image_url, created_at, updated_at
		 FROM subcategories WHERE id = ?`, id,
	).Scan(&s.ID, &s.CategoryID, &s.Name, &s.Image.PublicID, &s.Image.URL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("subcategory", id)
		}
		return nil, fmt.Errorf("sqlite: getting subcategory %s: %w", id, err)
	}
	return &s, nil
}

func (db *DB) UpdateSubcategory(ctx context.Context, s *model.Subcategory) error {
	s.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE subcategories SET category_id = ?, name = ?, image_public_id = ?,
			image_url = ?, updated_at = ?
		 WHERE id = ?`,
		s.CategoryID, s.Name, s.Image.PublicID, s.Image.URL, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating subcategory %s: %w", s.ID, err)
	}
	return requireRow(res, "subcategory", s.ID)
}

func (db *DB) DeleteSubcategory(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM subcategories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting subcategory %s: %w", id, err)
	}
	return requireRow(res, "subcategory", id)
}

func (db *DB) listSubcategories(ctx context.Context, categoryID string) ([]model.Subcategory, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, category_id, name, image_public_id, image_url, created_at, updated_at
		 FROM subcategories WHERE category_id = ? ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subcategories: %w", err)
	}
	defer rows.Close()

	var subs []model.Subcategory
	for rows.Next() {
		var s model.Subcategory
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name, &s.Image.PublicID, &s.Image.URL,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning subcategory row: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (db *DB) CreateProduct(ctx context.Context, p *model.Product) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = xid.New().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price_cents, stock,
			category_id, subcategory_id, image_public_id, image_url, is_active,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Stock,
		p.CategoryID, nullStr(p.SubcategoryID), p.Image.PublicID, p.Image.URL, p.IsActive,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting product: %w", err)
	}
	return nil
}

func (db *DB) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, description, price_cents, stock, category_id,
			subcategory_id, image_public_id, image_url, is_active, created_at, updated_at
		 FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("product", id)
		}
		return nil, fmt.Errorf("sqlite: getting product %s: %w", id, err)
	}
	return p, nil
}

func (db *DB) ListProducts(ctx context.Context, opts repository.ListOptions) ([]model.Product, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, price_cents, stock, category_id,
			subcategory_id, image_public_id, image_url, is_active, created_at, updated_at
		 FROM products ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning product row: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (db *DB) UpdateProduct(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE products SET name = ?, description = ?, price_cents = ?, stock = ?,
			category_id = ?, subcategory_id = ?, image_public_id = ?, image_url = ?,
			is_active = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, p.PriceCents, p.Stock,
		p.CategoryID, nullStr(p.SubcategoryID), p.Image.PublicID, p.Image.URL,
		p.IsActive, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating product %s: %w", p.ID, err)
	}
	return requireRow(res, "product", p.ID)
}

func (db *DB) DeleteProduct(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting product %s: %w", id, err)
	}
	return requireRow(res, "product", id)
}

func scanProduct(row scanner) (*model.Product, error) {
	var (
		p      model.Product
		subcat sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock,
		&p.CategoryID, &subcat, &p.Image.PublicID, &p.Image.URL, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.SubcategoryID = subcat.String
	return &p, nil
}
