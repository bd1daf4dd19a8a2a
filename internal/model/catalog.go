package model

import "time"

// Category groups products. Subcategories live under a category and are
// referenced by products alongside their parent.
type Category struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Image     Image     `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Populated on reads; not written through the category itself.
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

type Subcategory struct {
	ID         string    `json:"_id"`
	CategoryID string    `json:"category"`
	Name       string    `json:"name"`
	Image      Image     `json:"image"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Product is a catalog entry managed through the admin console.
// Price is stored in cents to avoid floating-point drift.
type Product struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	PriceCents    int64     `json:"priceCents"`
	Stock         int       `json:"stock"`
	CategoryID    string    `json:"category"`
	SubcategoryID string    `json:"subcategory,omitempty"`
	Image         Image     `json:"image"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
