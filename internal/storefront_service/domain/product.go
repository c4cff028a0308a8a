package domain

import "time"

// Product is the public catalog record as returned by the backend.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Discount    float64  `json:"discount,omitempty"`
	Images      []string `json:"images,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Sizes       []string `json:"sizes,omitempty"`
	CategoryID  string   `json:"category_id,omitempty"`
	Stock       int      `json:"stock"`
}

// Cover returns the first image, if any.
func (p Product) Cover() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// EnrichmentAt converts product display fields into cart enrichment.
func (p Product) EnrichmentAt(at time.Time) Enrichment {
	return Enrichment{
		Name:       p.Name,
		Price:      p.Price,
		Image:      p.Cover(),
		Discount:   p.Discount,
		Slug:       p.Slug,
		EnrichedAt: at,
	}
}

type ProductList struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
}

type ProductQuery struct {
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
}

type OrderLine struct {
	ProductID string  `json:"product_id"`
	Color     string  `json:"color"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

type Order struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Items     []OrderLine `json:"items"`
	Total     float64     `json:"total"`
	Address   string      `json:"address,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type CreateOrderInput struct {
	Items   []OrderLine `json:"items"`
	Address string      `json:"address"`
	Note    string      `json:"note,omitempty"`
}
