package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wallau/shop-api/internal/model"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, limit, offset int, search, sort, order string) ([]model.Product, int, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	// GetPrices resolves current catalog prices inside the caller's
	// transaction so the order's price snapshot is consistent with its
	// stock reservation.
	GetPrices(ctx context.Context, tx pgx.Tx, productIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	AddSize(ctx context.Context, size *model.ProductSize) error
	SetStock(ctx context.Context, sizeID uuid.UUID, stock int) error
	AddImage(ctx context.Context, image *model.ProductImage) error
	DeleteImage(ctx context.Context, imageID uuid.UUID) (string, error)
	SetTags(ctx context.Context, productID uuid.UUID, tags []string) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, name, description, price, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	for i := range product.Sizes {
		product.Sizes[i].ID = uuid.New()
		product.Sizes[i].ProductID = product.ID
		_, err := r.pool.Exec(ctx,
			`INSERT INTO product_sizes (id, product_id, label, stock) VALUES ($1, $2, $3, $4)`,
			product.Sizes[i].ID, product.ID, product.Sizes[i].Label, product.Sizes[i].Stock,
		)
		if err != nil {
			return fmt.Errorf("create product size: %w", err)
		}
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p := &model.Product{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, price, created_at, updated_at FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	if err := r.loadSizes(ctx, p); err != nil {
		return nil, err
	}
	if err := r.loadImages(ctx, p); err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProductRepo) loadSizes(ctx context.Context, p *model.Product) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, label, stock FROM product_sizes WHERE product_id = $1 ORDER BY label`, p.ID,
	)
	if err != nil {
		return fmt.Errorf("get product sizes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s model.ProductSize
		if err := rows.Scan(&s.ID, &s.ProductID, &s.Label, &s.Stock); err != nil {
			return fmt.Errorf("scan product size: %w", err)
		}
		p.Sizes = append(p.Sizes, s)
	}
	return rows.Err()
}

func (r *pgProductRepo) loadImages(ctx context.Context, p *model.Product) error {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, path, position FROM product_images WHERE product_id = $1 ORDER BY position`, p.ID,
	)
	if err != nil {
		return fmt.Errorf("get product images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var img model.ProductImage
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Path, &img.Position); err != nil {
			return fmt.Errorf("scan product image: %w", err)
		}
		p.Images = append(p.Images, img)
	}
	return rows.Err()
}

func (r *pgProductRepo) loadTags(ctx context.Context, p *model.Product) error {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.name FROM tags t
		 JOIN product_tags pt ON pt.tag_id = t.id
		 WHERE pt.product_id = $1 ORDER BY t.name`, p.ID,
	)
	if err != nil {
		return fmt.Errorf("get product tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		p.Tags = append(p.Tags, t)
	}
	return rows.Err()
}

func (r *pgProductRepo) List(ctx context.Context, limit, offset int, search, sort, order string) ([]model.Product, int, error) {
	allowedSorts := map[string]bool{"name": true, "price": true, "created_at": true}
	if !allowedSorts[sort] {
		sort = "created_at"
	}
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	var total int
	countQ := `SELECT COUNT(*) FROM products WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')`
	if err := r.pool.QueryRow(ctx, countQ, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, name, description, price, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR name ILIKE '%%' || $1 || '%%' OR description ILIKE '%%' || $1 || '%%')
		ORDER BY %s %s LIMIT $2 OFFSET $3`, sort, order)

	rows, err := r.pool.Query(ctx, query, search, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range products {
		if err := r.loadSizes(ctx, &products[i]); err != nil {
			return nil, 0, err
		}
		if err := r.loadImages(ctx, &products[i]); err != nil {
			return nil, 0, err
		}
		if err := r.loadTags(ctx, &products[i]); err != nil {
			return nil, 0, err
		}
	}
	return products, total, nil
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	query := `UPDATE products SET name=$2, description=$3, price=$4, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Price,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgProductRepo) GetPrices(ctx context.Context, tx pgx.Tx, productIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, `SELECT id, price FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[uuid.UUID]decimal.Decimal, len(productIDs))
	for rows.Next() {
		var id uuid.UUID
		var price decimal.Decimal
		if err := rows.Scan(&id, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices[id] = price
	}
	return prices, rows.Err()
}

func (r *pgProductRepo) AddSize(ctx context.Context, size *model.ProductSize) error {
	size.ID = uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO product_sizes (id, product_id, label, stock) VALUES ($1, $2, $3, $4)`,
		size.ID, size.ProductID, size.Label, size.Stock,
	)
	if err != nil {
		return fmt.Errorf("add size: %w", err)
	}
	return nil
}

func (r *pgProductRepo) SetStock(ctx context.Context, sizeID uuid.UUID, stock int) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE product_sizes SET stock = $2 WHERE id = $1`, sizeID, stock,
	)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgProductRepo) AddImage(ctx context.Context, image *model.ProductImage) error {
	image.ID = uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO product_images (id, product_id, path, position) VALUES ($1, $2, $3, $4)`,
		image.ID, image.ProductID, image.Path, image.Position,
	)
	if err != nil {
		return fmt.Errorf("add image: %w", err)
	}
	return nil
}

func (r *pgProductRepo) DeleteImage(ctx context.Context, imageID uuid.UUID) (string, error) {
	var path string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM product_images WHERE id = $1 RETURNING path`, imageID,
	).Scan(&path)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", pgx.ErrNoRows
		}
		return "", fmt.Errorf("delete image: %w", err)
	}
	return path, nil
}

func (r *pgProductRepo) SetTags(ctx context.Context, productID uuid.UUID, tags []string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM product_tags WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("clear product tags: %w", err)
	}
	for _, name := range tags {
		var tagID uuid.UUID
		err := r.pool.QueryRow(ctx,
			`INSERT INTO tags (id, name) VALUES ($1, $2)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			uuid.New(), name,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag: %w", err)
		}
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO product_tags (product_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			productID, tagID,
		); err != nil {
			return fmt.Errorf("link tag: %w", err)
		}
	}
	return nil
}
