package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockItem addresses one SKU position: a (product, size) pair.
type StockItem struct {
	ProductID uuid.UUID
	SizeID    uuid.UUID
	Quantity  int
}

// InsufficientStockError is a business-level error, not a transport failure.
// Handlers surface it as a 200 response with a structured code so the
// storefront can adjust the cart instead of treating it as a hard failure.
type InsufficientStockError struct {
	ProductID uuid.UUID
	SizeID    uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s size %s: available %d, requested %d",
		e.ProductID, e.SizeID, e.Available, e.Requested)
}

type StockRepository interface {
	// ReserveStock locks each SKU row and decrements it inside the caller's
	// transaction. Callers must aggregate duplicate (product, size) pairs
	// first: taking the same row lock twice in one transaction would
	// self-deadlock, and the availability check must see the combined
	// quantity.
	ReserveStock(ctx context.Context, tx pgx.Tx, items []StockItem) error
	// RestockItems adds quantities back. It never fails on a missing row
	// count mismatch; it is the compensating action for cancel/delete.
	RestockItems(ctx context.Context, tx pgx.Tx, items []StockItem) error
}

type pgStockRepo struct{ pool *pgxpool.Pool }

func NewStockRepository(pool *pgxpool.Pool) StockRepository {
	return &pgStockRepo{pool: pool}
}

func (r *pgStockRepo) ReserveStock(ctx context.Context, tx pgx.Tx, items []StockItem) error {
	for _, item := range items {
		var available int
		err := tx.QueryRow(ctx,
			`SELECT stock FROM product_sizes WHERE product_id = $1 AND id = $2 FOR UPDATE`,
			item.ProductID, item.SizeID,
		).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &InsufficientStockError{
					ProductID: item.ProductID, SizeID: item.SizeID,
					Available: 0, Requested: item.Quantity,
				}
			}
			return fmt.Errorf("lock stock row: %w", err)
		}

		if available < item.Quantity {
			return &InsufficientStockError{
				ProductID: item.ProductID, SizeID: item.SizeID,
				Available: available, Requested: item.Quantity,
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE product_sizes SET stock = stock - $3 WHERE product_id = $1 AND id = $2`,
			item.ProductID, item.SizeID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
	}
	return nil
}

func (r *pgStockRepo) RestockItems(ctx context.Context, tx pgx.Tx, items []StockItem) error {
	for _, item := range items {
		_, err := tx.Exec(ctx,
			`UPDATE product_sizes SET stock = stock + $3 WHERE product_id = $1 AND id = $2`,
			item.ProductID, item.SizeID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("restock: %w", err)
		}
	}
	return nil
}
