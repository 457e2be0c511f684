package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallau/shop-api/internal/model"
)

func allTables() []string {
	return []string{
		"order_items", "orders", "cart_items", "carts",
		"product_tags", "tags", "product_images", "product_sizes",
		"product_ai_jobs", "products", "users",
	}
}

func seedTestProduct(t *testing.T, stock int) *model.Product {
	t.Helper()
	repo := NewProductRepository(testPool)
	product := &model.Product{
		Name: "Shirt", Description: "A shirt",
		Price: decimal.NewFromFloat(29.99),
		Sizes: []model.ProductSize{{Label: "M", Stock: stock}},
	}
	require.NoError(t, repo.Create(context.Background(), product))
	return product
}

func seedTestUser(t *testing.T, email string) *model.User {
	t.Helper()
	repo := NewUserRepository(testPool)
	user := &model.User{
		Email: email, Password: "hashed",
		FirstName: "John", LastName: "Doe", Role: "customer",
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserRepo_CreateAndGetByEmail(t *testing.T) {
	resetTables(t)

	repo := NewUserRepository(testPool)
	ctx := context.Background()

	user := seedTestUser(t, "test@example.com")
	assert.NotEqual(t, uuid.Nil, user.ID)

	found, err := repo.GetByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)
}

func TestProductRepo_CRUDWithSizesAndTags(t *testing.T) {
	resetTables(t)

	repo := NewProductRepository(testPool)
	ctx := context.Background()

	product := seedTestProduct(t, 10)
	assert.NotEqual(t, uuid.Nil, product.ID)

	require.NoError(t, repo.SetTags(ctx, product.ID, []string{"shirt", "cotton"}))

	found, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Sizes, 1)
	assert.Equal(t, 10, found.Sizes[0].Stock)
	require.Len(t, found.Tags, 2)

	product.Name = "Updated"
	require.NoError(t, repo.Update(ctx, product))
	found, _ = repo.GetByID(ctx, product.ID)
	assert.Equal(t, "Updated", found.Name)

	require.NoError(t, repo.Delete(ctx, product.ID))
	found, _ = repo.GetByID(ctx, product.ID)
	assert.Nil(t, found)
}

func TestStockRepo_ReserveAndRestock(t *testing.T) {
	resetTables(t)

	stockRepo := NewStockRepository(testPool)
	productRepo := NewProductRepository(testPool)
	ctx := context.Background()

	product := seedTestProduct(t, 5)
	size := product.Sizes[0]
	items := []StockItem{{ProductID: product.ID, SizeID: size.ID, Quantity: 3}}

	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, stockRepo.ReserveStock(ctx, tx, items))
	require.NoError(t, tx.Commit(ctx))

	found, _ := productRepo.GetByID(ctx, product.ID)
	assert.Equal(t, 2, found.Sizes[0].Stock)

	tx, err = testPool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, stockRepo.RestockItems(ctx, tx, items))
	require.NoError(t, tx.Commit(ctx))

	found, _ = productRepo.GetByID(ctx, product.ID)
	assert.Equal(t, 5, found.Sizes[0].Stock)
}

func TestStockRepo_InsufficientRollsBack(t *testing.T) {
	resetTables(t)

	stockRepo := NewStockRepository(testPool)
	productRepo := NewProductRepository(testPool)
	ctx := context.Background()

	product := seedTestProduct(t, 1)
	size := product.Sizes[0]

	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	err = stockRepo.ReserveStock(ctx, tx, []StockItem{
		{ProductID: product.ID, SizeID: size.ID, Quantity: 2},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)
	require.NoError(t, tx.Rollback(ctx))

	found, _ := productRepo.GetByID(ctx, product.ID)
	assert.Equal(t, 1, found.Sizes[0].Stock)
}

func TestStockRepo_ConcurrentReserveSingleWinner(t *testing.T) {
	resetTables(t)

	stockRepo := NewStockRepository(testPool)
	productRepo := NewProductRepository(testPool)
	ctx := context.Background()

	product := seedTestProduct(t, 1)
	size := product.Sizes[0]
	items := []StockItem{{ProductID: product.ID, SizeID: size.ID, Quantity: 1}}

	// Two overlapping transactions race for the last unit. FOR UPDATE
	// serializes them on the SKU row: the loser re-reads after the winner's
	// commit and must see stock 0.
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := testPool.Begin(ctx)
			if err != nil {
				results[i] = err
				return
			}
			if err := stockRepo.ReserveStock(ctx, tx, items); err != nil {
				_ = tx.Rollback(ctx)
				results[i] = err
				return
			}
			results[i] = tx.Commit(ctx)
		}(i)
	}
	wg.Wait()

	var won, short int
	for _, err := range results {
		var stockErr *InsufficientStockError
		switch {
		case err == nil:
			won++
		case errors.As(err, &stockErr):
			assert.Equal(t, 0, stockErr.Available)
			short++
		default:
			t.Fatalf("unexpected reservation error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, short)

	found, err := productRepo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.Sizes[0].Stock)
}

func TestStockRepo_UnknownSizeReportsZeroAvailable(t *testing.T) {
	resetTables(t)

	stockRepo := NewStockRepository(testPool)
	ctx := context.Background()

	tx, err := testPool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	err = stockRepo.ReserveStock(ctx, tx, []StockItem{
		{ProductID: uuid.New(), SizeID: uuid.New(), Quantity: 1},
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 0, stockErr.Available)
}

func TestOrderRepo_InsertLockUpdateDelete(t *testing.T) {
	resetTables(t)

	orderRepo := NewOrderRepository(testPool)
	ctx := context.Background()

	user := seedTestUser(t, "order@example.com")
	product := seedTestProduct(t, 10)
	size := product.Sizes[0]

	tx, err := orderRepo.BeginTx(ctx)
	require.NoError(t, err)

	order := &model.Order{UserID: user.ID, Status: model.OrderStatusOrdered}
	require.NoError(t, orderRepo.Insert(ctx, tx, order))
	require.NoError(t, orderRepo.InsertItems(ctx, tx, order.ID, []model.OrderItem{
		{ProductID: product.ID, SizeID: size.ID, Quantity: 2, Price: product.Price},
	}))
	require.NoError(t, tx.Commit(ctx))

	found, err := orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Shirt", found.Items[0].ProductName)
	assert.Equal(t, "M", found.Items[0].SizeLabel)

	tx, err = orderRepo.BeginTx(ctx)
	require.NoError(t, err)
	status, ownerID, err := orderRepo.LockStatus(ctx, tx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusOrdered, status)
	assert.Equal(t, user.ID, ownerID)
	require.NoError(t, orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid))
	require.NoError(t, tx.Commit(ctx))

	found, _ = orderRepo.GetByID(ctx, order.ID)
	assert.Equal(t, model.OrderStatusPaid, found.Status)

	tx, err = orderRepo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, orderRepo.Delete(ctx, tx, order.ID))
	require.NoError(t, tx.Commit(ctx))

	found, err = orderRepo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestAiJobRepo_GuardedUpdates(t *testing.T) {
	resetTables(t)

	repo := NewAiJobRepository(testPool)
	ctx := context.Background()

	job := &model.ProductAiJob{
		ImagePaths: []string{"a.jpg"},
		Price:      decimal.NewFromFloat(19.99),
		Status:     model.AiJobStatusPending,
	}
	require.NoError(t, repo.Create(ctx, job))

	took, err := repo.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, took)

	took, err = repo.MarkSuccess(ctx, job.ID, "Title", "Desc one. Desc two.", []string{"shirt"})
	require.NoError(t, err)
	assert.True(t, took)

	// SUCCESS is terminal: no later write may take effect.
	took, err = repo.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, took)

	took, err = repo.MarkFailed(ctx, job.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, took)

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AiJobStatusSuccess, found.Status)
	assert.Equal(t, "Title", found.ResultDisplayName)
	assert.Empty(t, found.ErrorMessage)
}

func TestAiJobRepo_ListOpenAndDelete(t *testing.T) {
	resetTables(t)

	repo := NewAiJobRepository(testPool)
	ctx := context.Background()

	open := &model.ProductAiJob{
		ImagePaths: []string{"a.jpg"}, Price: decimal.NewFromFloat(10), Status: model.AiJobStatusPending,
	}
	require.NoError(t, repo.Create(ctx, open))

	product := seedTestProduct(t, 1)
	converted := &model.ProductAiJob{
		ProductID:  &product.ID,
		ImagePaths: []string{"b.jpg"}, Price: decimal.NewFromFloat(10), Status: model.AiJobStatusSuccess,
	}
	require.NoError(t, repo.Create(ctx, converted))

	jobs, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, open.ID, jobs[0].ID)

	require.NoError(t, repo.Delete(ctx, open.ID))
	err = repo.Delete(ctx, open.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
