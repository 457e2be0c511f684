package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallau/shop-api/internal/model"
)

type mockCartRepo struct {
	carts map[uuid.UUID]*model.Cart
	items map[uuid.UUID]*model.CartItem
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{
		carts: make(map[uuid.UUID]*model.Cart),
		items: make(map[uuid.UUID]*model.CartItem),
	}
}

func (m *mockCartRepo) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	for _, cart := range m.carts {
		if cart.UserID == userID {
			return cart, nil
		}
	}
	cart := &model.Cart{ID: uuid.New(), UserID: userID}
	m.carts[cart.ID] = cart
	return cart, nil
}

func (m *mockCartRepo) GetCartWithItems(_ context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, nil
	}
	cp := *cart
	cp.Items = nil
	for _, item := range m.items {
		if item.CartID == cartID {
			cp.Items = append(cp.Items, *item)
		}
	}
	return &cp, nil
}

func (m *mockCartRepo) AddItem(_ context.Context, item *model.CartItem) error {
	for _, existing := range m.items {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID && existing.SizeID == item.SizeID {
			existing.Quantity += item.Quantity
			return nil
		}
	}
	item.ID = uuid.New()
	m.items[item.ID] = item
	return nil
}

func (m *mockCartRepo) UpdateItem(_ context.Context, item *model.CartItem) error {
	if existing, ok := m.items[item.ID]; ok {
		existing.Quantity = item.Quantity
	}
	return nil
}

func (m *mockCartRepo) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	delete(m.items, itemID)
	return nil
}

func (m *mockCartRepo) ClearCart(_ context.Context, cartID uuid.UUID) error {
	for id, item := range m.items {
		if item.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func TestCartService_AddItem_MergesSameSize(t *testing.T) {
	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo()
	product, size := seedProduct(productRepo, decimal.NewFromInt(10), 5)

	svc := NewCartService(cartRepo, productRepo)
	userID := uuid.New()

	require.NoError(t, svc.AddItem(context.Background(), userID, product.ID, size.ID, 1))
	require.NoError(t, svc.AddItem(context.Background(), userID, product.ID, size.ID, 2))

	cart, err := svc.GetCart(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestCartService_AddItem_UnknownProduct(t *testing.T) {
	svc := NewCartService(newMockCartRepo(), newMockProductRepo())
	err := svc.AddItem(context.Background(), uuid.New(), uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCartService_AddItem_UnknownSize(t *testing.T) {
	productRepo := newMockProductRepo()
	product, _ := seedProduct(productRepo, decimal.NewFromInt(10), 5)

	svc := NewCartService(newMockCartRepo(), productRepo)
	err := svc.AddItem(context.Background(), uuid.New(), product.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrSizeNotFound)
}

func TestCartService_UpdateItem_WrongCart(t *testing.T) {
	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo()
	product, size := seedProduct(productRepo, decimal.NewFromInt(10), 5)

	svc := NewCartService(cartRepo, productRepo)
	owner := uuid.New()
	require.NoError(t, svc.AddItem(context.Background(), owner, product.ID, size.ID, 1))

	cart, _ := svc.GetCart(context.Background(), owner)
	itemID := cart.Items[0].ID

	err := svc.UpdateItem(context.Background(), uuid.New(), itemID, 5)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartService_ClearCart(t *testing.T) {
	cartRepo := newMockCartRepo()
	productRepo := newMockProductRepo()
	product, size := seedProduct(productRepo, decimal.NewFromInt(10), 5)

	svc := NewCartService(cartRepo, productRepo)
	userID := uuid.New()
	require.NoError(t, svc.AddItem(context.Background(), userID, product.ID, size.ID, 2))

	require.NoError(t, svc.ClearCart(context.Background(), userID))

	cart, err := svc.GetCart(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}
