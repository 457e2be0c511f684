package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallau/shop-api/internal/dto"
	"github.com/wallau/shop-api/internal/model"
)

type mockProductRepo struct {
	products map[uuid.UUID]*model.Product
	tags     map[uuid.UUID][]string
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{
		products: make(map[uuid.UUID]*model.Product),
		tags:     make(map[uuid.UUID][]string),
	}
}

func (m *mockProductRepo) Create(_ context.Context, product *model.Product) error {
	product.ID = uuid.New()
	product.CreatedAt = time.Now()
	product.UpdatedAt = time.Now()
	for i := range product.Sizes {
		product.Sizes[i].ID = uuid.New()
		product.Sizes[i].ProductID = product.ID
	}
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	for _, name := range m.tags[id] {
		cp.Tags = append(cp.Tags, model.Tag{ID: uuid.New(), Name: name})
	}
	return &cp, nil
}

func (m *mockProductRepo) List(_ context.Context, _, _ int, _, _, _ string) ([]model.Product, int, error) {
	var out []model.Product
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockProductRepo) Update(_ context.Context, product *model.Product) error {
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.products[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepo) GetPrices(_ context.Context, _ pgx.Tx, productIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	prices := make(map[uuid.UUID]decimal.Decimal)
	for _, id := range productIDs {
		if p, ok := m.products[id]; ok {
			prices[id] = p.Price
		}
	}
	return prices, nil
}

func (m *mockProductRepo) AddSize(_ context.Context, size *model.ProductSize) error {
	size.ID = uuid.New()
	p := m.products[size.ProductID]
	p.Sizes = append(p.Sizes, *size)
	return nil
}

func (m *mockProductRepo) SetStock(_ context.Context, sizeID uuid.UUID, stock int) error {
	for _, p := range m.products {
		for i := range p.Sizes {
			if p.Sizes[i].ID == sizeID {
				p.Sizes[i].Stock = stock
				return nil
			}
		}
	}
	return pgx.ErrNoRows
}

func (m *mockProductRepo) AddImage(_ context.Context, image *model.ProductImage) error {
	image.ID = uuid.New()
	p := m.products[image.ProductID]
	p.Images = append(p.Images, *image)
	return nil
}

func (m *mockProductRepo) DeleteImage(_ context.Context, imageID uuid.UUID) (string, error) {
	for _, p := range m.products {
		for i, img := range p.Images {
			if img.ID == imageID {
				p.Images = append(p.Images[:i], p.Images[i+1:]...)
				return img.Path, nil
			}
		}
	}
	return "", pgx.ErrNoRows
}

func (m *mockProductRepo) SetTags(_ context.Context, productID uuid.UUID, tags []string) error {
	m.tags[productID] = tags
	return nil
}

func seedProduct(repo *mockProductRepo, price decimal.Decimal, stock int) (*model.Product, model.ProductSize) {
	product := &model.Product{
		Name:        "Shirt",
		Description: "A shirt",
		Price:       price,
		Sizes:       []model.ProductSize{{Label: "M", Stock: stock}},
	}
	_ = repo.Create(context.Background(), product)
	return product, product.Sizes[0]
}

func TestProductService_Create(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, t.TempDir(), "http://localhost:8080")

	resp, err := svc.Create(context.Background(), dto.CreateProductRequest{
		Name:        "Shirt",
		Description: "A shirt",
		Price:       decimal.NewFromInt(20),
		Sizes:       []dto.SizeInput{{Label: "M", Stock: 3}, {Label: "L", Stock: 0}},
		Tags:        []string{" Shirt", "shirt", "COTTON"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Sizes, 2)
	assert.Equal(t, []string{"shirt", "cotton"}, resp.Tags)
}

func TestProductService_GetByID_NotFound(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil, t.TempDir(), "http://localhost:8080")
	_, err := svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductService_Update_PartialFields(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, t.TempDir(), "http://localhost:8080")
	product, _ := seedProduct(repo, decimal.NewFromInt(20), 3)

	newName := "Renamed"
	resp, err := svc.Update(context.Background(), product.ID, dto.UpdateProductRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", resp.Name)
	assert.True(t, resp.Price.Equal(decimal.NewFromInt(20)))
}

func TestProductService_SetStock_UnknownSize(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, t.TempDir(), "http://localhost:8080")
	product, _ := seedProduct(repo, decimal.NewFromInt(20), 3)

	_, err := svc.SetStock(context.Background(), product.ID, uuid.New(), 5)
	assert.ErrorIs(t, err, ErrSizeNotFound)
}

func TestProductService_ImageURLs(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, t.TempDir(), "http://localhost:8080/")
	product, _ := seedProduct(repo, decimal.NewFromInt(20), 3)

	resp, err := svc.AddImage(context.Background(), product.ID, "abc.jpg", 0)
	require.NoError(t, err)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, "http://localhost:8080/uploads/abc.jpg", resp.Images[0].URL)
}
