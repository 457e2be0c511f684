package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wallau/shop-api/internal/dto"
	"github.com/wallau/shop-api/internal/model"
	"github.com/wallau/shop-api/internal/repository"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrSizeNotFound    = errors.New("product size not found")
	ErrImageNotFound   = errors.New("product image not found")
)

const productCacheTTL = 60 * time.Second

// ProductService owns the catalog: products with their per-size stock rows,
// images and tags. Product detail reads go through a short-lived Redis cache
// that every write invalidates.
type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client

	uploadDir     string
	publicBaseURL string
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client, uploadDir, publicBaseURL string) *ProductService {
	return &ProductService{
		productRepo:   productRepo,
		redisClient:   redisClient,
		uploadDir:     uploadDir,
		publicBaseURL: publicBaseURL,
	}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	product := &model.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	}
	for _, size := range req.Sizes {
		product.Sizes = append(product.Sizes, model.ProductSize{Label: size.Label, Stock: size.Stock})
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	if len(req.Tags) > 0 {
		if err := s.productRepo.SetTags(ctx, product.ID, cleanTags(req.Tags)); err != nil {
			return nil, fmt.Errorf("set tags: %w", err)
		}
	}
	return s.GetByID(ctx, product.ID)
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := "product:" + id.String()

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := s.toProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}

	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	offset := (req.Page - 1) * req.Limit
	products, total, err := s.productRepo.List(ctx, req.Limit, offset, req.Search, req.Sort, req.Order)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var items []dto.ProductResponse
	for i := range products {
		items = append(items, s.toProductResponse(&products[i]))
	}

	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

// Update changes catalog fields only. A price change never touches existing
// orders, their line items keep the price from order time.
func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if req.Tags != nil {
		if err := s.productRepo.SetTags(ctx, id, cleanTags(req.Tags)); err != nil {
			return nil, fmt.Errorf("set tags: %w", err)
		}
	}

	s.invalidateCache(ctx, id)
	return s.GetByID(ctx, id)
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ProductService) AddSize(ctx context.Context, productID uuid.UUID, req dto.SizeInput) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	size := &model.ProductSize{ProductID: productID, Label: req.Label, Stock: req.Stock}
	if err := s.productRepo.AddSize(ctx, size); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, productID)
	return s.GetByID(ctx, productID)
}

// SetStock overwrites the absolute stock of one size row. Order flow never
// calls this, it reserves and restocks relatively inside its transaction.
func (s *ProductService) SetStock(ctx context.Context, productID, sizeID uuid.UUID, stock int) (*dto.ProductResponse, error) {
	if err := s.productRepo.SetStock(ctx, sizeID, stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSizeNotFound
		}
		return nil, err
	}
	s.invalidateCache(ctx, productID)
	return s.GetByID(ctx, productID)
}

// AddImage registers an already-saved upload for the product.
func (s *ProductService) AddImage(ctx context.Context, productID uuid.UUID, relPath string, position int) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	image := &model.ProductImage{ProductID: productID, Path: normalizePath(relPath), Position: position}
	if err := s.productRepo.AddImage(ctx, image); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, productID)
	return s.GetByID(ctx, productID)
}

// DeleteImage removes the row and best-effort removes the file.
func (s *ProductService) DeleteImage(ctx context.Context, productID, imageID uuid.UUID) error {
	path, err := s.productRepo.DeleteImage(ctx, imageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrImageNotFound
		}
		return err
	}
	_ = os.Remove(filepath.Join(s.uploadDir, filepath.FromSlash(path)))
	s.invalidateCache(ctx, productID)
	return nil
}

func (s *ProductService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redisClient != nil {
		s.redisClient.Del(ctx, "product:"+id.String())
	}
}

func (s *ProductService) toProductResponse(p *model.Product) dto.ProductResponse {
	resp := dto.ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, size := range p.Sizes {
		resp.Sizes = append(resp.Sizes, dto.SizeResponse{ID: size.ID, Label: size.Label, Stock: size.Stock})
	}
	for _, img := range p.Images {
		resp.Images = append(resp.Images, dto.ImageResponse{
			ID:   img.ID,
			URL:  strings.TrimRight(s.publicBaseURL, "/") + "/uploads/" + img.Path,
			Path: img.Path,
		})
	}
	for _, tag := range p.Tags {
		resp.Tags = append(resp.Tags, tag.Name)
	}
	return resp
}

func cleanTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		v := strings.ToLower(strings.TrimSpace(t))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
