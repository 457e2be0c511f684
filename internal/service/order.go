package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wallau/shop-api/internal/dto"
	"github.com/wallau/shop-api/internal/model"
	"github.com/wallau/shop-api/internal/repository"
)

var (
	ErrEmptyOrder          = errors.New("order has no items")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAccessDenied   = errors.New("access denied")
	ErrOrderNotCancellable = errors.New("order can no longer be cancelled")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

const confirmationQueue = "order.confirmations"

type OrderService struct {
	orderRepo   repository.OrderRepository
	stockRepo   repository.StockRepository
	productRepo repository.ProductRepository
	amqpCh      *amqp.Channel
	log         *slog.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	amqpCh *amqp.Channel,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		stockRepo:   stockRepo,
		productRepo: productRepo,
		amqpCh:      amqpCh,
		log:         log,
	}
}

type CreateOrderInput struct {
	Items            []dto.OrderItemInput
	RequestingUserID uuid.UUID
	IsAdmin          bool
	TargetUserID     *uuid.UUID // admin only
	Status           model.OrderStatus
}

// aggregateItems merges duplicate (product, size) lines into one summed
// quantity. Reserving the same SKU row twice in one transaction would take
// the same row lock twice and check availability against partial quantities.
func aggregateItems(items []dto.OrderItemInput) []repository.StockItem {
	type key struct {
		productID uuid.UUID
		sizeID    uuid.UUID
	}
	index := make(map[key]int, len(items))
	out := make([]repository.StockItem, 0, len(items))
	for _, it := range items {
		k := key{it.ProductID, it.SizeID}
		if i, ok := index[k]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[k] = len(out)
		out = append(out, repository.StockItem{
			ProductID: it.ProductID, SizeID: it.SizeID, Quantity: it.Quantity,
		})
	}
	return out
}

// CreateOrder reserves stock and persists the order in a single transaction:
// a failed insert must roll back the reservation, and the price snapshot must
// be read under the same transaction as the reservation.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	userID := in.RequestingUserID
	if in.TargetUserID != nil {
		if !in.IsAdmin {
			return nil, ErrOrderAccessDenied
		}
		userID = *in.TargetUserID
	}

	status := model.OrderStatusOrdered
	if in.Status != "" && in.Status != model.OrderStatusOrdered {
		if !model.ValidOrderStatus(in.Status) {
			return nil, ErrInvalidStatus
		}
		// Storniert is terminal: an order born cancelled would hold a
		// reservation no transition can ever release.
		if in.Status == model.OrderStatusCancelled {
			return nil, ErrInvalidStatus
		}
		// Only admins may skip the Bestellt entry state. Customers otherwise
		// mark their own orders paid without the status endpoint.
		if !in.IsAdmin {
			return nil, ErrOrderAccessDenied
		}
		status = in.Status
	}

	aggregated := aggregateItems(in.Items)

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.stockRepo.ReserveStock(ctx, tx, aggregated); err != nil {
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(aggregated))
	seen := make(map[uuid.UUID]bool, len(aggregated))
	for _, it := range aggregated {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			productIDs = append(productIDs, it.ProductID)
		}
	}
	prices, err := s.productRepo.GetPrices(ctx, tx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}

	order := &model.Order{UserID: userID, Status: status}
	if err := s.orderRepo.Insert(ctx, tx, order); err != nil {
		return nil, err
	}

	items := make([]model.OrderItem, 0, len(aggregated))
	for _, it := range aggregated {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, ErrProductNotFound
		}
		items = append(items, model.OrderItem{
			ProductID: it.ProductID,
			SizeID:    it.SizeID,
			Quantity:  it.Quantity,
			Price:     price, // frozen here, never re-read from the catalog
		})
	}
	if err := s.orderRepo.InsertItems(ctx, tx, order.ID, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	// Confirmation is a side effect: a publish failure must never fail the
	// already-committed order.
	s.publishConfirmation(ctx, order.ID, userID)

	return s.hydrate(ctx, order.ID)
}

func (s *OrderService) publishConfirmation(ctx context.Context, orderID, userID uuid.UUID) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.MailMessage{OrderID: orderID, UserID: userID})
	err := s.amqpCh.PublishWithContext(ctx, "", confirmationQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		s.log.Error("publish order confirmation", "order_id", orderID, "error", err)
	}
}

func (s *OrderService) hydrate(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// UpdateStatus performs an admin status change. Entering Storniert restocks
// every line item in the same transaction; a same-status update is a no-op.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus model.OrderStatus) (*model.Order, error) {
	if !model.ValidOrderStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, _, err := s.orderRepo.LockStatus(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if current == newStatus {
		return s.hydrate(ctx, orderID)
	}
	if !model.CanTransitionOrder(current, newStatus) {
		return nil, ErrInvalidTransition
	}

	if newStatus == model.OrderStatusCancelled {
		if err := s.restockOrder(ctx, tx, orderID); err != nil {
			return nil, err
		}
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, newStatus); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Info("order status changed", "order_id", orderID, "from", current, "to", newStatus)
	return s.hydrate(ctx, orderID)
}

// CancelMyOrder is the customer self-service cancel. Cancelling an already
// cancelled order is an idempotent success; anything past Bestellt cannot be
// self-cancelled.
func (s *OrderService) CancelMyOrder(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, ownerID, err := s.orderRepo.LockStatus(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if ownerID != userID {
		return nil, ErrOrderAccessDenied
	}
	if current == model.OrderStatusCancelled {
		return s.hydrate(ctx, orderID)
	}
	if current != model.OrderStatusOrdered {
		return nil, ErrOrderNotCancellable
	}

	if err := s.restockOrder(ctx, tx, orderID); err != nil {
		return nil, err
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusCancelled); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Info("order cancelled by customer", "order_id", orderID, "user_id", userID)
	return s.hydrate(ctx, orderID)
}

// DeleteOrder hard-deletes an order (admin). Orders not yet cancelled get
// their stock back first, so deletion never leaks a reservation.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, _, err := s.orderRepo.LockStatus(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}

	if current != model.OrderStatusCancelled {
		if err := s.restockOrder(ctx, tx, orderID); err != nil {
			return err
		}
	}
	if err := s.orderRepo.Delete(ctx, tx, orderID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.log.Info("order deleted", "order_id", orderID, "previous_status", current)
	return nil
}

func (s *OrderService) restockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	items, err := s.orderRepo.GetItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	stockItems := make([]repository.StockItem, 0, len(items))
	for _, it := range items {
		stockItems = append(stockItems, repository.StockItem{
			ProductID: it.ProductID, SizeID: it.SizeID, Quantity: it.Quantity,
		})
	}
	return s.stockRepo.RestockItems(ctx, tx, stockItems)
}

func (s *OrderService) GetByID(ctx context.Context, orderID, requesterID uuid.UUID, isAdmin bool) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !isAdmin && order.UserID != requesterID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, requesterID uuid.UUID, isAdmin bool, filterUserID *uuid.UUID) ([]model.Order, error) {
	if isAdmin {
		return s.orderRepo.List(ctx, filterUserID)
	}
	return s.orderRepo.List(ctx, &requesterID)
}
