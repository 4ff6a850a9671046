package handler

import (
	"context"

	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockProductService is a mock implementation of ProductService.
type MockProductService struct {
	mock.Mock
}

func (m *MockProductService) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

// MockCheckoutService is a mock implementation of CheckoutService.
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) CreateCheckout(ctx context.Context, id auth.Identity, req *model.CheckoutRequest) (*model.CheckoutResult, error) {
	args := m.Called(ctx, id, req)
	result, _ := args.Get(0).(*model.CheckoutResult)
	return result, args.Error(1)
}

func (m *MockCheckoutService) RetryPayment(ctx context.Context, id auth.Identity, orderID uuid.UUID) (*model.CheckoutResult, error) {
	args := m.Called(ctx, id, orderID)
	result, _ := args.Get(0).(*model.CheckoutResult)
	return result, args.Error(1)
}

// MockOrderService is a mock implementation of OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor auth.Identity, id uuid.UUID) (*model.OrderDetail, error) {
	args := m.Called(ctx, actor, id)
	detail, _ := args.Get(0).(*model.OrderDetail)
	return detail, args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, actor auth.Identity, filter model.OrderFilter) ([]model.Order, error) {
	args := m.Called(ctx, actor, filter)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

func (m *MockOrderService) ListAllOrders(ctx context.Context, actor auth.Identity, filter model.OrderFilter) ([]model.Order, error) {
	args := m.Called(ctx, actor, filter)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, update model.StatusUpdate) (*model.Order, error) {
	args := m.Called(ctx, actor, id, update)
	order, _ := args.Get(0).(*model.Order)
	return order, args.Error(1)
}

func (m *MockOrderService) ResendNotification(ctx context.Context, actor auth.Identity, id uuid.UUID, t model.NotificationType) error {
	return m.Called(ctx, actor, id, t).Error(0)
}

func (m *MockOrderService) ApplyPaymentResult(ctx context.Context, result *payment.PaymentResult) (*model.Order, error) {
	args := m.Called(ctx, result)
	order, _ := args.Get(0).(*model.Order)
	return order, args.Error(1)
}
