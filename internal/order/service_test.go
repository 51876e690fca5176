package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenmart/grocery-backend/internal/auth"
	"github.com/greenmart/grocery-backend/internal/notification"
	"github.com/greenmart/grocery-backend/internal/order"
)

type mockRepository struct {
	createFunc            func(ctx context.Context, o *order.Order) error
	getByIDFunc           func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listByCustomerFunc    func(ctx context.Context, customerID uuid.UUID) ([]order.Order, error)
	listAllFunc           func(ctx context.Context) ([]order.Order, error)
	applyStatusChangeFunc func(ctx context.Context, change order.StatusChange) error
	getUserSummaryFunc    func(ctx context.Context, id uuid.UUID) (*order.UserSummary, error)
}

func (m *mockRepository) Create(ctx context.Context, o *order.Order) error {
	return m.createFunc(ctx, o)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
	return m.listByCustomerFunc(ctx, customerID)
}

func (m *mockRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	return m.listAllFunc(ctx)
}

func (m *mockRepository) ApplyStatusChange(ctx context.Context, change order.StatusChange) error {
	return m.applyStatusChangeFunc(ctx, change)
}

func (m *mockRepository) GetUserSummary(ctx context.Context, id uuid.UUID) (*order.UserSummary, error) {
	return m.getUserSummaryFunc(ctx, id)
}

type mockNotifications struct {
	created []notification.Notification
	trail   []notification.Notification
	fail    error
}

func (m *mockNotifications) Create(ctx context.Context, n *notification.Notification) error {
	if m.fail != nil {
		return m.fail
	}
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotifications) ListByReference(ctx context.Context, referenceID uuid.UUID, referenceType string) ([]notification.Notification, error) {
	return m.trail, nil
}

var (
	customerID = uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	vendorID   = uuid.Must(uuid.FromString("223e4567-e89b-12d3-a456-426614174000"))
	vendorID2  = uuid.Must(uuid.FromString("323e4567-e89b-12d3-a456-426614174000"))
	deliveryID = uuid.Must(uuid.FromString("423e4567-e89b-12d3-a456-426614174000"))
	adminID    = uuid.Must(uuid.FromString("523e4567-e89b-12d3-a456-426614174000"))
	orderID    = uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	productID  = uuid.Must(uuid.FromString("650e8400-e29b-41d4-a716-446655440000"))
	productID2 = uuid.Must(uuid.FromString("750e8400-e29b-41d4-a716-446655440000"))
)

func testOrder(status order.Status) *order.Order {
	return &order.Order{
		ID:              orderID,
		CustomerID:      customerID,
		TotalAmount:     21.50,
		DeliveryAddress: "12 Main Street",
		Status:          status,
		Items: []order.OrderItem{
			{ID: uuid.Must(uuid.NewV4()), OrderID: orderID, ProductID: productID, Quantity: 2, UnitPrice: 5.25, VendorID: vendorID, ProductName: "Oat milk"},
			{ID: uuid.Must(uuid.NewV4()), OrderID: orderID, ProductID: productID2, Quantity: 1, UnitPrice: 11.00, VendorID: vendorID2, ProductName: "Olive oil"},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func newService(repo *mockRepository, sink *mockNotifications) order.Service {
	if repo.getUserSummaryFunc == nil {
		repo.getUserSummaryFunc = func(ctx context.Context, id uuid.UUID) (*order.UserSummary, error) {
			return &order.UserSummary{ID: id, FirstName: "Test", LastName: "User", Email: "test@example.com"}, nil
		}
	}
	return order.NewService(repo, sink)
}

func TestService_Cancel_CustomerDefaultsReasonAndRestocks(t *testing.T) {
	var applied *order.StatusChange
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusPending), nil
		},
		applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
			applied = &change
			return nil
		},
	}
	sink := &mockNotifications{}
	svc := newService(repo, sink)

	got, err := svc.Cancel(context.Background(), auth.Actor{ID: customerID, Role: auth.RoleCustomer}, orderID, "")
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, got.Status)
	require.NotNil(t, got.StatusReason)
	assert.Equal(t, "No reason provided", *got.StatusReason)

	require.NotNil(t, applied)
	assert.Equal(t, order.StatusPending, applied.From)
	assert.Equal(t, order.StatusCancelled, applied.To)
	require.Len(t, applied.RestockItems, 2)
	assert.Equal(t, 2, applied.RestockItems[0].Quantity)

	// Customer cancelled, so each distinct vendor gets one notification.
	require.Len(t, sink.created, 2)
	assert.Equal(t, vendorID, sink.created[0].UserID)
	assert.Equal(t, vendorID2, sink.created[1].UserID)
	for _, n := range sink.created {
		assert.Equal(t, orderID, n.ReferenceID)
		assert.Equal(t, notification.ReferenceTypeOrder, n.ReferenceType)
	}
}

func TestService_Cancel_AdminNotifiesCustomer(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusPreparing), nil
		},
		applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
			return nil
		},
	}
	sink := &mockNotifications{}
	svc := newService(repo, sink)

	_, err := svc.Cancel(context.Background(), auth.Actor{ID: adminID, Role: auth.RoleAdmin}, orderID, "supplier issue")
	require.NoError(t, err)

	require.Len(t, sink.created, 1)
	assert.Equal(t, customerID, sink.created[0].UserID)
	assert.Contains(t, sink.created[0].Body, "supplier issue")
}

func TestService_Cancel_CustomerFromReadyIsInvalid(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusReady), nil
		},
		applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
			t.Fatal("ApplyStatusChange should not be called")
			return nil
		},
	}
	svc := newService(repo, &mockNotifications{})

	_, err := svc.Cancel(context.Background(), auth.Actor{ID: customerID, Role: auth.RoleCustomer}, orderID, "")
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestService_Cancel_VendorWithoutProductIsForbidden(t *testing.T) {
	otherVendor := uuid.Must(uuid.NewV4())
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusPreparing), nil
		},
	}
	svc := newService(repo, &mockNotifications{})

	_, err := svc.Cancel(context.Background(), auth.Actor{ID: otherVendor, Role: auth.RoleVendor}, orderID, "")
	assert.ErrorIs(t, err, order.ErrForbidden)
}

func TestService_Cancel_OrderNotFound(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return nil, order.ErrOrderNotFound
		},
	}
	svc := newService(repo, &mockNotifications{})

	_, err := svc.Cancel(context.Background(), auth.Actor{ID: adminID, Role: auth.RoleAdmin}, orderID, "")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_Cancel_NotificationFailureDoesNotFailCancel(t *testing.T) {
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusPending), nil
		},
		applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
			return nil
		},
	}
	sink := &mockNotifications{fail: errors.New("insert failed")}
	svc := newService(repo, sink)

	got, err := svc.Cancel(context.Background(), auth.Actor{ID: customerID, Role: auth.RoleCustomer}, orderID, "")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
}

func TestService_ApplyTransition(t *testing.T) {
	tests := []struct {
		name      string
		status    order.Status
		actor     auth.Actor
		target    order.Status
		reason    string
		wantErrIs error
	}{
		{
			name:   "admin_retries_failed_delivery",
			status: order.StatusFailed,
			actor:  auth.Actor{ID: adminID, Role: auth.RoleAdmin},
			target: order.StatusInTransit,
		},
		{
			name:      "vendor_cannot_retry_failed_delivery",
			status:    order.StatusFailed,
			actor:     auth.Actor{ID: vendorID, Role: auth.RoleVendor},
			target:    order.StatusInTransit,
			wantErrIs: order.ErrInvalidTransition,
		},
		{
			name:   "vendor_approves_pending",
			status: order.StatusPending,
			actor:  auth.Actor{ID: vendorID, Role: auth.RoleVendor},
			target: order.StatusApproved,
		},
		{
			name:      "vendor_rejects_without_reason",
			status:    order.StatusPending,
			actor:     auth.Actor{ID: vendorID, Role: auth.RoleVendor},
			target:    order.StatusRejected,
			wantErrIs: order.ErrReasonRequired,
		},
		{
			name:   "vendor_rejects_with_reason",
			status: order.StatusPending,
			actor:  auth.Actor{ID: vendorID, Role: auth.RoleVendor},
			target: order.StatusRejected,
			reason: "out of stock",
		},
		{
			name:      "delivery_cannot_skip_to_delivered_from_ready",
			status:    order.StatusReady,
			actor:     auth.Actor{ID: deliveryID, Role: auth.RoleDelivery},
			target:    order.StatusDelivered,
			wantErrIs: order.ErrInvalidTransition,
		},
		{
			name:      "admin_cannot_leave_delivered",
			status:    order.StatusDelivered,
			actor:     auth.Actor{ID: adminID, Role: auth.RoleAdmin},
			target:    order.StatusInTransit,
			wantErrIs: order.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
					return testOrder(tt.status), nil
				},
				applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
					return nil
				},
			}
			svc := newService(repo, &mockNotifications{})

			got, err := svc.ApplyTransition(context.Background(), tt.actor, orderID, tt.target, tt.reason)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Status)
		})
	}
}

func TestService_ApplyTransition_DeliveryPickupAssignsActor(t *testing.T) {
	var applied *order.StatusChange
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusReady), nil
		},
		applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
			applied = &change
			return nil
		},
	}
	svc := newService(repo, &mockNotifications{})

	got, err := svc.ApplyTransition(context.Background(),
		auth.Actor{ID: deliveryID, Role: auth.RoleDelivery}, orderID, order.StatusInTransit, "")
	require.NoError(t, err)

	require.NotNil(t, applied)
	assert.True(t, applied.AssignDelivery.Valid)
	assert.Equal(t, deliveryID, applied.AssignDelivery.UUID)

	assert.True(t, got.DeliveryPersonID.Valid)
	assert.Equal(t, deliveryID, got.DeliveryPersonID.UUID)
}

func TestService_ApplyTransition_CancelledRestocks(t *testing.T) {
	var applied *order.StatusChange
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return testOrder(order.StatusApproved), nil
		},
		applyStatusChangeFunc: func(ctx context.Context, change order.StatusChange) error {
			applied = &change
			return nil
		},
	}
	svc := newService(repo, &mockNotifications{})

	_, err := svc.ApplyTransition(context.Background(),
		auth.Actor{ID: vendorID, Role: auth.RoleVendor}, orderID, order.StatusCancelled, "short staffed")
	require.NoError(t, err)

	require.NotNil(t, applied)
	assert.Len(t, applied.RestockItems, 2)
}

func TestService_AvailableTransitions(t *testing.T) {
	tests := []struct {
		name         string
		status       order.Status
		actor        auth.Actor
		wantStatuses []order.Status
		wantErrIs    error
	}{
		{
			name:         "unassigned_delivery_sees_ready_order",
			status:       order.StatusReady,
			actor:        auth.Actor{ID: deliveryID, Role: auth.RoleDelivery},
			wantStatuses: []order.Status{order.StatusInTransit},
		},
		{
			name:         "admin_on_delivered_gets_empty_set",
			status:       order.StatusDelivered,
			actor:        auth.Actor{ID: adminID, Role: auth.RoleAdmin},
			wantStatuses: []order.Status{},
		},
		{
			name:      "other_customer_is_forbidden",
			status:    order.StatusPending,
			actor:     auth.Actor{ID: adminID, Role: auth.RoleCustomer},
			wantErrIs: order.ErrForbidden,
		},
		{
			name:      "delivery_cannot_view_pending_order",
			status:    order.StatusPending,
			actor:     auth.Actor{ID: deliveryID, Role: auth.RoleDelivery},
			wantErrIs: order.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
					return testOrder(tt.status), nil
				},
			}
			svc := newService(repo, &mockNotifications{})

			view, err := svc.AvailableTransitions(context.Background(), tt.actor, orderID)
			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)

			gotStatuses := make([]order.Status, 0, len(view.AvailableTransitions))
			for _, tr := range view.AvailableTransitions {
				gotStatuses = append(gotStatuses, tr.Status)
			}
			assert.Equal(t, tt.wantStatuses, gotStatuses)
			assert.Equal(t, tt.status, view.CurrentStatus)
			assert.Equal(t, tt.actor.Role, view.UserRole)
			assert.Equal(t, orderID, view.OrderID)
		})
	}
}

func TestService_Checkout(t *testing.T) {
	t.Run("non_customer_forbidden", func(t *testing.T) {
		svc := newService(&mockRepository{}, &mockNotifications{})
		_, err := svc.Checkout(context.Background(),
			auth.Actor{ID: vendorID, Role: auth.RoleVendor}, &order.Order{})
		assert.ErrorIs(t, err, order.ErrForbidden)
	})

	t.Run("empty_items_rejected", func(t *testing.T) {
		svc := newService(&mockRepository{}, &mockNotifications{})
		_, err := svc.Checkout(context.Background(),
			auth.Actor{ID: customerID, Role: auth.RoleCustomer}, &order.Order{})
		assert.Error(t, err)
	})

	t.Run("sets_pending_and_owner", func(t *testing.T) {
		var created *order.Order
		repo := &mockRepository{
			createFunc: func(ctx context.Context, o *order.Order) error {
				created = o
				return nil
			},
		}
		svc := newService(repo, &mockNotifications{})

		input := &order.Order{
			DeliveryAddress: "12 Main Street",
			Items:           []order.OrderItem{{ProductID: productID, Quantity: 2}},
		}
		_, err := svc.Checkout(context.Background(),
			auth.Actor{ID: customerID, Role: auth.RoleCustomer}, input)
		require.NoError(t, err)

		require.NotNil(t, created)
		assert.Equal(t, order.StatusPending, created.Status)
		assert.Equal(t, customerID, created.CustomerID)
	})
}

func TestService_History(t *testing.T) {
	trail := []notification.Notification{
		{ID: uuid.Must(uuid.NewV4()), UserID: customerID, Title: "Order status updated", ReferenceID: orderID, ReferenceType: notification.ReferenceTypeOrder},
	}
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			o := testOrder(order.StatusInTransit)
			o.DeliveryPersonID = uuid.NullUUID{UUID: deliveryID, Valid: true}
			return o, nil
		},
	}
	sink := &mockNotifications{trail: trail}
	svc := newService(repo, sink)

	view, err := svc.History(context.Background(), auth.Actor{ID: customerID, Role: auth.RoleCustomer}, orderID)
	require.NoError(t, err)

	assert.Equal(t, order.StatusInTransit, view.CurrentStatus)
	require.NotNil(t, view.Order.Customer)
	assert.Equal(t, customerID, view.Order.Customer.ID)
	require.NotNil(t, view.Order.DeliveryPerson)
	assert.Equal(t, deliveryID, view.Order.DeliveryPerson.ID)
	assert.Len(t, view.StatusHistory, 1)
}

func TestService_ListOrders(t *testing.T) {
	repo := &mockRepository{
		listAllFunc: func(ctx context.Context) ([]order.Order, error) {
			return []order.Order{*testOrder(order.StatusPending)}, nil
		},
		listByCustomerFunc: func(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
			return []order.Order{}, nil
		},
	}
	svc := newService(repo, &mockNotifications{})

	orders, err := svc.ListOrders(context.Background(), auth.Actor{ID: adminID, Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	orders, err = svc.ListOrders(context.Background(), auth.Actor{ID: customerID, Role: auth.RoleCustomer})
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = svc.ListOrders(context.Background(), auth.Actor{ID: deliveryID, Role: auth.RoleDelivery})
	assert.ErrorIs(t, err, order.ErrForbidden)
}
