package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/greenmart/grocery-backend/internal/auth"
	"github.com/greenmart/grocery-backend/internal/notification"
)

const defaultCancelReason = "No reason provided"

var (
	ErrForbidden      = errors.New("actor is not allowed to access this order")
	ErrReasonRequired = errors.New("a reason is required for this transition")
	// ErrInvalidTransition is the sentinel wrapped by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError reports the attempted transition together with the
// set the policy table permits for the actor's role.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("invalid status transition from %s to %s (allowed: [%s])",
		e.From, e.To, strings.Join(allowed, ", "))
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NotificationSink is the slice of the notification store the executor needs
// for fan-out and the history trail.
type NotificationSink interface {
	Create(ctx context.Context, n *notification.Notification) error
	ListByReference(ctx context.Context, referenceID uuid.UUID, referenceType string) ([]notification.Notification, error)
}

// TransitionsView is the read-only composition of the policy table and one
// order's current state, scoped to the requesting actor's role.
type TransitionsView struct {
	OrderID                  uuid.UUID    `json:"order_id"`
	CurrentStatus            Status       `json:"current_status"`
	CurrentStatusDescription string       `json:"current_status_description"`
	AvailableTransitions     []Transition `json:"available_transitions"`
	UserRole                 auth.Role    `json:"user_role"`
}

// HistoryOrder is the order with its participants joined in.
type HistoryOrder struct {
	*Order
	Customer       *UserSummary `json:"customer"`
	DeliveryPerson *UserSummary `json:"delivery_person,omitempty"`
}

// HistoryView is the order, its participants, and the notification trail.
type HistoryView struct {
	Order         HistoryOrder                `json:"order"`
	StatusHistory []notification.Notification `json:"status_history"`
	CurrentStatus Status                      `json:"current_status"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

type Service interface {
	Checkout(ctx context.Context, actor auth.Actor, o *Order) (*Order, error)
	GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, actor auth.Actor) ([]Order, error)
	AvailableTransitions(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*TransitionsView, error)
	Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*Order, error)
	ApplyTransition(ctx context.Context, actor auth.Actor, orderID uuid.UUID, target Status, reason string) (*Order, error)
	History(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*HistoryView, error)
}

type service struct {
	repo          Repository
	notifications NotificationSink
}

func NewService(repo Repository, notifications NotificationSink) Service {
	return &service{repo: repo, notifications: notifications}
}

func (s *service) Checkout(ctx context.Context, actor auth.Actor, o *Order) (*Order, error) {
	if actor.Role != auth.RoleCustomer {
		return nil, ErrForbidden
	}

	if len(o.Items) == 0 {
		return nil, errors.New("service: order must contain at least one item")
	}
	for i := range o.Items {
		item := &o.Items[i]
		if item.ProductID == uuid.Nil {
			return nil, errors.New("service: product id in order item cannot be nil")
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("service: order item quantity for product %s must be greater than zero", item.ProductID)
		}
		item.ID = uuid.Nil
		item.OrderID = uuid.Nil
	}

	o.ID = uuid.Nil
	o.CustomerID = actor.ID
	o.DeliveryPersonID = uuid.NullUUID{}
	o.Status = StatusPending
	o.StatusReason = nil

	if err := s.repo.Create(ctx, o); err != nil {
		log.Error().Err(err).Stringer("customer_id", actor.ID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("customer_id", o.CustomerID).Msg("service: order created")

	for _, vendorID := range o.VendorIDs() {
		s.notify(ctx, vendorID, "New order received",
			fmt.Sprintf("Order %s is awaiting your review.", o.ID), o.ID)
	}

	return o, nil
}

func (s *service) GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*Order, error) {
	return s.loadAuthorized(ctx, actor, orderID)
}

func (s *service) ListOrders(ctx context.Context, actor auth.Actor) ([]Order, error) {
	switch actor.Role {
	case auth.RoleAdmin:
		return s.repo.ListAll(ctx)
	case auth.RoleCustomer:
		return s.repo.ListByCustomer(ctx, actor.ID)
	default:
		return nil, ErrForbidden
	}
}

func (s *service) AvailableTransitions(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*TransitionsView, error) {
	o, err := s.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	return &TransitionsView{
		OrderID:                  o.ID,
		CurrentStatus:            o.Status,
		CurrentStatusDescription: DescribeStatus(o.Status),
		AvailableTransitions:     AvailableTransitions(o.Status, actor.Role),
		UserRole:                 actor.Role,
	}, nil
}

// Cancel is the role-gated cancellation path. Its source sets are wider than
// the policy table's cancelled edges (customers may cancel their own pending
// orders even though pending has no customer row in the table).
func (s *service) Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*Order, error) {
	o, err := s.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if !CanCancelFrom(o.Status, actor.Role) {
		return nil, &InvalidTransitionError{
			From:    o.Status,
			To:      StatusCancelled,
			Allowed: AllowedTargets(o.Status, actor.Role),
		}
	}

	if reason == "" {
		reason = defaultCancelReason
	}

	err = s.repo.ApplyStatusChange(ctx, StatusChange{
		OrderID:      o.ID,
		From:         o.Status,
		To:           StatusCancelled,
		Reason:       &reason,
		RestockItems: o.Items,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("old_status", o.Status).
		Str("actor_role", string(actor.Role)).
		Msg("service: order cancelled")

	s.fanOutCancellation(ctx, actor, o, reason)

	o.Status = StatusCancelled
	o.StatusReason = &reason
	return o, nil
}

func (s *service) ApplyTransition(ctx context.Context, actor auth.Actor, orderID uuid.UUID, target Status, reason string) (*Order, error) {
	o, err := s.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(o.Status, actor.Role, target) {
		return nil, &InvalidTransitionError{
			From:    o.Status,
			To:      target,
			Allowed: AllowedTargets(o.Status, actor.Role),
		}
	}

	var reasonPtr *string
	if ReasonRequired(target) {
		if reason == "" {
			return nil, ErrReasonRequired
		}
		reasonPtr = &reason
	}

	change := StatusChange{
		OrderID: o.ID,
		From:    o.Status,
		To:      target,
		Reason:  reasonPtr,
	}
	if target == StatusCancelled {
		change.RestockItems = o.Items
	}
	// A delivery actor picking the order up becomes its assignee.
	if target == StatusInTransit && actor.Role == auth.RoleDelivery {
		change.AssignDelivery = uuid.NullUUID{UUID: actor.ID, Valid: true}
	}

	if err := s.repo.ApplyStatusChange(ctx, change); err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("old_status", o.Status).
		Stringer("new_status", target).
		Str("actor_role", string(actor.Role)).
		Msg("service: order status updated")

	if target == StatusCancelled {
		s.fanOutCancellation(ctx, actor, o, reason)
	} else if actor.ID != o.CustomerID {
		body := fmt.Sprintf("Order %s moved from %s to %s.", o.ID, o.Status, target)
		if reasonPtr != nil {
			body = fmt.Sprintf("%s Reason: %s", body, *reasonPtr)
		}
		s.notify(ctx, o.CustomerID, "Order status updated", body, o.ID)
	}

	o.Status = target
	o.StatusReason = reasonPtr
	if change.AssignDelivery.Valid {
		o.DeliveryPersonID = change.AssignDelivery
	}
	return o, nil
}

func (s *service) History(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*HistoryView, error) {
	o, err := s.loadAuthorized(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}

	customer, err := s.repo.GetUserSummary(ctx, o.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load order customer: %w", err)
	}

	var deliveryPerson *UserSummary
	if o.DeliveryPersonID.Valid {
		deliveryPerson, err = s.repo.GetUserSummary(ctx, o.DeliveryPersonID.UUID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to load order delivery person: %w", err)
		}
	}

	trail, err := s.notifications.ListByReference(ctx, o.ID, notification.ReferenceTypeOrder)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load order notification trail: %w", err)
	}

	return &HistoryView{
		Order: HistoryOrder{
			Order:          o,
			Customer:       customer,
			DeliveryPerson: deliveryPerson,
		},
		StatusHistory: trail,
		CurrentStatus: o.Status,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}, nil
}

// loadAuthorized loads the order and applies the view-authorization rules:
// customers must own it, vendors need a product among its items, delivery
// actors must be assigned or the order must be ready for pickup, admins pass.
func (s *service) loadAuthorized(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case auth.RoleAdmin:
		return o, nil
	case auth.RoleCustomer:
		if o.CustomerID == actor.ID {
			return o, nil
		}
	case auth.RoleVendor:
		if o.HasVendor(actor.ID) {
			return o, nil
		}
	case auth.RoleDelivery:
		if (o.DeliveryPersonID.Valid && o.DeliveryPersonID.UUID == actor.ID) || o.Status == StatusReady {
			return o, nil
		}
	}

	return nil, ErrForbidden
}

// fanOutCancellation notifies the customer when someone else cancelled, or
// every distinct vendor when the customer did.
func (s *service) fanOutCancellation(ctx context.Context, actor auth.Actor, o *Order, reason string) {
	body := fmt.Sprintf("Order %s was cancelled. Reason: %s", o.ID, reason)
	if actor.ID != o.CustomerID {
		s.notify(ctx, o.CustomerID, "Order cancelled", body, o.ID)
		return
	}
	for _, vendorID := range o.VendorIDs() {
		s.notify(ctx, vendorID, "Order cancelled", body, o.ID)
	}
}

// notify is best-effort: a failed insert is logged and never fails the
// transition that triggered it.
func (s *service) notify(ctx context.Context, userID uuid.UUID, title, body string, orderID uuid.UUID) {
	n := &notification.Notification{
		UserID:        userID,
		Title:         title,
		Body:          body,
		ReferenceID:   orderID,
		ReferenceType: notification.ReferenceTypeOrder,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		log.Error().Err(err).
			Stringer("order_id", orderID).
			Stringer("user_id", userID).
			Msg("service: failed to create notification")
	}
}
