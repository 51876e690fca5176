package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrOutOfStock      = errors.New("not enough stock for product")
	// ErrStatusConflict is returned when the conditional status update hits
	// zero rows because a concurrent request changed the order first.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// StatusChange describes one persisted transition: a compare-and-swap on the
// status column plus its in-transaction side effects.
type StatusChange struct {
	OrderID        uuid.UUID
	From           Status
	To             Status
	Reason         *string
	AssignDelivery uuid.NullUUID
	RestockItems   []OrderItem
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	ApplyStatusChange(ctx context.Context, change StatusChange) error
	GetUserSummary(ctx context.Context, id uuid.UUID) (*UserSummary, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// Create inserts the order and its items, snapshotting each item's unit price
// from the product row and decrementing stock, all in one transaction.
func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	totalAmount := 0.0
	for i := range o.Items {
		item := &o.Items[i]

		var stock int
		err := tx.QueryRow(ctx,
			`SELECT name, price, stock, vendor_id FROM products WHERE id = $1`,
			item.ProductID,
		).Scan(&item.ProductName, &item.UnitPrice, &stock, &item.VendorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("repository: product %s: %w", item.ProductID, ErrProductNotFound)
			}
			return fmt.Errorf("repository: failed to select product %s: %w", item.ProductID, err)
		}

		if stock < item.Quantity {
			return fmt.Errorf("repository: product %s: %w", item.ProductID, ErrOutOfStock)
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = $2 WHERE id = $3`,
			item.Quantity, now, item.ProductID,
		)
		if err != nil {
			if isCheckViolation(err) {
				return fmt.Errorf("repository: product %s: %w", item.ProductID, ErrOutOfStock)
			}
			return fmt.Errorf("repository: failed to decrement stock for product %s: %w", item.ProductID, err)
		}

		totalAmount += float64(item.Quantity) * item.UnitPrice
	}
	o.TotalAmount = totalAmount

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, delivery_person_id, total_amount, delivery_address, status, status_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.CustomerID, o.DeliveryPersonID, o.TotalAmount, o.DeliveryAddress,
		string(o.Status), o.StatusReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("repository: customer %s: %w", o.CustomerID, ErrUserNotFound)
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]

		itemID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", err)
		}
		item.ID = itemID
		item.OrderID = o.ID
		item.CreatedAt = now

		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, `
		SELECT id, customer_id, delivery_person_id, total_amount, delivery_address, status, status_reason, created_at, updated_at
		FROM orders
		WHERE id = $1`,
		orderID,
	).Scan(
		&o.ID, &o.CustomerID, &o.DeliveryPersonID, &o.TotalAmount, &o.DeliveryAddress,
		&o.Status, &o.StatusReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}

	return &o, nil
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return r.list(ctx, `
		SELECT id, customer_id, delivery_person_id, total_amount, delivery_address, status, status_reason, created_at, updated_at
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC`,
		customerID,
	)
}

func (r *postgresRepository) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `
		SELECT id, customer_id, delivery_person_id, total_amount, delivery_address, status, status_reason, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC`,
	)
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID, &o.CustomerID, &o.DeliveryPersonID, &o.TotalAmount, &o.DeliveryAddress,
			&o.Status, &o.StatusReason, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = []OrderItem{}
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	items, err := r.loadItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for orderID, orderItems := range items {
		if o, ok := ordersMap[orderID]; ok {
			o.Items = orderItems
		}
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]OrderItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price, oi.created_at, p.name, p.vendor_id
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]OrderItem)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.CreatedAt, &item.ProductName, &item.VendorID,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}
	return items, nil
}

// ApplyStatusChange persists one transition. The status UPDATE is conditioned
// on the status the caller read, so a concurrent transition makes this fail
// with ErrStatusConflict instead of silently overwriting. Stock restoration
// shares the transaction with the status write.
func (r *postgresRepository) ApplyStatusChange(ctx context.Context, change StatusChange) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	var tag pgconn.CommandTag
	if change.AssignDelivery.Valid {
		tag, err = tx.Exec(ctx, `
			UPDATE orders
			SET status = $1, status_reason = $2, delivery_person_id = $3, updated_at = $4
			WHERE id = $5 AND status = $6`,
			string(change.To), change.Reason, change.AssignDelivery.UUID, now, change.OrderID, string(change.From),
		)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE orders
			SET status = $1, status_reason = $2, updated_at = $3
			WHERE id = $4 AND status = $5`,
			string(change.To), change.Reason, now, change.OrderID, string(change.From),
		)
	}
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", change.OrderID, err)
	}

	if tag.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, change.OrderID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("repository: failed to re-read order %s: %w", change.OrderID, err)
		}
		log.Warn().
			Stringer("order_id", change.OrderID).
			Str("expected_status", string(change.From)).
			Str("actual_status", current).
			Msg("repository: conditional status update lost a race")
		return ErrStatusConflict
	}

	for _, item := range change.RestockItems {
		_, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock + $1, updated_at = $2 WHERE id = $3`,
			item.Quantity, now, item.ProductID,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to restore stock for product %s: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetUserSummary(ctx context.Context, id uuid.UUID) (*UserSummary, error) {
	var u UserSummary
	err := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, email FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user %s: %w", id, err)
	}
	return &u, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}
