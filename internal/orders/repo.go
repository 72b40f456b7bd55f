package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOrder       = errors.New("order must have at least one item")
	ErrTotalMismatch    = errors.New("total must equal subtotal + shipping + tax")
	ErrPriceChanged     = errors.New("product prices changed, please review your cart")
	ErrUnknownProduct   = errors.New("product not found")
	ErrInvalidItemCount = errors.New("item quantity must be positive")
)

// Repo is the system of record for orders.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, items, shipping_address, payment_method, status, payment_status,
	delivery_option, subtotal, tax, shipping, total, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		items, address []byte
	)
	err := row.Scan(&o.ID, &items, &address, &o.PaymentMethod, &o.Status, &o.PaymentStatus,
		&o.DeliveryOption, &o.Subtotal, &o.Tax, &o.Shipping, &o.Total, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return Order{}, fmt.Errorf("decode address of %s: %w", o.ID, err)
	}
	return o, nil
}

// ValidateCreate checks what can be checked without the database.
func ValidateCreate(req CreateRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidItemCount, it.ProductID)
		}
	}
	if !req.PaymentStatus.Valid() {
		return fmt.Errorf("%w: payment status %q", ErrInvalidStatus, req.PaymentStatus)
	}
	if req.Subtotal.IsNegative() || req.Tax.IsNegative() || req.Shipping.IsNegative() {
		return ErrNegativeAmount
	}
	if !Total(req.Subtotal, req.Tax, req.Shipping).Equal(req.Total) {
		return ErrTotalMismatch
	}
	return nil
}

// Create is idempotent via externalID: a second call with the same key
// returns the order created by the first (existed=true).
func (r *Repo) Create(ctx context.Context, externalID string, req CreateRequest) (o Order, existed bool, err error) {
	if err := ValidateCreate(req); err != nil {
		return Order{}, false, err
	}
	if externalID != "" {
		o, err = scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
		if err == nil {
			return o, true, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return Order{}, false, err
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// price from the products table, not from the client
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	rows, err := tx.Query(ctx, `SELECT id, price, discounted_price, category_id FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return Order{}, false, err
	}
	type priced struct {
		price    decimal.Decimal
		category string
	}
	prices := map[string]priced{}
	for rows.Next() {
		var (
			id             string
			list, discount decimal.Decimal
			category       string
		)
		if err := rows.Scan(&id, &list, &discount, &category); err != nil {
			rows.Close()
			return Order{}, false, err
		}
		p := priced{price: list, category: category}
		if discount.IsPositive() {
			p.price = discount
		}
		prices[id] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, false, err
	}

	subtotal := decimal.Zero
	items := make([]Item, len(req.Items))
	for i, it := range req.Items {
		p, ok := prices[it.ProductID]
		if !ok {
			return Order{}, false, fmt.Errorf("%w: %s", ErrUnknownProduct, it.ProductID)
		}
		if !p.price.Equal(it.Price) {
			return Order{}, false, fmt.Errorf("%w: %s", ErrPriceChanged, it.ProductID)
		}
		it.CategoryID = p.category
		items[i] = it
		subtotal = subtotal.Add(p.price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !subtotal.Equal(req.Subtotal) {
		return Order{}, false, ErrPriceChanged
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return Order{}, false, err
	}
	addressJSON, err := json.Marshal(req.ShippingAddress)
	if err != nil {
		return Order{}, false, err
	}

	var ext any
	if externalID != "" {
		ext = externalID
	}
	o, err = scanOrder(tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, items, shipping_address, payment_method, status, payment_status,
			delivery_option, subtotal, tax, shipping, total, notes)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+orderColumns,
		uuid.NewString(), ext, itemsJSON, addressJSON, req.PaymentMethod, req.PaymentStatus,
		req.DeliveryOption, req.Subtotal, req.Tax, req.Shipping, req.Total, req.Notes,
	))
	if err != nil {
		return Order{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return o, false, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Update replaces the admin-editable fields. The stored total is always
// recomputed here; a request total that disagrees is rejected.
func (r *Repo) Update(ctx context.Context, id string, req UpdateRequest) (Order, error) {
	if !req.Status.Valid() {
		return Order{}, fmt.Errorf("%w: order status %q", ErrInvalidStatus, req.Status)
	}
	if !req.PaymentStatus.Valid() {
		return Order{}, fmt.Errorf("%w: payment status %q", ErrInvalidStatus, req.PaymentStatus)
	}
	if req.Subtotal.IsNegative() || req.Tax.IsNegative() || req.Shipping.IsNegative() {
		return Order{}, ErrNegativeAmount
	}
	total := Total(req.Subtotal, req.Tax, req.Shipping)
	if !total.Equal(req.Total) {
		return Order{}, ErrTotalMismatch
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET subtotal=$2, tax=$3, shipping=$4, total=$5, status=$6, payment_status=$7,
			delivery_option=$8, notes=$9, updated_at=now()
		WHERE id=$1
		RETURNING `+orderColumns,
		id, req.Subtotal, req.Tax, req.Shipping, total, req.Status, req.PaymentStatus, req.DeliveryOption, req.Notes,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
