package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

var ErrOrderNotFound = errors.New("payment order not found")

// OrderRepository is the payment order source of the standalone backend.
type OrderRepository struct {
	DB
}

func NewOrderRepository(pool connectionPool, log *slog.Logger) *OrderRepository {
	return &OrderRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

const queryFilterOrders = `
SELECT id, payment_type, payment_mode, status, service_agreement_id,
       originator_name, originator_account, counterparty_name, counterparty_account,
       amount::text, currency, remittance_information,
       transfer_frequency, every, non_working_day_strategy,
       start_date, end_date, next_execution_date, repeat,
       additions, count(*) OVER () AS total
FROM payment_orders
WHERE payment_mode = $1
  AND (cardinality($2::text[]) = 0 OR payment_type = ANY($2))
  AND (cardinality($3::text[]) = 0 OR status = ANY($3))
ORDER BY id
LIMIT $4 OFFSET $5`

// FetchDueOrders returns page number from of the recurring orders matching
// filter. A page past the end has a zero total.
func (r *OrderRepository) FetchDueOrders(ctx context.Context,
	from, size int, filter model.OrderFilter,
) (model.DTOFilterResponse, error) {
	fetch := func() (model.DTOFilterResponse, error) {
		rows, err := r.pool.Query(ctx, queryFilterOrders,
			model.PaymentModeRecurring,
			nonNil(filter.PaymentTypes),
			nonNil(filter.Statuses),
			size,
			from*size,
		)
		if err != nil {
			return model.DTOFilterResponse{}, fmt.Errorf("failed to filter payment orders: %w", err)
		}
		defer rows.Close()

		resp := model.DTOFilterResponse{PaymentOrders: make([]model.DTOPaymentOrder, 0, size)}
		for rows.Next() {
			o, total, err := scanOrder(rows)
			if err != nil {
				return model.DTOFilterResponse{}, err
			}
			resp.TotalElements = total
			resp.PaymentOrders = append(resp.PaymentOrders, o)
		}
		if err := rows.Err(); err != nil {
			return model.DTOFilterResponse{}, fmt.Errorf("failed to read payment orders: %w", err)
		}
		return resp, nil
	}

	return WithRetry(ctx, r.log, fetch)
}

func scanOrder(rows pgx.Rows) (model.DTOPaymentOrder, int, error) {
	var (
		o                   model.DTOPaymentOrder
		s                   model.DTOSchedule
		originatorAccount   []byte
		counterpartyAccount []byte
		additions           map[string]string
		startDate           time.Time
		endDate, nextDate   *time.Time
		total               int
	)
	info := &o.TransferTransactionInformation
	err := rows.Scan(
		&o.ID, &o.PaymentType, &o.PaymentMode, &o.Status, &o.ServiceAgreementID,
		&o.Originator.Name, &originatorAccount, &info.Counterparty.Name, &counterpartyAccount,
		&info.InstructedAmount.Amount, &info.InstructedAmount.CurrencyCode, &info.RemittanceInformation,
		&s.TransferFrequency, &s.Every, &s.NonWorkingDayExecutionStrategy,
		&startDate, &endDate, &nextDate, &s.Repeat,
		&additions, &total,
	)
	if err != nil {
		return model.DTOPaymentOrder{}, 0, fmt.Errorf("failed to scan payment order: %w", err)
	}
	if err := json.Unmarshal(originatorAccount, &o.OriginatorAccount); err != nil {
		return model.DTOPaymentOrder{}, 0, fmt.Errorf("invalid originator account of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(counterpartyAccount, &info.CounterpartyAccount); err != nil {
		return model.DTOPaymentOrder{}, 0, fmt.Errorf("invalid counterparty account of %s: %w", o.ID, err)
	}

	s.StartDate = timex.NewDate(startDate)
	s.EndDate = datePtr(endDate)
	s.NextExecutionDate = datePtr(nextDate)
	o.Schedule = &s
	o.Additions = additions
	return o, total, nil
}

// UpdatePaymentOrder applies an execution result. Additions are merged into
// the stored ones; a nil value removes the key. A nil next execution date
// keeps the stored one unless the recurrence has ended.
func (r *OrderRepository) UpdatePaymentOrder(ctx context.Context, id string, u model.DTOOrderUpdate) error {
	update := func(ctx context.Context, tx connectionPool) (struct{}, error) {
		var stored map[string]string
		err := tx.QueryRow(ctx,
			`SELECT additions FROM payment_orders WHERE id = $1 FOR UPDATE`, id,
		).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return struct{}{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to lock payment order %s: %w", id, err)
		}

		merged, err := json.Marshal(mergeAdditions(stored, u.Additions))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to encode additions: %w", err)
		}

		var next *time.Time
		if u.NextExecutionDate != nil {
			next = &u.NextExecutionDate.Time
		}
		_, err = tx.Exec(ctx, `
UPDATE payment_orders
SET status = $2,
    bank_status = $3,
    next_execution_date = CASE WHEN $8::boolean THEN NULL
                               ELSE COALESCE($4, next_execution_date) END,
    additions = $5::jsonb,
    updated_at = $6,
    updated_by = $7
WHERE id = $1`,
			id, u.Status, u.BankStatus, next, string(merged), u.Audit.Timestamp, u.Audit.User,
			u.EndRecurrence,
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to update payment order %s: %w", id, err)
		}
		return struct{}{}, nil
	}

	runWithTX := func() (struct{}, error) {
		return WithTX(ctx, r.pool, r.log, update)
	}
	_, err := WithRetry(ctx, r.log, runWithTX)
	return err
}

func mergeAdditions(stored map[string]string, changes map[string]*string) map[string]string {
	merged := make(map[string]string, len(stored)+len(changes))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range changes {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}
	return merged
}

func datePtr(t *time.Time) *timex.Date {
	if t == nil {
		return nil
	}
	d := timex.NewDate(*t)
	return &d
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
