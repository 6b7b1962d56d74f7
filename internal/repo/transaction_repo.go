package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talx-hub/payment-scheduler/internal/model"
)

type TransactionRepository struct {
	DB
}

func NewTransactionRepository(pool connectionPool, log *slog.Logger) *TransactionRepository {
	return &TransactionRepository{
		DB{
			pool: pool,
			log:  log,
		},
	}
}

func (r *TransactionRepository) RecordTransaction(ctx context.Context, rec model.DTOTransactionRecord,
) (model.DTOTransactionResponse, error) {
	id := uuid.New()
	insert := func() (model.DTOTransactionResponse, error) {
		_, err := r.pool.Exec(ctx, `
INSERT INTO scheduled_payment_transactions
    (id, scheduled_payment_order_id, bank_reference_id, status, amount,
     reason_code, reason_text, execution_date)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
			id, rec.ScheduledPaymentOrderID, rec.BankReferenceID, rec.Status, rec.Amount,
			rec.ReasonCode, rec.ReasonText, rec.ExecutionDate.Time,
		)
		if err != nil {
			return model.DTOTransactionResponse{},
				fmt.Errorf("failed to record transaction for order %s: %w", rec.ScheduledPaymentOrderID, err)
		}
		return model.DTOTransactionResponse{ID: id.String()}, nil
	}

	return WithRetry(ctx, r.log, insert)
}
