package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
	"github.com/talx-hub/payment-scheduler/internal/timex"
)

const (
	pathFilterOrders   = "/service-api/v2/payment-orders/filter"
	pathPaymentOrder   = "/service-api/v2/payment-orders/"
	pathValidateDate   = "/service-api/v1/scheduled-payment-orders/validate-execution-date"
	pathTransactions   = "/service-api/v1/scheduled-payment-orders/transactions"
	pathOutboundOrders = "/service-api/v1/payment-orders"
	pathLimitsCheck    = "/service-api/v2/limits/check"
)

// OrderClient talks to the payment order service.
type OrderClient struct {
	*HTTPClient
}

func NewOrderClient(c *HTTPClient) *OrderClient {
	return &OrderClient{c}
}

func (c *OrderClient) FetchDueOrders(ctx context.Context,
	from, size int, filter model.OrderFilter,
) (model.DTOFilterResponse, error) {
	var resp model.DTOFilterResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   pathFilterOrders,
		query: url.Values{
			"paymentMode": {model.PaymentModeRecurring},
			"from":        {strconv.Itoa(from)},
			"size":        {strconv.Itoa(size)},
		},
		body: filter,
		out:  &resp,
	})
	if err != nil {
		return model.DTOFilterResponse{}, fmt.Errorf("failed to filter payment orders: %w", err)
	}
	return resp, nil
}

func (c *OrderClient) UpdatePaymentOrder(ctx context.Context, id string, u model.DTOOrderUpdate) error {
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   pathPaymentOrder + url.PathEscape(id),
		query:  url.Values{"idType": {model.IDTypeInternal}},
		body:   u,
	})
	if err != nil {
		return fmt.Errorf("failed to update payment order %s: %w", id, err)
	}
	return nil
}

// ScheduledOrderClient talks to the scheduled payment order service, which
// owns date validation and the transaction history.
type ScheduledOrderClient struct {
	*HTTPClient
}

func NewScheduledOrderClient(c *HTTPClient) *ScheduledOrderClient {
	return &ScheduledOrderClient{c}
}

func (c *ScheduledOrderClient) ValidateExecutionDate(ctx context.Context, d timex.Date,
) (model.DTODateValidation, error) {
	var resp model.DTODateValidation
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   pathValidateDate,
		query:  url.Values{"executionDate": {d.String()}},
		out:    &resp,
	})
	if err != nil {
		return model.DTODateValidation{}, fmt.Errorf("failed to validate execution date %s: %w", d, err)
	}
	return resp, nil
}

func (c *ScheduledOrderClient) RecordTransaction(ctx context.Context, rec model.DTOTransactionRecord,
) (model.DTOTransactionResponse, error) {
	var resp model.DTOTransactionResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   pathTransactions,
		body:   rec,
		out:    &resp,
	})
	if err != nil {
		return model.DTOTransactionResponse{},
			fmt.Errorf("failed to record transaction for order %s: %w", rec.ScheduledPaymentOrderID, err)
	}
	return resp, nil
}

type OutboundClient struct {
	*HTTPClient
}

func NewOutboundClient(c *HTTPClient) *OutboundClient {
	return &OutboundClient{c}
}

func (c *OutboundClient) SubmitPaymentOrder(ctx context.Context, req model.DTOSubmissionRequest,
) (model.DTOSubmissionResponse, error) {
	var resp model.DTOSubmissionResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    pathOutboundOrders,
		headers: map[string]string{model.HeaderIdempotencyKey: req.IdempotencyKey},
		body:    req,
		out:     &resp,
	})
	if err != nil {
		return model.DTOSubmissionResponse{}, fmt.Errorf("failed to submit payment order %s: %w", req.ID, err)
	}
	return resp, nil
}

type LimitsClient struct {
	*HTTPClient
}

func NewLimitsClient(c *HTTPClient) *LimitsClient {
	return &LimitsClient{c}
}

// CheckLimits returns a *serviceerrs.LimitRejectedError when the service
// answers 409 or 422.
func (c *LimitsClient) CheckLimits(ctx context.Context, req model.DTOLimitCheckRequest) error {
	resp, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   pathLimitsCheck,
		body:   req,
	}, []int{http.StatusConflict, http.StatusUnprocessableEntity})
	if err != nil {
		return fmt.Errorf("failed to check limits: %w", err)
	}
	if resp == nil {
		return nil
	}

	var rejection model.DTOLimitRejection
	if err := json.Unmarshal(resp.body, &rejection); err != nil {
		c.log.LogAttrs(ctx,
			slog.LevelDebug,
			"limits rejection without a readable body",
			slog.Int("status", resp.statusCode),
		)
	}
	return &serviceerrs.LimitRejectedError{
		ReasonCode: rejection.ReasonCode,
		ReasonText: rejection.ReasonText,
	}
}
