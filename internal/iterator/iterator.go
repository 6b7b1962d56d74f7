package iterator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talx-hub/payment-scheduler/internal/model"
	"github.com/talx-hub/payment-scheduler/internal/serviceerrs"
)

type OrderSource interface {
	FetchDueOrders(ctx context.Context, from, size int, filter model.OrderFilter,
	) (model.DTOFilterResponse, error)
}

// OrderPageIterator walks the due orders page by page. It is not safe for
// concurrent use.
type OrderPageIterator struct {
	source        OrderSource
	log           *slog.Logger
	filter        model.OrderFilter
	position      int
	pageSize      int
	totalElements int
	hasMore       bool
}

func New(source OrderSource, pageSize int, filter model.OrderFilter, log *slog.Logger,
) *OrderPageIterator {
	if pageSize < 1 {
		pageSize = model.DefaultPageSize
	}
	return &OrderPageIterator{
		source:   source,
		log:      log,
		filter:   filter,
		pageSize: pageSize,
		hasMore:  true,
	}
}

func (it *OrderPageIterator) HasNext() bool {
	return it.hasMore
}

// Next fetches the page at the current position. An empty page or a zero
// total ends the iteration; the empty batch is still returned.
func (it *OrderPageIterator) Next(ctx context.Context) ([]model.DTOPaymentOrder, error) {
	if !it.hasMore {
		return nil, serviceerrs.ErrExhaustedIterator
	}

	page, err := it.source.FetchDueOrders(ctx, it.position, it.pageSize, it.filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %d: %w", it.position, err)
	}
	it.totalElements = page.TotalElements

	if page.TotalElements == 0 || len(page.PaymentOrders) == 0 {
		it.hasMore = false
		it.log.LogAttrs(ctx,
			slog.LevelDebug,
			"no more scheduled payment orders",
			slog.Int("page", it.position),
		)
		return []model.DTOPaymentOrder{}, nil
	}

	it.log.LogAttrs(ctx,
		slog.LevelDebug,
		"fetched scheduled payment orders",
		slog.Int("page", it.position),
		slog.Int("count", len(page.PaymentOrders)),
		slog.Int("total", page.TotalElements),
	)
	it.position++
	return page.PaymentOrders, nil
}

// TotalElements is the total reported with the last fetched page.
func (it *OrderPageIterator) TotalElements() int {
	return it.totalElements
}
