package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
)

const topItemsLimit = 5

// SalesReportRequest bounds a report; dates are whole days
type SalesReportRequest struct {
	From time.Time `form:"from" time_format:"2006-01-02"`
	To   time.Time `form:"to" time_format:"2006-01-02"`
}

// TopItem is one line of the best sellers table
type TopItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// SalesSummary aggregates completed orders of a period
type SalesSummary struct {
	From              time.Time       `json:"from,omitempty"`
	To                time.Time       `json:"to,omitempty"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	OrderCount        int             `json:"order_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	TaxCollected      decimal.Decimal `json:"tax_collected"`
	TopItems          []TopItem       `json:"top_items"`
	PaymentMethods    map[string]int  `json:"payment_methods"`
}

type ReportService struct {
	orders OrderLister
}

func NewReportService(orders OrderLister) *ReportService {
	return &ReportService{orders: orders}
}

// SalesSummary reads the tenant's completed orders in range and aggregates
// them. Nothing is stored.
func (s *ReportService) SalesSummary(ctx context.Context, tenantID string, req SalesReportRequest) (*SalesSummary, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.SalesSummary", tenantID)
	var err error
	defer func() { util.EndSpan(span, err) }()

	to := inclusiveEnd(req.To)
	if !req.From.IsZero() && !to.IsZero() && to.Before(req.From) {
		err = invalid("date range ends before it starts")
		return nil, err
	}

	orders, err := s.orders.ListOrders(ctx, tenantID, store.OrderFilter{
		Statuses: []string{models.OrderStatusCompleted},
		From:     req.From,
		To:       to,
	})
	if err != nil {
		err = fmt.Errorf("failed to load orders: %w", err)
		return nil, err
	}

	summary := Summarize(orders)
	summary.From = req.From
	summary.To = to
	return summary, nil
}

// Summarize aggregates orders as given; callers pick which ones count
func Summarize(orders []models.Order) *SalesSummary {
	summary := &SalesSummary{
		TotalSales:        decimal.Zero,
		AverageOrderValue: decimal.Zero,
		TaxCollected:      decimal.Zero,
		TopItems:          []TopItem{},
		PaymentMethods:    make(map[string]int),
	}

	items := make(map[string]*TopItem)
	for _, o := range orders {
		summary.OrderCount++
		summary.TotalSales = summary.TotalSales.Add(o.Total)
		summary.TaxCollected = summary.TaxCollected.Add(o.Tax)
		summary.PaymentMethods[o.PaymentMethod]++

		for _, it := range o.Items {
			variantID := ""
			if it.VariantID != nil {
				variantID = *it.VariantID
			}
			key := StockKey(it.ProductID, variantID)
			top, ok := items[key]
			if !ok {
				top = &TopItem{ProductID: it.ProductID, VariantID: variantID, Name: it.Name, Revenue: decimal.Zero}
				items[key] = top
			}
			top.Quantity += it.Quantity
			top.Revenue = top.Revenue.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}

	if summary.OrderCount > 0 {
		summary.AverageOrderValue = summary.TotalSales.
			Div(decimal.NewFromInt(int64(summary.OrderCount))).
			Round(2)
	}

	for _, top := range items {
		summary.TopItems = append(summary.TopItems, *top)
	}
	sort.Slice(summary.TopItems, func(i, j int) bool {
		a, b := summary.TopItems[i], summary.TopItems[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.Name < b.Name
	})
	if len(summary.TopItems) > topItemsLimit {
		summary.TopItems = summary.TopItems[:topItemsLimit]
	}
	return summary
}
