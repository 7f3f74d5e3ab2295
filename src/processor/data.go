// data.go
package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// Dashboard 在只读的基础表上按日期区间计算三个分析视图
type Dashboard struct {
	tables *Tables
}

func NewDashboard(tables *Tables) *Dashboard {
	return &Dashboard{tables: tables}
}

// Tables 返回底层只读表
func (d *Dashboard) Tables() *Tables { return d.tables }

// DateBounds 完整订单表中最早和最晚的下单日期，表为空时 ok=false
func (d *Dashboard) DateBounds() (r DateRange, ok bool, err error) {
	times, valid, err := purchaseTimes(d.tables.CompleteOrders)
	if err != nil {
		return DateRange{}, false, err
	}
	for i, t := range times {
		if !valid[i] {
			continue
		}
		if !ok {
			r = DateRange{Start: t, End: t}
			ok = true
			continue
		}
		if t.Before(r.Start) {
			r.Start = t
		}
		if t.After(r.End) {
			r.End = t
		}
	}
	return r, ok, nil
}

// Categories 区间内的类别销量排名
func (d *Dashboard) Categories(r DateRange) (CategoryRanking, error) {
	filtered, err := FilterByPurchaseDate(d.tables.CompleteOrders, r)
	if err != nil {
		return nil, err
	}
	return RankCategories(filtered)
}

// DeliveryReview 区间内配送天数与平均评分
func (d *Dashboard) DeliveryReview(r DateRange) (DeliveryReview, error) {
	filtered, err := FilterByPurchaseDate(d.tables.OrdersReviews, r)
	if err != nil {
		return DeliveryReview{}, err
	}
	return AggregateDeliveryReview(filtered)
}

// Heatmap 区间内订单目的地的热力图抽样
func (d *Dashboard) Heatmap(r DateRange, n int, opts ...SampleOption) (HeatSample, error) {
	filtered, err := FilterByPurchaseDate(d.tables.CustomerOrderGeo, r)
	if err != nil {
		return HeatSample{}, err
	}
	return BuildHeatmap(filtered, n, opts...)
}

// Metrics 区间内各表的行数
type Metrics struct {
	Range            string    `json:"range"`
	CompleteOrders   int       `json:"complete_orders"`
	OrdersReviews    int       `json:"orders_reviews"`
	CustomerOrderGeo int       `json:"customer_order_geo"`
	LoadedAt         time.Time `json:"loaded_at"`
}

// View 一次完整的看板计算结果
type View struct {
	Range      DateRange
	Metrics    Metrics
	Categories CategoryRanking
	Delivery   DeliveryReview
	Heat       *HeatSample
	// HeatErr 抽样失败（如样本不足）时记录，不影响其他视图
	HeatErr error
}

// Compute 计算全部视图。热力图样本不足只记录在 HeatErr 中，其他错误直接返回。
func (d *Dashboard) Compute(r DateRange, n int, opts ...SampleOption) (*View, error) {
	if err := ValidateSampleSize(n); err != nil {
		return nil, err
	}

	orders, err := FilterByPurchaseDate(d.tables.CompleteOrders, r)
	if err != nil {
		return nil, err
	}
	reviews, err := FilterByPurchaseDate(d.tables.OrdersReviews, r)
	if err != nil {
		return nil, err
	}
	geo, err := FilterByPurchaseDate(d.tables.CustomerOrderGeo, r)
	if err != nil {
		return nil, err
	}

	view := &View{
		Range:   r,
		Metrics: metricsOf(r, orders, reviews, geo, d.tables.LoadedAt),
	}
	if view.Categories, err = RankCategories(orders); err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	if view.Delivery, err = AggregateDeliveryReview(reviews); err != nil {
		return nil, fmt.Errorf("delivery review: %w", err)
	}

	heat, err := BuildHeatmap(geo, n, opts...)
	switch {
	case err == nil:
		view.Heat = &heat
	case errors.Is(err, ErrInsufficientSample):
		view.HeatErr = err
	default:
		return nil, fmt.Errorf("heatmap: %w", err)
	}
	return view, nil
}

func metricsOf(r DateRange, orders, reviews, geo dataframe.DataFrame, loadedAt time.Time) Metrics {
	return Metrics{
		Range:            r.String(),
		CompleteOrders:   orders.Nrow(),
		OrdersReviews:    reviews.Nrow(),
		CustomerOrderGeo: geo.Nrow(),
		LoadedAt:         loadedAt,
	}
}

// DefaultRange 未指定日期时使用完整订单表的日期范围
func (d *Dashboard) DefaultRange(start, end string) (DateRange, error) {
	bounds, ok, err := d.DateBounds()
	if err != nil {
		return DateRange{}, err
	}
	if start == "" && end == "" {
		if !ok {
			return DateRange{}, fmt.Errorf("%w: no purchase dates loaded", ErrDataSource)
		}
		return bounds, nil
	}
	if start == "" {
		start = bounds.Start.Format(DateLayout)
	}
	if end == "" {
		end = bounds.End.Format(DateLayout)
	}
	return ParseDateRange(start, end)
}
