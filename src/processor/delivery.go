package processor

import (
	"fmt"
	"math"
	"sort"

	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// DeliveryReviewPoint 某一配送天数下的平均评分
type DeliveryReviewPoint struct {
	DeliveryDays int     `json:"delivery_days"`
	ReviewScore  float64 `json:"review_score"`
	Orders       int     `json:"orders"`
}

// DeliveryReview 配送时长与评分的聚合结果
type DeliveryReview struct {
	Points []DeliveryReviewPoint `json:"points"`
	// Anomalies 送达早于下单（天数为负）的评分行数，数据质量问题，不做修正
	Anomalies int    `json:"anomalies"`
	Trend     *Trend `json:"trend,omitempty"`
}

// AggregateDeliveryReview 丢弃评分缺失的行，计算配送天数
// floor(送达时间 - 下单时间)，按天数分组求平均评分，天数升序。
// 送达时间缺失的行没有配送天数，不参与分组。输入表不会被修改。
func AggregateDeliveryReview(df dataframe.DataFrame) (DeliveryReview, error) {
	if missing := utils.MissingColumns(df, ColPurchaseTime, ColDeliveredTime, ColReviewScore); len(missing) > 0 {
		return DeliveryReview{}, fmt.Errorf("aggregate delivery review: column %q absent", missing[0])
	}
	result := DeliveryReview{Points: []DeliveryReviewPoint{}}
	if df.Nrow() == 0 {
		return result, nil
	}

	scored := utils.FilterRows(df, ColReviewScore, func(el series.Element) bool {
		return !el.IsNA() && !math.IsNaN(el.Float())
	})
	if scored.Nrow() == 0 {
		return result, nil
	}

	withDays, err := DeliveryDays(scored)
	if err != nil {
		return DeliveryReview{}, err
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[int]*bucket)
	days := withDays.Col(ColDeliveryDays)
	scores := withDays.Col(ColReviewScore).Float()
	for i := 0; i < days.Len(); i++ {
		el := days.Elem(i)
		if el.IsNA() {
			continue
		}
		d, err := el.Int()
		if err != nil {
			continue
		}
		if d < 0 {
			result.Anomalies++
		}
		b, ok := buckets[d]
		if !ok {
			b = &bucket{}
			buckets[d] = b
		}
		b.sum += scores[i]
		b.count++
	}

	keys := make([]int, 0, len(buckets))
	for d := range buckets {
		keys = append(keys, d)
	}
	sort.Ints(keys)

	for _, d := range keys {
		b := buckets[d]
		result.Points = append(result.Points, DeliveryReviewPoint{
			DeliveryDays: d,
			ReviewScore:  b.sum / float64(b.count),
			Orders:       b.count,
		})
	}
	if trend, ok := FitTrend(result.Points); ok {
		result.Trend = &trend
	}
	return result, nil
}

// DeliveryDays 返回追加了配送天数列的新表
func DeliveryDays(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	out, err := utils.SubSeriesDays(df, ColDeliveredTime, ColPurchaseTime, ColDeliveryDays)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("compute delivery days: %w", err)
	}
	return out, nil
}

// DataFrame 转换为配送天数 / 平均评分两列的表
func (d DeliveryReview) DataFrame() dataframe.DataFrame {
	days := make([]int, len(d.Points))
	scores := make([]float64, len(d.Points))
	orders := make([]int, len(d.Points))
	for i, p := range d.Points {
		days[i] = p.DeliveryDays
		scores[i] = p.ReviewScore
		orders[i] = p.Orders
	}
	return dataframe.New(
		series.New(days, series.Int, ColDeliveryDays),
		series.New(scores, series.Float, ColReviewScore),
		series.New(orders, series.Int, "orders"),
	)
}

// Trend 平均评分对配送天数的线性拟合 score = Intercept + Slope*days
type Trend struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

// FitTrend 对聚合后的点做最小二乘拟合，少于两个不同天数时无法拟合
func FitTrend(points []DeliveryReviewPoint) (Trend, bool) {
	if len(points) < 2 {
		return Trend{}, false
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.DeliveryDays)
		ys[i] = p.ReviewScore
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Trend{}, false
	}
	return Trend{Intercept: alpha, Slope: beta}, true
}

// At 拟合直线在 days 处的取值
func (t Trend) At(days float64) float64 {
	return t.Intercept + t.Slope*days
}
