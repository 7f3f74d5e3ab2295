package processor

import (
	"math"
	"testing"

	"github.com/go-gota/gota/series"
)

var reviewTypes = map[string]series.Type{ColReviewScore: series.Float}

func reviewsFrame(rows ...[]string) [][]string {
	return append([][]string{{ColOrderID, ColPurchaseTime, ColDeliveredTime, ColReviewScore}}, rows...)
}

func TestAggregateDeliveryReviewScenario(t *testing.T) {
	df := frame(t, reviewTypes, reviewsFrame(
		[]string{"o1", "2024-01-01 00:00:00", "2024-01-04 00:00:00", "5"},
		[]string{"o2", "2024-01-01 00:00:00", "2024-01-04 00:00:00", "3"},
	)...)

	got, err := AggregateDeliveryReview(df)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Points) != 1 {
		t.Fatalf("points = %+v, want one", got.Points)
	}
	p := got.Points[0]
	if p.DeliveryDays != 3 || p.ReviewScore != 4.0 || p.Orders != 2 {
		t.Errorf("point = %+v, want {3 4 2}", p)
	}
	if got.Trend != nil {
		t.Errorf("trend = %+v, want nil for a single point", got.Trend)
	}
}

func TestAggregateDeliveryReviewDropsMissingScores(t *testing.T) {
	df := frame(t, reviewTypes, reviewsFrame(
		[]string{"o1", "2024-01-01 00:00:00", "2024-01-02 00:00:00", "4"},
		[]string{"o2", "2024-01-01 00:00:00", "2024-01-02 00:00:00", ""},
		[]string{"o3", "2024-01-01 00:00:00", "2024-01-02 00:00:00", "2"},
	)...)

	got, err := AggregateDeliveryReview(df)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Points) != 1 || got.Points[0].ReviewScore != 3 || got.Points[0].Orders != 2 {
		t.Errorf("points = %+v", got.Points)
	}
}

func TestAggregateDeliveryReviewAllScoresMissing(t *testing.T) {
	df := frame(t, reviewTypes, reviewsFrame(
		[]string{"o1", "2024-01-01 00:00:00", "2024-01-02 00:00:00", ""},
		[]string{"o2", "2024-01-01 00:00:00", "2024-01-03 00:00:00", "NaN"},
	)...)

	got, err := AggregateDeliveryReview(df)
	if err != nil {
		t.Fatal(err)
	}
	if got.Points == nil || len(got.Points) != 0 {
		t.Errorf("points = %#v, want empty non-nil slice", got.Points)
	}
}

func TestAggregateDeliveryReviewFloorAndOrder(t *testing.T) {
	df := frame(t, reviewTypes, reviewsFrame(
		// 2 天 23 小时 向下取整为 2
		[]string{"o1", "2024-01-01 01:00:00", "2024-01-04 00:00:00", "5"},
		[]string{"o2", "2024-01-01 00:00:00", "2024-01-11 00:00:00", "1"},
		[]string{"o3", "2024-01-01 00:00:00", "2024-01-03 12:00:00", "3"},
		// 未送达
		[]string{"o4", "2024-01-01 00:00:00", "", "5"},
	)...)

	got, err := AggregateDeliveryReview(df)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Points) != 2 {
		t.Fatalf("points = %+v", got.Points)
	}
	if got.Points[0].DeliveryDays != 2 || got.Points[0].ReviewScore != 4 {
		t.Errorf("first point = %+v, want {2 4 2}", got.Points[0])
	}
	if got.Points[1].DeliveryDays != 10 || got.Points[1].ReviewScore != 1 {
		t.Errorf("second point = %+v, want {10 1 1}", got.Points[1])
	}

	if got.Trend == nil {
		t.Fatal("expected a trend for two points")
	}
	if math.Abs(got.Trend.Slope-(-0.375)) > 1e-9 || math.Abs(got.Trend.At(2)-4) > 1e-9 {
		t.Errorf("trend = %+v", got.Trend)
	}
}

func TestAggregateDeliveryReviewNegativeDays(t *testing.T) {
	df := frame(t, reviewTypes, reviewsFrame(
		[]string{"o1", "2024-01-05 00:00:00", "2024-01-03 12:00:00", "1"},
		[]string{"o2", "2024-01-01 00:00:00", "2024-01-02 00:00:00", "5"},
	)...)

	got, err := AggregateDeliveryReview(df)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Points) != 2 || got.Points[0].DeliveryDays != -2 {
		t.Errorf("points = %+v, want a -2 day bucket first", got.Points)
	}
	if got.Anomalies != 1 {
		t.Errorf("anomalies = %d, want 1", got.Anomalies)
	}
}

func TestAggregateDeliveryReviewLeavesInputUntouched(t *testing.T) {
	df := frame(t, reviewTypes, reviewsFrame(
		[]string{"o1", "2024-01-01 00:00:00", "2024-01-04 00:00:00", "5"},
	)...)
	before := df.Names()

	if _, err := AggregateDeliveryReview(df); err != nil {
		t.Fatal(err)
	}
	after := df.Names()
	if len(before) != len(after) {
		t.Fatalf("columns changed: %v -> %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("columns changed: %v -> %v", before, after)
		}
	}
}

func TestAggregateDeliveryReviewMissingColumn(t *testing.T) {
	df := frame(t, nil, []string{ColOrderID, ColPurchaseTime}, []string{"o1", "2024-01-01 00:00:00"})
	if _, err := AggregateDeliveryReview(df); err == nil {
		t.Error("expected error for missing columns")
	}
}

func TestFitTrend(t *testing.T) {
	if _, ok := FitTrend([]DeliveryReviewPoint{{DeliveryDays: 1, ReviewScore: 5}}); ok {
		t.Error("single point should not fit")
	}
	trend, ok := FitTrend([]DeliveryReviewPoint{
		{DeliveryDays: 0, ReviewScore: 5},
		{DeliveryDays: 2, ReviewScore: 4},
		{DeliveryDays: 4, ReviewScore: 3},
	})
	if !ok {
		t.Fatal("expected fit")
	}
	if math.Abs(trend.Intercept-5) > 1e-9 || math.Abs(trend.Slope+0.5) > 1e-9 {
		t.Errorf("trend = %+v, want intercept 5 slope -0.5", trend)
	}
}
