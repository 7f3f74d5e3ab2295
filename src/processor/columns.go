package processor

import "github.com/go-gota/gota/series"

// 数据源名称
const (
	SourceCompleteOrders = "complete_orders"
	SourceCustomerGeo    = "customer_geo"
	SourceGeoReference   = "geo_reference"
	SourceOrdersGeo      = "orders_geo"
	SourceOrdersReviews  = "orders_reviews"
)

// 逻辑列名
const (
	ColOrderID       = "order_id"
	ColProductID     = "product_id"
	ColCategory      = "product_category_name"
	ColPurchaseTime  = "order_purchase_timestamp"
	ColDeliveredTime = "order_delivered_customer_date"
	ColReviewScore   = "review_score"
	ColCustomerID    = "customer_id"
	ColCustomerZip   = "customer_zip_code_prefix"
	ColGeoZip        = "geolocation_zip_code_prefix"
	ColLat           = "geolocation_lat"
	ColLng           = "geolocation_lng"
	ColIndex         = "index"
	ColDeliveryDays  = "time_between_purchase_and_delivery_days"
	ColSoldCount     = "sold_count"
)

// tableSchema 一个数据源的最小列约定
type tableSchema struct {
	columns    []string
	timestamps []string
	types      map[string]series.Type
}

var schemas = map[string]tableSchema{
	SourceCompleteOrders: {
		columns:    []string{ColOrderID, ColProductID, ColCategory, ColPurchaseTime},
		timestamps: []string{ColPurchaseTime},
	},
	SourceCustomerGeo: {
		columns: []string{ColCustomerID, ColCustomerZip},
	},
	SourceGeoReference: {
		columns: []string{ColGeoZip, ColLat, ColLng},
		types:   map[string]series.Type{ColLat: series.Float, ColLng: series.Float},
	},
	SourceOrdersGeo: {
		columns:    []string{ColCustomerID, ColOrderID, ColPurchaseTime},
		timestamps: []string{ColPurchaseTime},
	},
	SourceOrdersReviews: {
		columns:    []string{ColOrderID, ColPurchaseTime, ColDeliveredTime, ColReviewScore},
		timestamps: []string{ColPurchaseTime, ColDeliveredTime},
		types:      map[string]series.Type{ColReviewScore: series.Float},
	},
}

// RequiredSources 返回需要加载的全部数据源名称
func RequiredSources() []string {
	return []string{
		SourceCompleteOrders,
		SourceCustomerGeo,
		SourceGeoReference,
		SourceOrdersGeo,
		SourceOrdersReviews,
	}
}
