package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"OrderAtlas/src/config"
	"OrderAtlas/src/storage"

	"github.com/go-gota/gota/dataframe"
)

var fixtureFiles = map[string]string{
	SourceCompleteOrders: `order_id,product_id,product_category_name,order_purchase_timestamp,price
o2,p2,books,2018-01-02T09:00:00,10.5
o1,p1,toys,2018-01-01 10:00:00,3
o3,p1,toys,2018-01-03 10:00,3
o4,p1,toys,2018-01-03,3
`,
	SourceCustomerGeo: `customer_id,customer_zip_code_prefix
c1,100
c2,200
`,
	SourceGeoReference: `geolocation_zip_code_prefix,geolocation_lat,geolocation_lng
100,-23.5,-46.6
100,-23.6,-46.7
200,-10.0,-40.0
`,
	SourceOrdersGeo: `customer_id,order_id,order_purchase_timestamp
c2,o2,2018-01-02 09:00:00
c1,o1,2018-01-01 10:00:00
`,
	SourceOrdersReviews: `order_id,order_purchase_timestamp,order_delivered_customer_date,review_score
o1,2018-01-01 10:00:00,2018-01-04 10:00:00,5
o2,2018-01-02 09:00:00,,
`,
}

// writeFixtures 把测试数据写入临时目录，返回对应的配置
func writeFixtures(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir, Sources: make(map[string]config.SourceConfig)}
	for name, content := range files {
		path := name + ".csv"
		if err := os.WriteFile(filepath.Join(dir, path), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg.Sources[name] = config.SourceConfig{Kind: "csv", Path: path}
	}
	return cfg
}

func copyFixtures() map[string]string {
	out := make(map[string]string, len(fixtureFiles))
	for k, v := range fixtureFiles {
		out[k] = v
	}
	return out
}

func TestLoaderLoad(t *testing.T) {
	cfg := writeFixtures(t, fixtureFiles)
	loader := NewLoader(&SourceReader{Config: cfg}, nil, NewTableCache(), storage.Nop())

	tables, err := loader.Load(context.Background(), cfg.Sources)
	if err != nil {
		t.Fatal(err)
	}

	orders := tables.CompleteOrders
	if orders.Nrow() != 4 {
		t.Fatalf("complete orders rows = %d, want 4", orders.Nrow())
	}
	if names := orders.Names(); len(names) != 5 {
		t.Errorf("complete orders columns = %v, want contract columns plus index", names)
	}
	wantTimes := []string{
		"2018-01-01 10:00:00",
		"2018-01-02 09:00:00",
		"2018-01-03 00:00:00",
		"2018-01-03 10:00:00",
	}
	gotTimes := column(orders, ColPurchaseTime)
	for i := range wantTimes {
		if gotTimes[i] != wantTimes[i] {
			t.Fatalf("purchase times = %v, want %v", gotTimes, wantTimes)
		}
	}

	if tables.CustomerOrderGeo.Nrow() != 3 {
		t.Errorf("customer order geo rows = %d, want 3", tables.CustomerOrderGeo.Nrow())
	}
	if got := column(tables.CustomerOrderGeo, ColOrderID); got[0] != "o1" || got[2] != "o2" {
		t.Errorf("customer order geo order = %v", got)
	}

	reviews := tables.OrdersReviews
	if reviews.Nrow() != 2 {
		t.Fatalf("reviews rows = %d, want 2", reviews.Nrow())
	}
	if !reviews.Col(ColDeliveredTime).Elem(1).IsNA() || !reviews.Col(ColReviewScore).Elem(1).IsNA() {
		t.Errorf("expected missing values in second review: %v", reviews.Records())
	}
}

type countingReader struct {
	inner TableReader
	calls int
}

func (r *countingReader) ReadTable(ctx context.Context, name string, src config.SourceConfig, opts ...dataframe.LoadOption) (dataframe.DataFrame, error) {
	r.calls++
	return r.inner.ReadTable(ctx, name, src, opts...)
}

func TestLoaderLoadCached(t *testing.T) {
	cfg := writeFixtures(t, fixtureFiles)
	reader := &countingReader{inner: &SourceReader{Config: cfg}}
	cache := NewTableCache()
	loader := NewLoader(reader, nil, cache, nil)

	first, err := loader.Load(context.Background(), cfg.Sources)
	if err != nil {
		t.Fatal(err)
	}
	second, err := loader.Load(context.Background(), cfg.Sources)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second Load returned a different table set")
	}
	if reader.calls != len(RequiredSources()) {
		t.Errorf("reader calls = %d, want %d", reader.calls, len(RequiredSources()))
	}
	if cache.Len() != 1 {
		t.Errorf("cache size = %d, want 1", cache.Len())
	}
}

func TestLoaderMissingSource(t *testing.T) {
	files := copyFixtures()
	delete(files, SourceOrdersReviews)
	cfg := writeFixtures(t, files)
	loader := NewLoader(&SourceReader{Config: cfg}, nil, NewTableCache(), nil)

	_, err := loader.Load(context.Background(), cfg.Sources)
	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) || dsErr.Source != SourceOrdersReviews {
		t.Fatalf("err = %v, want DataSourceError for %s", err, SourceOrdersReviews)
	}
	if !errors.Is(err, ErrDataSource) {
		t.Error("errors.Is(err, ErrDataSource) = false")
	}
}

func TestLoaderUnreadableFile(t *testing.T) {
	cfg := writeFixtures(t, fixtureFiles)
	if err := os.Remove(filepath.Join(cfg.DataDir, SourceGeoReference+".csv")); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(&SourceReader{Config: cfg}, nil, NewTableCache(), nil)

	_, err := loader.Load(context.Background(), cfg.Sources)
	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) || dsErr.Source != SourceGeoReference {
		t.Fatalf("err = %v, want DataSourceError for %s", err, SourceGeoReference)
	}
}

func TestLoaderMissingColumn(t *testing.T) {
	files := copyFixtures()
	files[SourceOrdersReviews] = "order_id,order_purchase_timestamp,review_score\no1,2018-01-01 10:00:00,5\n"
	cfg := writeFixtures(t, files)
	loader := NewLoader(&SourceReader{Config: cfg}, nil, NewTableCache(), nil)

	_, err := loader.Load(context.Background(), cfg.Sources)
	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("err = %v, want DataSourceError", err)
	}
	if dsErr.Source != SourceOrdersReviews || dsErr.Column != ColDeliveredTime {
		t.Errorf("err = %+v", dsErr)
	}
}

func TestLoaderBadTimestamp(t *testing.T) {
	files := copyFixtures()
	files[SourceOrdersGeo] = "customer_id,order_id,order_purchase_timestamp\nc1,o1,yesterday\n"
	cfg := writeFixtures(t, files)
	loader := NewLoader(&SourceReader{Config: cfg}, nil, NewTableCache(), nil)

	_, err := loader.Load(context.Background(), cfg.Sources)
	var dsErr *DataSourceError
	if !errors.As(err, &dsErr) || dsErr.Column != ColPurchaseTime {
		t.Fatalf("err = %v, want DataSourceError on %s", err, ColPurchaseTime)
	}
}

func TestLoaderColumnMapping(t *testing.T) {
	files := copyFixtures()
	files[SourceCustomerGeo] = "customer_id,zip_prefix\nc1,100\nc2,200\n"
	cfg := writeFixtures(t, files)
	columns := &config.DataConfig{}
	columns.SetColumn(ColCustomerZip, "zip_prefix")
	loader := NewLoader(&SourceReader{Config: cfg}, columns, NewTableCache(), nil)

	tables, err := loader.Load(context.Background(), cfg.Sources)
	if err != nil {
		t.Fatal(err)
	}
	if tables.CustomerOrderGeo.Nrow() != 3 {
		t.Errorf("customer order geo rows = %d, want 3", tables.CustomerOrderGeo.Nrow())
	}
}

type fakeQuerier struct {
	records [][]string
	query   string
}

func (q *fakeQuerier) QueryRecords(ctx context.Context, query string) ([][]string, error) {
	q.query = query
	return q.records, nil
}

func TestSourceReaderPostgres(t *testing.T) {
	db := &fakeQuerier{records: [][]string{
		{ColCustomerID, ColCustomerZip},
		{"c1", "100"},
	}}
	reader := &SourceReader{Config: &config.Config{}, DB: db}
	src := config.SourceConfig{Kind: "postgres", Query: "SELECT customer_id, customer_zip_code_prefix FROM customers"}

	df, err := reader.ReadTable(context.Background(), SourceCustomerGeo, src)
	if err != nil {
		t.Fatal(err)
	}
	if df.Nrow() != 1 || !strings.HasPrefix(db.query, "SELECT") {
		t.Errorf("df = %v, query = %q", df, db.query)
	}

	if _, err := (&SourceReader{Config: &config.Config{}}).ReadTable(context.Background(), SourceCustomerGeo, src); err == nil {
		t.Error("expected error without a database connection")
	}
}

func TestLoaderCanceled(t *testing.T) {
	cfg := writeFixtures(t, fixtureFiles)
	loader := NewLoader(&SourceReader{Config: cfg}, nil, NewTableCache(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.Load(ctx, cfg.Sources); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSourceKeyOrderIndependent(t *testing.T) {
	a := map[string]config.SourceConfig{"x": {Path: "x.csv"}, "y": {Path: "y.csv"}}
	b := map[string]config.SourceConfig{"y": {Path: "y.csv"}, "x": {Path: "x.csv"}}
	if SourceKey(a) != SourceKey(b) {
		t.Error("SourceKey depends on map order")
	}
	b["y"] = config.SourceConfig{Path: "z.csv"}
	if SourceKey(a) == SourceKey(b) {
		t.Error("SourceKey ignores source paths")
	}
}
