package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"OrderAtlas/src/config"
	"OrderAtlas/src/datasource/file"
	"OrderAtlas/src/storage"
	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
)

// 读取时视为缺失值的字符串
var nanValues = []string{"", "NA", "NaN", "nan", "null", "NULL", "<nil>"}

// Tables 加载并预处理后的只读表
type Tables struct {
	CompleteOrders   dataframe.DataFrame // 按下单时间排序
	CustomerOrderGeo dataframe.DataFrame // 客户、地理位置、订单的连接结果
	OrdersReviews    dataframe.DataFrame // 按下单时间排序
	LoadedAt         time.Time
}

// TableReader 读取一个命名数据源
type TableReader interface {
	ReadTable(ctx context.Context, name string, src config.SourceConfig, opts ...dataframe.LoadOption) (dataframe.DataFrame, error)
}

// RecordQuerier 以记录形式返回查询结果，*database.Reader 实现了该接口
type RecordQuerier interface {
	QueryRecords(ctx context.Context, query string) ([][]string, error)
}

// SourceReader 按数据源类型从文件或数据库读取
type SourceReader struct {
	Config *config.Config
	DB     RecordQuerier
}

func (r *SourceReader) ReadTable(ctx context.Context, name string, src config.SourceConfig, opts ...dataframe.LoadOption) (dataframe.DataFrame, error) {
	if src.Kind == "postgres" {
		if r.DB == nil {
			return dataframe.DataFrame{}, errors.New("postgres source without database connection")
		}
		records, err := r.DB.QueryRecords(ctx, src.Query)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		return utils.LoadRecords(records, opts...)
	}
	return file.ReadDataFrame(r.Config.SourcePath(src), src, opts...)
}

// TableCache 按数据源集合缓存加载结果，进程内不失效
type TableCache struct {
	mu     sync.Mutex
	tables map[string]*Tables
}

func NewTableCache() *TableCache {
	return &TableCache{tables: make(map[string]*Tables)}
}

var (
	defaultCacheOnce sync.Once
	defaultCache     *TableCache
)

// DefaultCache 返回进程级共享的缓存
func DefaultCache() *TableCache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewTableCache()
	})
	return defaultCache
}

// Len 返回缓存的数据源集合数量
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tables)
}

// Loader 加载五个数据源并生成只读表
type Loader struct {
	reader  TableReader
	columns *config.DataConfig
	cache   *TableCache
	logger  *storage.Logger
}

func NewLoader(reader TableReader, columns *config.DataConfig, cache *TableCache, logger *storage.Logger) *Loader {
	if cache == nil {
		cache = DefaultCache()
	}
	if logger == nil {
		logger = storage.Nop()
	}
	return &Loader{reader: reader, columns: columns, cache: cache, logger: logger}
}

// SourceKey 数据源集合的标识，与map遍历顺序无关
func SourceKey(sources map[string]config.SourceConfig) string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		src := sources[name]
		parts = append(parts, fmt.Sprintf("%s=%s:%s:%s:%d:%s", name, src.Kind, src.Path, src.Sheet, src.HeaderRow, src.Query))
	}
	return strings.Join(parts, ";")
}

// Load 返回缓存的表，首次调用时读取全部数据源。
// 整个加载过程持有缓存锁，同一数据源集合只读取一次。
func (l *Loader) Load(ctx context.Context, sources map[string]config.SourceConfig) (*Tables, error) {
	key := SourceKey(sources)

	l.cache.mu.Lock()
	defer l.cache.mu.Unlock()

	if t, ok := l.cache.tables[key]; ok {
		return t, nil
	}

	t1 := time.Now()
	t, err := l.load(ctx, sources)
	if err != nil {
		l.logger.Error("加载数据源失败", zap.Error(err))
		return nil, err
	}
	l.cache.tables[key] = t

	l.logger.Info("数据源加载完毕",
		zap.Int("completeOrders", t.CompleteOrders.Nrow()),
		zap.Int("customerOrderGeo", t.CustomerOrderGeo.Nrow()),
		zap.Int("ordersReviews", t.OrdersReviews.Nrow()),
		zap.Duration("duration", time.Since(t1)))
	return t, nil
}

func (l *Loader) load(ctx context.Context, sources map[string]config.SourceConfig) (*Tables, error) {
	frames := make(map[string]dataframe.DataFrame, len(schemas))
	for _, name := range RequiredSources() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, ok := sources[name]
		if !ok {
			return nil, &DataSourceError{Source: name, Err: errors.New("source not configured")}
		}
		df, err := l.readSource(ctx, name, src)
		if err != nil {
			return nil, err
		}
		frames[name] = df
	}

	completeOrders, err := arrangeByPurchaseTime(frames[SourceCompleteOrders])
	if err != nil {
		return nil, &DataSourceError{Source: SourceCompleteOrders, Column: ColPurchaseTime, Err: err}
	}
	ordersReviews, err := arrangeByPurchaseTime(frames[SourceOrdersReviews])
	if err != nil {
		return nil, &DataSourceError{Source: SourceOrdersReviews, Column: ColPurchaseTime, Err: err}
	}

	joined, err := JoinGeoOrders(frames[SourceCustomerGeo], frames[SourceGeoReference], frames[SourceOrdersGeo])
	if err != nil {
		return nil, err
	}

	return &Tables{
		CompleteOrders:   completeOrders,
		CustomerOrderGeo: joined,
		OrdersReviews:    ordersReviews,
		LoadedAt:         time.Now(),
	}, nil
}

// readSource 读取一个数据源：列名映射、类型转换、列校验、时间格式化
func (l *Loader) readSource(ctx context.Context, name string, src config.SourceConfig) (dataframe.DataFrame, error) {
	schema := schemas[name]

	types := make(map[string]series.Type, len(schema.types))
	for logical, t := range schema.types {
		types[l.columns.GetColumn(logical)] = t
	}
	opts := []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues),
		dataframe.WithTypes(types),
	}

	df, err := l.reader.ReadTable(ctx, name, src, opts...)
	if err != nil {
		return dataframe.DataFrame{}, &DataSourceError{Source: name, Err: err}
	}

	for _, logical := range schema.columns {
		physical := l.columns.GetColumn(logical)
		if physical != logical && utils.HasColumn(df, physical) {
			df = df.Rename(logical, physical)
		}
	}
	if missing := utils.MissingColumns(df, schema.columns...); len(missing) > 0 {
		return dataframe.DataFrame{}, &DataSourceError{Source: name, Column: missing[0], Err: errors.New("required column absent")}
	}
	df = df.Select(schema.columns)

	excelSerial := strings.EqualFold(src.Kind, file.KindXLSX)
	for _, col := range schema.timestamps {
		normalized, err := normalizeTimeColumn(df.Col(col), excelSerial)
		if err != nil {
			return dataframe.DataFrame{}, &DataSourceError{Source: name, Column: col, Err: err}
		}
		df = df.Mutate(normalized)
	}
	if df.Err != nil {
		return dataframe.DataFrame{}, &DataSourceError{Source: name, Err: df.Err}
	}
	return df, nil
}

// normalizeTimeColumn 返回新的时间列，原列不变
func normalizeTimeColumn(s series.Series, excelSerial bool) (series.Series, error) {
	records := s.Records()
	out := make([]string, len(records))
	for i, v := range records {
		ts, ok, err := file.NormalizeTimestamp(v, excelSerial)
		if err != nil {
			return series.Series{}, fmt.Errorf("row %d: %w", i, err)
		}
		if !ok {
			out[i] = utils.NaN
			continue
		}
		out[i] = ts
	}
	return series.New(out, series.String, s.Name), nil
}
