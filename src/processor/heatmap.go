package processor

import (
	"fmt"
	"math"
	"math/rand/v2"

	"OrderAtlas/src/config"
	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// GeoPoint 经纬度坐标
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HeatSample 热力图抽样结果，Center 是样本点的平均经纬度
type HeatSample struct {
	Points     []GeoPoint `json:"points"`
	Center     GeoPoint   `json:"center"`
	Population int        `json:"population"`
}

type sampleOptions struct {
	seeded bool
	seed   uint64
}

// SampleOption 抽样选项
type SampleOption func(*sampleOptions)

// WithSeed 固定随机种子，相同输入得到相同样本
func WithSeed(seed uint64) SampleOption {
	return func(o *sampleOptions) {
		o.seeded = true
		o.seed = seed
	}
}

// ValidateSampleSize 检查用户输入的抽样数量是否在 [500, 100000] 内
func ValidateSampleSize(n int) error {
	if n < config.MinSampleSize || n > config.MaxSampleSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrSampleSizeOutOfRange, n, config.MinSampleSize, config.MaxSampleSize)
	}
	return nil
}

// BuildHeatmap 从 df 中无放回均匀抽取 n 行，返回样本坐标和样本中心。
// 经纬度缺失的行不参与抽样；n 大于可抽样行数时返回 *InsufficientSampleSizeError。
func BuildHeatmap(df dataframe.DataFrame, n int, opts ...SampleOption) (HeatSample, error) {
	if missing := utils.MissingColumns(df, ColLat, ColLng); len(missing) > 0 {
		return HeatSample{}, fmt.Errorf("build heatmap: column %q absent", missing[0])
	}
	if n < 1 {
		return HeatSample{}, fmt.Errorf("%w: %d", ErrSampleSizeOutOfRange, n)
	}

	var o sampleOptions
	for _, opt := range opts {
		opt(&o)
	}

	lats := df.Col(ColLat).Float()
	lngs := df.Col(ColLng).Float()
	population := make([]int, 0, len(lats))
	for i := range lats {
		if math.IsNaN(lats[i]) || math.IsNaN(lngs[i]) {
			continue
		}
		population = append(population, i)
	}

	if n > len(population) {
		return HeatSample{}, &InsufficientSampleSizeError{Requested: n, Population: len(population)}
	}

	rng := newRand(o)
	// 部分 Fisher-Yates 洗牌，前 n 个即为样本
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(population)-i)
		population[i], population[j] = population[j], population[i]
	}

	sample := HeatSample{
		Points:     make([]GeoPoint, n),
		Population: len(population),
	}
	sampleLats := make([]float64, n)
	sampleLngs := make([]float64, n)
	for k, row := range population[:n] {
		sample.Points[k] = GeoPoint{Lat: lats[row], Lng: lngs[row]}
		sampleLats[k] = lats[row]
		sampleLngs[k] = lngs[row]
	}
	sample.Center = GeoPoint{
		Lat: stat.Mean(sampleLats, nil),
		Lng: stat.Mean(sampleLngs, nil),
	}
	return sample, nil
}

func newRand(o sampleOptions) *rand.Rand {
	if o.seeded {
		return rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Pairs 以 [lat, lng] 形式返回样本点，供热力图渲染
func (h HeatSample) Pairs() [][2]float64 {
	out := make([][2]float64, len(h.Points))
	for i, p := range h.Points {
		out[i] = [2]float64{p.Lat, p.Lng}
	}
	return out
}

// DataFrame 转换为经纬度两列的表
func (h HeatSample) DataFrame() dataframe.DataFrame {
	lats := make([]float64, len(h.Points))
	lngs := make([]float64, len(h.Points))
	for i, p := range h.Points {
		lats[i], lngs[i] = p.Lat, p.Lng
	}
	return dataframe.New(
		series.New(lats, series.Float, ColLat),
		series.New(lngs, series.Float, ColLng),
	)
}
