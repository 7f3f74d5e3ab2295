package processor

import (
	"fmt"
	"sort"

	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// CategoryCount 一个商品类别的销量
type CategoryCount struct {
	Name      string `json:"product_category_name"`
	Missing   bool   `json:"missing,omitempty"` // 类别名缺失的行单独成组
	SoldCount int    `json:"sold_count"`
}

// CategoryRanking 按销量降序排列的类别
type CategoryRanking []CategoryCount

// RankCategories 按类别名分组统计行数（同一商品重复出现也分别计数），按销量降序。
// 销量相同时保持类别首次出现的顺序。
func RankCategories(df dataframe.DataFrame) (CategoryRanking, error) {
	if missing := utils.MissingColumns(df, ColCategory, ColProductID); len(missing) > 0 {
		return nil, fmt.Errorf("rank categories: column %q absent", missing[0])
	}

	type groupKey struct {
		name    string
		missing bool
	}
	positions := make(map[groupKey]int)
	ranking := CategoryRanking{}

	col := df.Col(ColCategory)
	for i := 0; i < col.Len(); i++ {
		el := col.Elem(i)
		key := groupKey{missing: el.IsNA()}
		if !key.missing {
			key.name = el.String()
		}
		pos, ok := positions[key]
		if !ok {
			pos = len(ranking)
			positions[key] = pos
			ranking = append(ranking, CategoryCount{Name: key.name, Missing: key.missing})
		}
		ranking[pos].SoldCount++
	}

	sort.SliceStable(ranking, func(a, b int) bool {
		return ranking[a].SoldCount > ranking[b].SoldCount
	})
	return ranking, nil
}

// Total 所有类别销量之和，等于输入行数
func (r CategoryRanking) Total() int {
	total := 0
	for _, c := range r {
		total += c.SoldCount
	}
	return total
}

// Best 销量最高的 n 个类别
func (r CategoryRanking) Best(n int) CategoryRanking {
	if n > len(r) {
		n = len(r)
	}
	if n < 0 {
		n = 0
	}
	return append(CategoryRanking{}, r[:n]...)
}

// Worst 销量最低的 n 个类别，销量升序（最差的在前）
func (r CategoryRanking) Worst(n int) CategoryRanking {
	if n > len(r) {
		n = len(r)
	}
	if n < 0 {
		n = 0
	}
	tail := r[len(r)-n:]
	out := make(CategoryRanking, 0, n)
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	return out
}

// DataFrame 转换为 product_category_name / sold_count 两列的表
func (r CategoryRanking) DataFrame() dataframe.DataFrame {
	names := make([]string, len(r))
	counts := make([]int, len(r))
	for i, c := range r {
		names[i] = c.Name
		if c.Missing {
			names[i] = utils.NaN
		}
		counts[i] = c.SoldCount
	}
	return dataframe.New(
		series.New(names, series.String, ColCategory),
		series.New(counts, series.Int, ColSoldCount),
	)
}
