package processor

import (
	"fmt"
	"time"

	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DateLayout 日期参数格式
const DateLayout = "2006-01-02"

// DateRange 闭区间日期范围，只取日期部分
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange 解析 "2006-01-02" 格式的起止日期
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return DateRange{Start: s, End: e}, nil
}

// Bounds 返回 [开始日 00:00:00, 结束日 23:59:59.999999]
func (r DateRange) Bounds() (lo, hi time.Time) {
	y, m, d := r.Start.Date()
	lo = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = r.End.Date()
	hi = time.Date(y, m, d, 23, 59, 59, 999999000, time.UTC)
	return lo, hi
}

// Empty 开始日期晚于结束日期时为空区间
func (r DateRange) Empty() bool {
	lo, hi := r.Bounds()
	return lo.After(hi)
}

// Contains 判断时间是否落在区间内，时间按无时区的钟面时间比较
func (r DateRange) Contains(t time.Time) bool {
	lo, hi := r.Bounds()
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return !wall.Before(lo) && !wall.After(hi)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// FilterByPurchaseDate 返回下单时间落在 r 内的行组成的新表。
// 开始日期晚于结束日期时返回空表；下单时间缺失的行不会被选中。
func FilterByPurchaseDate(df dataframe.DataFrame, r DateRange) (dataframe.DataFrame, error) {
	if !utils.HasColumn(df, ColPurchaseTime) {
		return dataframe.DataFrame{}, fmt.Errorf("filter by purchase date: column %q absent", ColPurchaseTime)
	}
	if r.Empty() || df.Nrow() == 0 {
		return utils.EmptyLike(df), nil
	}

	var parseErr error
	filtered := utils.FilterRows(df, ColPurchaseTime, func(el series.Element) bool {
		t, ok, err := utils.ParseTime(el)
		if err != nil {
			if parseErr == nil {
				parseErr = err
			}
			return false
		}
		return ok && r.Contains(t)
	})
	if parseErr != nil {
		return dataframe.DataFrame{}, fmt.Errorf("filter by purchase date: %w", parseErr)
	}
	return filtered, nil
}
