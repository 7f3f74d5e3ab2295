package utils

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// TimeLayout 统一的时间格式，不带时区
const TimeLayout = "2006-01-02 15:04:05"

// NaN 是 gota 中缺失值的字符串表示
const NaN = "NaN"

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// MissingColumns 返回 df 中不存在的列名
func MissingColumns(df dataframe.DataFrame, names ...string) []string {
	var missing []string
	for _, name := range names {
		if !HasColumn(df, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// ParseTime 解析统一格式的时间元素，缺失值返回 ok=false
func ParseTime(s series.Element) (t time.Time, ok bool, err error) {
	if s.IsNA() || s.String() == "" || s.String() == NaN {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(TimeLayout, s.String())
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// FloorDays 返回 d 向下取整后的天数，负值同样向负无穷取整
func FloorDays(d time.Duration) int {
	const day = 24 * time.Hour
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// SubSeriesDays 计算 colEnd - colStart 的天数差，结果作为新列 colOut 追加到新的 DataFrame 中。
// 输入 df 不会被修改，任一时间缺失时结果为 NaN。
func SubSeriesDays(df dataframe.DataFrame, colEnd, colStart, colOut string) (dataframe.DataFrame, error) {
	end := df.Col(colEnd)
	start := df.Col(colStart)

	days := make([]string, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		endTime, okEnd, err := ParseTime(end.Elem(i))
		if err != nil {
			return df, fmt.Errorf("failed to parse end time at row %d: %w", i, err)
		}
		startTime, okStart, err := ParseTime(start.Elem(i))
		if err != nil {
			return df, fmt.Errorf("failed to parse start time at row %d: %w", i, err)
		}
		if !okEnd || !okStart {
			days = append(days, NaN)
			continue
		}
		days = append(days, strconv.Itoa(FloorDays(endTime.Sub(startTime))))
	}

	return df.Mutate(series.New(days, series.Int, colOut)), nil
}

// EmptyLike 返回与 df 列名、列类型一致的空表
func EmptyLike(df dataframe.DataFrame) dataframe.DataFrame {
	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, series.New([]string{}, df.Col(name).Type(), name))
	}
	return dataframe.New(cols...)
}

// SubsetRows 按行号取子集，空行号返回同结构的空表
func SubsetRows(df dataframe.DataFrame, idx []int) dataframe.DataFrame {
	if len(idx) == 0 {
		return EmptyLike(df)
	}
	return df.Subset(idx)
}

// WithIndex 重新生成从 0 开始的连续行号列
func WithIndex(df dataframe.DataFrame, colName string) dataframe.DataFrame {
	idx := make([]int, df.Nrow())
	for i := range idx {
		idx[i] = i
	}
	return df.Mutate(series.New(idx, series.Int, colName))
}

// WriteSheet 将DataFrame写入工作簿中的指定工作表，首行为列名
func WriteSheet(f *excelize.File, sheetName string, df dataframe.DataFrame) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("创建工作表 %s 失败: %w", sheetName, err)
	}

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	// 写入数据
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, cellValue(col.Elem(rowIdx))); err != nil {
				return err
			}
		}
	}
	return nil
}

func cellValue(e series.Element) interface{} {
	if e.IsNA() {
		return ""
	}
	switch e.Type() {
	case series.Float:
		v := e.Float()
		if math.IsNaN(v) {
			return ""
		}
		return v
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return ""
		}
		return v
	default:
		return e.String()
	}
}

// FilterRows 保留 pred 为 true 的行，返回新表。
// 没有匹配行时返回同结构的空表。
func FilterRows(df dataframe.DataFrame, colName string, pred func(el series.Element) bool) dataframe.DataFrame {
	col := df.Col(colName)
	matched := 0
	for i := 0; i < col.Len(); i++ {
		if pred(col.Elem(i)) {
			matched++
		}
	}
	if matched == 0 {
		return EmptyLike(df)
	}
	if matched == df.Nrow() {
		return df.Copy()
	}

	return df.Filter(
		dataframe.F{
			Colname:    colName,
			Comparator: series.CompFunc,
			Comparando: pred,
		},
	)
}

// LoadRecords 与 dataframe.LoadRecords 相同，首行为列名。
// 只有列名没有数据行时返回同结构的空表而不是错误。
func LoadRecords(records [][]string, opts ...dataframe.LoadOption) (dataframe.DataFrame, error) {
	if len(records) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("load records: no header row")
	}
	headerOnly := len(records) == 1
	if headerOnly {
		// gota 不接受没有数据行的记录，借一行空数据推断列类型
		records = [][]string{records[0], make([]string, len(records[0]))}
	}

	df := dataframe.LoadRecords(records, opts...)
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	if headerOnly {
		return EmptyLike(df), nil
	}
	return df, nil
}
