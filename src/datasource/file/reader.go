// reader.go
package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"OrderAtlas/src/config"
	"OrderAtlas/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/parquet-go/parquet-go"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// 支持的文件格式
const (
	KindCSV     = "csv"
	KindXLSX    = "xlsx"
	KindParquet = "parquet"
)

const Number string = "^[0-9]+(\\.[0-9]+)?$"

var serialRe = regexp.MustCompile(Number)

// ReadDataFrame 按 src.Kind 读取文件并转换为 DataFrame，opts 控制列类型和缺失值
func ReadDataFrame(path string, src config.SourceConfig, opts ...dataframe.LoadOption) (dataframe.DataFrame, error) {
	switch strings.ToLower(src.Kind) {
	case "", KindCSV:
		return ReadCSV(path, src, opts...)
	case KindXLSX:
		records, err := ReadXLSX(path, src.Sheet, src.HeaderRow)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		return utils.LoadRecords(records, opts...)
	case KindParquet:
		records, err := ReadParquet(path)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		return utils.LoadRecords(records, opts...)
	default:
		return dataframe.DataFrame{}, fmt.Errorf("unsupported file kind %q", src.Kind)
	}
}

// ReadCSV 读取CSV文件，可选字符集转码和分隔符，短行补齐为空字符串
func ReadCSV(path string, src config.SourceConfig, opts ...dataframe.LoadOption) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if src.Encoding != "" && !strings.EqualFold(src.Encoding, "utf-8") {
		enc, err := htmlindex.Get(src.Encoding)
		if err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("unknown encoding %q: %w", src.Encoding, err)
		}
		r = transform.NewReader(f, enc.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if src.Delimiter != "" {
		cr.Comma = []rune(src.Delimiter)[0]
	}

	records, err := cr.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to parse csv file %s: %w", path, err)
	}
	if len(records) > 0 {
		width := len(records[0])
		for i, rec := range records {
			if len(rec) < width {
				records[i] = append(rec, make([]string, width-len(rec))...)
			} else if len(rec) > width {
				records[i] = rec[:width]
			}
		}
	}
	return utils.LoadRecords(records, opts...)
}

// ReadXLSX 读取工作表为记录，headerRow 行为标题行，其后为数据行
func ReadXLSX(filePath, sheetName string, headerRow int) ([][]string, error) {
	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表，未指定时取第一个
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("sheet name %s 获取失败", sheetName)
		}
		sheet = s
	}

	return convertSheetToRecords(sheet, headerRow)
}

// convertSheetToRecords 将xlsx.Sheet转换为记录，短行补齐为空字符串
func convertSheetToRecords(sheet *xlsx.Sheet, headerRow int) ([][]string, error) {
	if len(sheet.Rows) <= headerRow {
		return nil, fmt.Errorf("sheet %s has no header row %d", sheet.Name, headerRow)
	}

	// 获取列名
	var headers []string
	for _, cell := range sheet.Rows[headerRow].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}

	records := make([][]string, 0, len(sheet.Rows)-headerRow)
	records = append(records, headers)

	// 填充数据(标题行之后)
	for _, row := range sheet.Rows[headerRow+1:] {
		if row == nil {
			continue
		}
		record := make([]string, len(headers))
		for i, cell := range row.Cells {
			if i < len(headers) { // 确保不超出列数范围
				record[i] = cell.Value
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// ReadParquet 读取扁平结构的parquet文件为记录，列名取叶子列路径
func ReadParquet(filePath string) ([][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	columns := pf.Schema().Columns()
	headers := make([]string, len(columns))
	for i, path := range columns {
		headers[i] = strings.Join(path, ".")
	}

	records := [][]string{headers}
	reader := parquet.NewReader(pf)
	defer reader.Close()

	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			record := make([]string, len(headers))
			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= len(record) || v.IsNull() {
					continue
				}
				record[col] = v.String()
			}
			records = append(records, record)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return records, nil
}

// 可接受的时间格式
var timeFormats = []string{
	utils.TimeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01-02-2006 15:04:05",
	"01/02/2006 15:04:05",
}

// NormalizeTimestamp 将时间字符串转换为统一格式，不做时区转换。
// 空值返回 ok=false；excelSerial 为 true 时数字按Excel日期序列号解析。
func NormalizeTimestamp(s string, excelSerial bool) (out string, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || s == utils.NaN {
		return "", false, nil
	}

	if excelSerial && serialRe.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", false, err
		}
		return excelToTime(v).Format(utils.TimeLayout), true, nil
	}

	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			// RFC3339 保留原始钟面时间
			return t.Format(utils.TimeLayout), true, nil
		}
	}
	return "", false, fmt.Errorf("unrecognized time value %q", s)
}

// excel日期序列号转time.Time
func excelToTime(excelDays float64) time.Time {
	// Excel把1900年当作闰年，60号之前的日期需要补一天
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	if excelDays < 61 {
		base = base.AddDate(0, 0, 1)
	}
	days := int(excelDays)
	fraction := excelDays - float64(days)

	return base.AddDate(0, 0, days).
		Add(time.Duration(math.Round(86400*fraction)) * time.Second)
}
