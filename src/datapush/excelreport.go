package datapush

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"OrderAtlas/src/processor"
	"OrderAtlas/src/storage"
	"OrderAtlas/src/utils"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// 工作表名称
const (
	SheetSummary        = "summary"
	SheetCategories     = "categories"
	SheetDeliveryReview = "delivery_review"
	SheetHeatmap        = "heatmap"
)

const (
	RETRY_TIMES    = 3
	RETRY_INTERVAL = 500 * time.Millisecond
)

// ExcelReport 把看板视图导出为xlsx工作簿
type ExcelReport struct {
	Path   string
	Zoom   int // 热力图初始缩放级别，写入 summary
	Logger *storage.Logger

	now func() time.Time
}

func NewExcelReport(path string, zoom int, logger *storage.Logger) *ExcelReport {
	if logger == nil {
		logger = storage.Nop()
	}
	return &ExcelReport{Path: path, Zoom: zoom, Logger: logger, now: time.Now}
}

// Push 写出一个视图，返回本次导出的运行ID。
// 先写临时文件再重命名，导出失败时不会留下半个工作簿。
func (r *ExcelReport) Push(view *processor.View) (string, error) {
	if view == nil {
		return "", fmt.Errorf("导出报表失败: 视图为空")
	}
	runID := uuid.New().String()

	f := excelize.NewFile()
	defer f.Close()

	if err := r.writeSummary(f, runID, view); err != nil {
		return "", err
	}
	if err := utils.WriteSheet(f, SheetCategories, view.Categories.DataFrame()); err != nil {
		return "", err
	}
	if err := utils.WriteSheet(f, SheetDeliveryReview, view.Delivery.DataFrame()); err != nil {
		return "", err
	}
	if view.Heat != nil {
		if err := utils.WriteSheet(f, SheetHeatmap, view.Heat.DataFrame()); err != nil {
			return "", err
		}
	}
	// 默认的 Sheet1 不需要
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", err
	}
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return "", fmt.Errorf("创建报表目录失败: %w", err)
	}
	err := retry(func() error {
		return saveAtomic(f, r.Path)
	}, RETRY_TIMES, RETRY_INTERVAL)
	if err != nil {
		r.Logger.Error("报表写入失败", zap.String("path", r.Path), zap.Error(err))
		return "", err
	}

	r.Logger.Info("报表已导出",
		zap.String("run_id", runID),
		zap.String("path", r.Path),
		zap.String("range", view.Range.String()))
	return runID, nil
}

func (r *ExcelReport) writeSummary(f *excelize.File, runID string, view *processor.View) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("创建工作表 %s 失败: %w", SheetSummary, err)
	}

	rows := [][]interface{}{
		{"run_id", runID},
		{"generated_at", r.now().Format(utils.TimeLayout)},
		{"range", view.Range.String()},
		{"complete_orders", view.Metrics.CompleteOrders},
		{"orders_reviews", view.Metrics.OrdersReviews},
		{"customer_order_geo", view.Metrics.CustomerOrderGeo},
		{"categories", len(view.Categories)},
		{"sold_total", view.Categories.Total()},
		{"delivery_anomalies", view.Delivery.Anomalies},
	}
	if view.Delivery.Trend != nil {
		rows = append(rows,
			[]interface{}{"trend_intercept", view.Delivery.Trend.Intercept},
			[]interface{}{"trend_slope", view.Delivery.Trend.Slope})
	}
	if view.Heat != nil {
		rows = append(rows,
			[]interface{}{"heat_sample", len(view.Heat.Points)},
			[]interface{}{"heat_population", view.Heat.Population},
			[]interface{}{"heat_center_lat", view.Heat.Center.Lat},
			[]interface{}{"heat_center_lng", view.Heat.Center.Lng},
			[]interface{}{"heat_zoom", r.Zoom})
	}
	if view.HeatErr != nil {
		rows = append(rows, []interface{}{"heat_error", view.HeatErr.Error()})
	}

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func saveAtomic(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// 重试函数
func retry(fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			time.Sleep(interval)
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}
