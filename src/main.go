package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"OrderAtlas/src/config"
	"OrderAtlas/src/datapush"
	"OrderAtlas/src/datasource/database"
	"OrderAtlas/src/datasource/email"
	"OrderAtlas/src/datasource/file"
	"OrderAtlas/src/processor"
	"OrderAtlas/src/storage"
	"OrderAtlas/src/web"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// options 命令行参数
type options struct {
	configDir string
	serve     bool
	report    string
	schedule  string
	watch     bool
	start     string
	end       string
	sample    int
	seed      uint64
	seedSet   bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("orderatlas", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.configDir, "config", "./config", "配置目录，包含 config.json 和可选的 dataconfig.json")
	fs.BoolVar(&o.serve, "serve", false, "启动HTTP服务")
	fs.StringVar(&o.report, "report", "", "导出xlsx报表的路径")
	fs.StringVar(&o.schedule, "schedule", "", "定时导出报表的cron表达式，如 \"@every 24h\"")
	fs.BoolVar(&o.watch, "watch", false, "监听数据源文件变化")
	fs.StringVar(&o.start, "start", "", "开始日期 2006-01-02，默认最早下单日期")
	fs.StringVar(&o.end, "end", "", "结束日期 2006-01-02，默认最晚下单日期")
	fs.IntVar(&o.sample, "sample", 0, fmt.Sprintf("热力图抽样数量 [%d, %d]", config.MinSampleSize, config.MaxSampleSize))
	fs.Uint64Var(&o.seed, "seed", 0, "热力图随机种子，未指定时每次抽样不同")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			o.seedSet = true
		}
	})
	if o.sample != 0 {
		if err := processor.ValidateSampleSize(o.sample); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	dataJsonFile := "dataconfig.json"
	if _, err := os.Stat(filepath.Join(opts.configDir, dataJsonFile)); err != nil {
		dataJsonFile = ""
	}
	cfg, dcfg, err := config.LoadConfig(opts.configDir, "config.json", dataJsonFile)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if opts.sample == 0 {
		opts.sample = cfg.Heatmap.DefaultSample
	}
	if opts.schedule == "" {
		opts.schedule = cfg.Report.Schedule
	}
	if opts.report == "" {
		opts.report = cfg.Report.Path
	}
	opts.watch = opts.watch || cfg.Watch

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel, cfg, logger)

	if err := run(ctx, opts, cfg, dcfg, logger); err != nil {
		logger.Error("运行失败", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) error {
	reader := &processor.SourceReader{Config: cfg}
	if usesPostgres(cfg) {
		db, err := database.Open(ctx, cfg.Database.DSN, time.Duration(cfg.Database.ConnectTimeout))
		if err != nil {
			return err
		}
		defer db.Close()
		reader.DB = db
	}

	// 配置了邮箱时先从邮件附件更新数据源文件
	if cfg.Email.Server != "" {
		client := email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password, logger)
		if _, err := email.FetchSources(client, email.NewSourceAttachmentHandler(cfg), logger); err != nil {
			logger.Warning("从邮箱获取数据源失败，使用本地文件", zap.Error(err))
		}
	}

	loader := processor.NewLoader(reader, dcfg, processor.DefaultCache(), logger)
	provider := web.ProviderFunc(func(ctx context.Context) (*processor.Dashboard, error) {
		tables, err := loader.Load(ctx, cfg.Sources)
		if err != nil {
			return nil, err
		}
		return processor.NewDashboard(tables), nil
	})

	// 启动时加载一次，数据源有问题时尽早报错
	if _, err := provider.Dashboard(ctx); err != nil {
		return err
	}

	c := cron.New()
	if cfg.LogMaxSize != "" {
		err := c.AddFunc("@every 1m", func() {
			if err := logger.CheckRotate(cfg.LogMaxSize); err != nil {
				logger.Error("日志轮转失败", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("创建日志轮转任务失败: %w", err)
		}
	}

	var report *datapush.ExcelReport
	if opts.report != "" {
		report = datapush.NewExcelReport(opts.report, cfg.Heatmap.ZoomStart, logger)
	}
	export := func() error {
		d, err := provider.Dashboard(ctx)
		if err != nil {
			return err
		}
		r, err := reportRange(d, opts, cfg.Report.WindowDays)
		if err != nil {
			return err
		}
		view, err := d.Compute(r, opts.sample, sampleOptions(opts)...)
		if err != nil {
			return err
		}
		if view.HeatErr != nil {
			logger.Warning("热力图样本不足", zap.Error(view.HeatErr))
		}
		runID, err := report.Push(view)
		if err != nil {
			return err
		}
		if cfg.SendEmail.Server != "" {
			if err := email.SendReport(cfg, report.Path, runID); err != nil {
				return err
			}
			logger.Info("报表邮件已发送", zap.String("run_id", runID), zap.Strings("to", cfg.SendEmail.To))
		}
		return nil
	}

	if opts.schedule != "" {
		if report == nil {
			return errors.New("-schedule 需要 -report 或 report.path")
		}
		err := c.AddFunc(opts.schedule, func() {
			t1 := time.Now()
			if err := export(); err != nil {
				logger.Error("定时导出报表失败", zap.Error(err))
				return
			}
			logger.Info("定时导出报表完成", zap.Duration("duration", time.Since(t1)))
		})
		if err != nil {
			return fmt.Errorf("创建定时任务失败: %w", err)
		}
		logger.Info("报表定时任务已启动", zap.String("schedule", opts.schedule))
	}
	c.Start()
	defer c.Stop()

	if opts.watch {
		monitor, err := watchSources(cfg, logger)
		if err != nil {
			return err
		}
		defer monitor.Close()
	}

	switch {
	case opts.serve:
		return web.NewServer(cfg, provider, logger).Start(ctx)
	case opts.schedule != "" || opts.watch:
		<-ctx.Done()
		return nil
	case report != nil:
		return export()
	default:
		return printSummary(ctx, provider, opts)
	}
}

// reportRange 优先使用命令行日期，其次是最近 windowDays 天，否则为全部日期
func reportRange(d *processor.Dashboard, opts *options, windowDays int) (processor.DateRange, error) {
	if opts.start != "" || opts.end != "" || windowDays == 0 {
		return d.DefaultRange(opts.start, opts.end)
	}
	bounds, ok, err := d.DateBounds()
	if err != nil {
		return processor.DateRange{}, err
	}
	if !ok {
		return processor.DateRange{}, fmt.Errorf("%w: no purchase dates loaded", processor.ErrDataSource)
	}
	return processor.DateRange{Start: bounds.End.AddDate(0, 0, -(windowDays - 1)), End: bounds.End}, nil
}

func sampleOptions(opts *options) []processor.SampleOption {
	if opts.seedSet {
		return []processor.SampleOption{processor.WithSeed(opts.seed)}
	}
	return nil
}

// printSummary 没有指定输出方式时，把视图摘要以JSON打印到标准输出
func printSummary(ctx context.Context, provider web.Provider, opts *options) error {
	d, err := provider.Dashboard(ctx)
	if err != nil {
		return err
	}
	r, err := d.DefaultRange(opts.start, opts.end)
	if err != nil {
		return err
	}
	view, err := d.Compute(r, opts.sample, sampleOptions(opts)...)
	if err != nil {
		return err
	}

	summary := map[string]interface{}{
		"metrics":         view.Metrics,
		"best_categories": view.Categories.Best(5),
		"delivery_review": view.Delivery,
	}
	if view.Heat != nil {
		summary["heat_center"] = view.Heat.Center
	}
	if view.HeatErr != nil {
		summary["heat_error"] = view.HeatErr.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func usesPostgres(cfg *config.Config) bool {
	for _, src := range cfg.Sources {
		if src.Kind == "postgres" {
			return true
		}
	}
	return false
}

// watchSources 监听文件数据源，变化时提醒缓存的表已过期
func watchSources(cfg *config.Config, logger *storage.Logger) (*file.FileMonitor, error) {
	var paths []string
	for _, src := range cfg.Sources {
		if src.Kind != "postgres" {
			paths = append(paths, cfg.SourcePath(src))
		}
	}
	monitor, err := file.NewFileMonitor(paths...)
	if err != nil {
		return nil, fmt.Errorf("创建文件监控失败: %w", err)
	}

	go func() {
		err := monitor.Watch(func(path string, op fsnotify.Op) {
			logger.Warning("数据源文件已变化，已加载的表不会刷新，重启后生效",
				zap.String("path", path), zap.String("op", op.String()))
		})
		if err != nil {
			logger.Error("文件监控出错", zap.Error(err))
		}
	}()
	logger.Info("开始监听数据源文件", zap.Strings("paths", paths))
	return monitor, nil
}

// handleSignals SIGHUP 重新打开日志文件，SIGINT/SIGTERM 退出
func handleSignals(cancel context.CancelFunc, cfg *config.Config, logger *storage.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := logger.Reopen(cfg.LogName); err != nil {
				log.Println("reopen log file:", err)
			}
			logger.Info("日志文件已重新打开")
			continue
		}
		logger.Info("Received signal: " + sig.String() + ", shutting down...")
		cancel()
		return
	}
}
