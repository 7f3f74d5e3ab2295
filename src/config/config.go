package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 环境变量，优先级高于配置文件
const (
	EnvDataDir  = "ORDERATLAS_DATA_DIR"
	EnvHTTPAddr = "ORDERATLAS_HTTP_ADDR"
	EnvLogLevel = "ORDERATLAS_LOG_LEVEL"
	EnvLogName  = "ORDERATLAS_LOG_NAME"
	EnvPGDSN    = "ORDERATLAS_PG_DSN"
	EnvSample   = "ORDERATLAS_DEFAULT_SAMPLE"
	EnvMailPass = "ORDERATLAS_MAIL_PASSWORD"
	EnvSMTPPass = "ORDERATLAS_SMTP_PASSWORD"
)

// 抽样数量的边界，与原看板的输入控件一致
const (
	MinSampleSize     = 500
	MaxSampleSize     = 100000
	DefaultSampleSize = 1000
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir    string `json:"data_dir"` // 数据源相对路径的根目录
	LogName    string `json:"log_name"`
	LogLevel   string `json:"log_level"`
	LogMaxSize string `json:"log_max_size"` // 形如 "10 * 1024 * 1024"

	HTTP struct {
		Addr string `json:"addr"`
	} `json:"http"`

	Database struct {
		DSN            string   `json:"dsn"`
		ConnectTimeout Duration `json:"connect_timeout"`
	} `json:"database"`

	// Sources 以数据源名称为键，如 complete_orders
	Sources map[string]SourceConfig `json:"sources"`

	Heatmap struct {
		DefaultSample int `json:"default_sample"`
		ZoomStart     int `json:"zoom_start"`
	} `json:"heatmap"`

	Report struct {
		Path       string `json:"path"`        // 导出的xlsx路径
		Schedule   string `json:"schedule"`    // cron 表达式，如 "@every 24h"
		WindowDays int    `json:"window_days"` // 0 表示全部日期
	} `json:"report"`

	Watch bool `json:"watch"` // 监听数据源文件变化

	// Email 从邮箱附件获取数据源文件
	Email struct {
		Server        string `json:"server"` // 如 "imap.qq.com:993"
		Username      string `json:"username"`
		Password      string `json:"password"`
		TargetSubject string `json:"target_subject"` // 主题关键词
	} `json:"email"`

	// SendEmail 导出报表后发送邮件
	SendEmail struct {
		Server   string   `json:"server"` // 如 "smtp.qq.com:465"
		Username string   `json:"username"`
		Password string   `json:"password"`
		To       []string `json:"to"`
		Subject  string   `json:"subject"`
	} `json:"send_email"`
}

// SourceConfig 描述一个命名数据源
type SourceConfig struct {
	Kind      string `json:"kind"` // csv | xlsx | parquet | postgres
	Path      string `json:"path"`
	Sheet     string `json:"sheet"`
	HeaderRow int    `json:"header_row"`
	Encoding  string `json:"encoding"`
	Delimiter string `json:"delimiter"`
	Query     string `json:"query"` // postgres 数据源的查询语句
}

// DataConfig 逻辑列名到数据源实际列名的映射
type DataConfig struct {
	Columns map[string]string `json:"columns"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

// LoadConfig 只在第一次调用时读取配置，之后返回同一实例。
// dataJsonFile 为空时使用空的列名映射。
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	if err == nil && instance == nil {
		err = errors.New("配置未加载成功")
	}
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configData, err := readFile(filepath.Join(jsonFolder, jsonFile))
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData := []byte(`{}`)
	if dataJsonFile != "" {
		dataConfigData, err = readFile(filepath.Join(jsonFolder, dataJsonFile))
		if err != nil {
			return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
		}
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	// .env 不存在时忽略
	envFile := filepath.Join(jsonFolder, ".env")
	if _, statErr := os.Stat(envFile); statErr == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, nil, fmt.Errorf("读取 %s 失败: %w", envFile, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	if dcfg.Columns == nil {
		dcfg.Columns = make(map[string]string)
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogName); v != "" {
		c.LogName = v
	}
	if v := os.Getenv(EnvPGDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvMailPass); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv(EnvSMTPPass); v != "" {
		c.SendEmail.Password = v
	}
	if v := os.Getenv(EnvSample); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Heatmap.DefaultSample = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Heatmap.DefaultSample == 0 {
		c.Heatmap.DefaultSample = DefaultSampleSize
	}
	if c.Heatmap.ZoomStart == 0 {
		c.Heatmap.ZoomStart = 7
	}
	if c.SendEmail.Subject == "" {
		c.SendEmail.Subject = "OrderAtlas 报表"
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = Duration(10 * time.Second)
	}
}

// Validate 检查配置是否完整
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no data sources configured")
	}
	for name, src := range c.Sources {
		switch src.Kind {
		case "postgres":
			if src.Query == "" {
				return fmt.Errorf("source %s: postgres source needs a query", name)
			}
			if c.Database.DSN == "" {
				return fmt.Errorf("source %s: postgres source needs database.dsn or %s", name, EnvPGDSN)
			}
		case "", "csv", "xlsx", "parquet":
			if src.Path == "" {
				return fmt.Errorf("source %s: path is required", name)
			}
		default:
			return fmt.Errorf("source %s: unsupported kind %q", name, src.Kind)
		}
	}
	if c.Heatmap.DefaultSample < MinSampleSize || c.Heatmap.DefaultSample > MaxSampleSize {
		return fmt.Errorf("heatmap.default_sample must be within [%d, %d]", MinSampleSize, MaxSampleSize)
	}
	if c.Email.Server != "" && c.Email.TargetSubject == "" {
		return errors.New("email.target_subject is required when email.server is set")
	}
	if c.SendEmail.Server != "" && len(c.SendEmail.To) == 0 {
		return errors.New("send_email.to is required when send_email.server is set")
	}
	if c.Report.WindowDays < 0 {
		return errors.New("report.window_days cannot be negative")
	}
	return nil
}

// SourcePath 返回数据源文件的完整路径，相对路径基于 DataDir
func (c *Config) SourcePath(src SourceConfig) string {
	if src.Path == "" || filepath.IsAbs(src.Path) {
		return src.Path
	}
	return filepath.Join(c.DataDir, src.Path)
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// GetColumn 返回逻辑列名对应的实际列名，未配置时返回逻辑列名本身
func (dc *DataConfig) GetColumn(logical string) string {
	if dc == nil {
		return logical
	}
	mu.RLock()
	defer mu.RUnlock()
	if v, ok := dc.Columns[logical]; ok && v != "" {
		return v
	}
	return logical
}

func (dc *DataConfig) SetColumn(logical, physical string) {
	mu.Lock()
	defer mu.Unlock()
	if dc.Columns == nil {
		dc.Columns = make(map[string]string)
	}
	dc.Columns[logical] = physical
}
