package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Константы для имен переменных окружения
const (
	EnvAddress            = "ADDRESS"
	EnvConfig             = "CONFIG"
	EnvHistoryLength      = "HISTORY_LENGTH"
	EnvSamplingInterval   = "SAMPLING_INTERVAL"
	EnvInitialDelay       = "INITIAL_DELAY"
	EnvReportTimeout      = "REPORT_TIMEOUT"
	EnvPollInterval       = "POLL_INTERVAL"
	EnvSource             = "SOURCE"
	EnvRetainObservations = "RETAIN_OBSERVATIONS"
	EnvLogLevel           = "LOG_LEVEL"
	EnvStoreFile          = "FILE_STORAGE_PATH"
	EnvRestore            = "RESTORE"
	EnvJournal            = "JOURNAL_PATH"
	EnvDatabaseDSN        = "DATABASE_DSN"
	EnvRedisAddr          = "REDIS_ADDR"
	EnvRemoteWriteURL     = "REMOTE_WRITE_URL"
	EnvReportURL          = "REPORT_URL"
	EnvKey                = "KEY"
	EnvGRPCAddress        = "GRPC_ADDRESS"
	EnvTrustedSubnet      = "TRUSTED_SUBNET"
)

// Константы для флагов командной строки
const (
	FlagAddress            = "a"
	FlagConfig             = "c"
	FlagHistoryLength      = "history-length"
	FlagSamplingInterval   = "sampling-interval"
	FlagInitialDelay       = "initial-delay"
	FlagReportTimeout      = "report-timeout"
	FlagPollInterval       = "p"
	FlagSource             = "source"
	FlagRetainObservations = "retain-observations"
	FlagLogLevel           = "log-level"
	FlagStoreFile          = "f"
	FlagRestore            = "r"
	FlagJournal            = "journal"
	FlagDatabaseDSN        = "d"
	FlagRedisAddr          = "redis-addr"
	FlagRemoteWriteURL     = "remote-write-url"
	FlagReportURL          = "report-url"
	FlagKey                = "k"
	FlagGRPCAddress        = "grpc-address"
	FlagTrustedSubnet      = "t"
)

// TrackerConfig — итоговая конфигурация процесса трекера.
//
// Приоритет источников: значения по умолчанию < файл конфигурации < переменные окружения < флаги.
type TrackerConfig struct {
	Address            NetAddress
	HistoryLength      int
	SamplingInterval   time.Duration
	InitialDelay       time.Duration
	ReportTimeout      time.Duration
	PollInterval       time.Duration
	Source             string
	RetainObservations bool
	LogLevel           string
	FileStoragePath    string
	Restore            bool
	JournalPath        string
	DatabaseDSN        string
	RedisAddr          string
	RemoteWriteURL     string
	ReportURL          string
	Key                string
	GRPCAddress        string
	TrustedSubnet      string
}

// FileConfig представляет файл конфигурации (JSON или TOML).
//
// Длительности задаются строками ("6s", "500ms").
type FileConfig struct {
	Address            string `json:"address" toml:"address"`
	HistoryLength      *int   `json:"history_length" toml:"history_length"`
	SamplingInterval   string `json:"sampling_interval" toml:"sampling_interval"`
	InitialDelay       string `json:"initial_delay" toml:"initial_delay"`
	ReportTimeout      string `json:"report_timeout" toml:"report_timeout"`
	PollInterval       string `json:"poll_interval" toml:"poll_interval"`
	Source             string `json:"source" toml:"source"`
	RetainObservations *bool  `json:"retain_observations" toml:"retain_observations"`
	LogLevel           string `json:"log_level" toml:"log_level"`
	StoreFile          string `json:"store_file" toml:"store_file"`
	Restore            *bool  `json:"restore" toml:"restore"`
	JournalPath        string `json:"journal_path" toml:"journal_path"`
	DatabaseDSN        string `json:"database_dsn" toml:"database_dsn"`
	RedisAddr          string `json:"redis_addr" toml:"redis_addr"`
	RemoteWriteURL     string `json:"remote_write_url" toml:"remote_write_url"`
	ReportURL          string `json:"report_url" toml:"report_url"`
	Key                string `json:"key" toml:"key"`
	GRPCAddress        string `json:"grpc_address" toml:"grpc_address"`
	TrustedSubnet      string `json:"trusted_subnet" toml:"trusted_subnet"`
}

// DefaultTrackerConfig возвращает конфигурацию по умолчанию.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Address:          NetAddress{Host: "localhost", Port: 8080},
		HistoryLength:    30,
		SamplingInterval: 6 * time.Second,
		InitialDelay:     1 * time.Second,
		ReportTimeout:    15 * time.Second,
		PollInterval:     2 * time.Second,
		LogLevel:         "info",
		FileStoragePath:  "snapshots.json",
		Restore:          true,
	}
}

// LoadFileConfig загружает файл конфигурации.
//
// Формат определяется по расширению: ".toml" — TOML, иначе JSON.
// Пустой путь не является ошибкой: возвращается пустая конфигурация.
func LoadFileConfig(filePath string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(filePath), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadTrackerConfig собирает конфигурацию из аргументов командной строки,
// переменных окружения и файла конфигурации.
//
// args — аргументы без имени программы (os.Args[1:]).
func LoadTrackerConfig(args []string) (*TrackerConfig, error) {
	def := DefaultTrackerConfig()

	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	addr := ParseAddressFlag(fs)
	configPath := fs.String(FlagConfig, "", "Path to JSON or TOML config file")
	historyLength := fs.Int(FlagHistoryLength, def.HistoryLength, "Max history entries per series")
	sampling := fs.Duration(FlagSamplingInterval, def.SamplingInterval, "Sampling interval")
	initialDelay := fs.Duration(FlagInitialDelay, def.InitialDelay, "Delay before the first sampling pass")
	reportTimeout := fs.Duration(FlagReportTimeout, def.ReportTimeout, "Timeout for handing a snapshot to reporters")
	poll := fs.Duration(FlagPollInterval, def.PollInterval, "Host metrics poll interval")
	source := fs.String(FlagSource, "", "Source identity put into every snapshot (default: hostname)")
	retain := fs.Bool(FlagRetainObservations, false, "Retain RecordDuration/RecordRequest values")
	logLevel := fs.String(FlagLogLevel, def.LogLevel, "Log level")
	storeFile := fs.String(FlagStoreFile, def.FileStoragePath, "Snapshot file path")
	restore := fs.Bool(FlagRestore, def.Restore, "Restore counters and gauges from the snapshot file at startup")
	journal := fs.String(FlagJournal, "", "Append every snapshot as a JSON line to this file")
	dsn := fs.String(FlagDatabaseDSN, "", "PostgreSQL DSN")
	redisAddr := fs.String(FlagRedisAddr, "", "Redis address host:port")
	remoteWrite := fs.String(FlagRemoteWriteURL, "", "Prometheus remote write URL")
	reportURL := fs.String(FlagReportURL, "", "Collector base URL for snapshot batches")
	key := fs.String(FlagKey, "", "Key for signing snapshot batches")
	grpcAddr := fs.String(FlagGRPCAddress, "", "gRPC health service address host:port")
	trustedSubnet := fs.String(FlagTrustedSubnet, "", "CIDR allowed to call the gRPC service")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := def
	fileCfg, err := LoadFileConfig(GetConfigFilePathWithFlag(*configPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyFile(fileCfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if explicit[FlagAddress] {
		cfg.Address = *addr
	}
	if explicit[FlagHistoryLength] {
		cfg.HistoryLength = *historyLength
	}
	if explicit[FlagSamplingInterval] {
		cfg.SamplingInterval = *sampling
	}
	if explicit[FlagInitialDelay] {
		cfg.InitialDelay = *initialDelay
	}
	if explicit[FlagReportTimeout] {
		cfg.ReportTimeout = *reportTimeout
	}
	if explicit[FlagPollInterval] {
		cfg.PollInterval = *poll
	}
	if explicit[FlagSource] {
		cfg.Source = *source
	}
	if explicit[FlagRetainObservations] {
		cfg.RetainObservations = *retain
	}
	if explicit[FlagLogLevel] {
		cfg.LogLevel = *logLevel
	}
	if explicit[FlagStoreFile] {
		cfg.FileStoragePath = *storeFile
	}
	if explicit[FlagRestore] {
		cfg.Restore = *restore
	}
	if explicit[FlagJournal] {
		cfg.JournalPath = *journal
	}
	if explicit[FlagDatabaseDSN] {
		cfg.DatabaseDSN = *dsn
	}
	if explicit[FlagRedisAddr] {
		cfg.RedisAddr = *redisAddr
	}
	if explicit[FlagRemoteWriteURL] {
		cfg.RemoteWriteURL = *remoteWrite
	}
	if explicit[FlagReportURL] {
		cfg.ReportURL = *reportURL
	}
	if explicit[FlagKey] {
		cfg.Key = *key
	}
	if explicit[FlagGRPCAddress] {
		cfg.GRPCAddress = *grpcAddr
	}
	if explicit[FlagTrustedSubnet] {
		cfg.TrustedSubnet = *trustedSubnet
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *TrackerConfig) applyFile(f *FileConfig) error {
	if f.Address != "" {
		if err := c.Address.Set(f.Address); err != nil {
			return fmt.Errorf("invalid address in config file: %w", err)
		}
	}
	if f.HistoryLength != nil {
		c.HistoryLength = *f.HistoryLength
	}
	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{f.SamplingInterval, &c.SamplingInterval},
		{f.InitialDelay, &c.InitialDelay},
		{f.ReportTimeout, &c.ReportTimeout},
		{f.PollInterval, &c.PollInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		*d.dst = v
	}
	if f.RetainObservations != nil {
		c.RetainObservations = *f.RetainObservations
	}
	if f.Restore != nil {
		c.Restore = *f.Restore
	}
	setIfNotEmpty(&c.Source, f.Source)
	setIfNotEmpty(&c.LogLevel, f.LogLevel)
	setIfNotEmpty(&c.FileStoragePath, f.StoreFile)
	setIfNotEmpty(&c.JournalPath, f.JournalPath)
	setIfNotEmpty(&c.DatabaseDSN, f.DatabaseDSN)
	setIfNotEmpty(&c.RedisAddr, f.RedisAddr)
	setIfNotEmpty(&c.RemoteWriteURL, f.RemoteWriteURL)
	setIfNotEmpty(&c.ReportURL, f.ReportURL)
	setIfNotEmpty(&c.Key, f.Key)
	setIfNotEmpty(&c.GRPCAddress, f.GRPCAddress)
	setIfNotEmpty(&c.TrustedSubnet, f.TrustedSubnet)
	return nil
}

func (c *TrackerConfig) applyEnv() error {
	if err := EnvServer(&c.Address, EnvAddress); err != nil {
		return err
	}
	if v, err := EnvInt(EnvHistoryLength); err != nil {
		return err
	} else if v != 0 {
		c.HistoryLength = v
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvSamplingInterval, &c.SamplingInterval},
		{EnvInitialDelay, &c.InitialDelay},
		{EnvReportTimeout, &c.ReportTimeout},
		{EnvPollInterval, &c.PollInterval},
	}
	for _, d := range durations {
		v, err := EnvDuration(d.key)
		if err != nil {
			return err
		}
		if v != 0 {
			*d.dst = v
		}
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{EnvRetainObservations, &c.RetainObservations},
		{EnvRestore, &c.Restore},
	}
	for _, b := range bools {
		v, ok, err := EnvBool(b.key)
		if err != nil {
			return err
		}
		if ok {
			*b.dst = v
		}
	}
	setIfNotEmpty(&c.Source, EnvString(EnvSource))
	setIfNotEmpty(&c.LogLevel, EnvString(EnvLogLevel))
	setIfNotEmpty(&c.FileStoragePath, EnvString(EnvStoreFile))
	setIfNotEmpty(&c.JournalPath, EnvString(EnvJournal))
	setIfNotEmpty(&c.DatabaseDSN, EnvString(EnvDatabaseDSN))
	setIfNotEmpty(&c.RedisAddr, EnvString(EnvRedisAddr))
	setIfNotEmpty(&c.RemoteWriteURL, EnvString(EnvRemoteWriteURL))
	setIfNotEmpty(&c.ReportURL, EnvString(EnvReportURL))
	setIfNotEmpty(&c.Key, EnvString(EnvKey))
	setIfNotEmpty(&c.GRPCAddress, EnvString(EnvGRPCAddress))
	setIfNotEmpty(&c.TrustedSubnet, EnvString(EnvTrustedSubnet))
	return nil
}

// Validate проверяет согласованность конфигурации.
func (c *TrackerConfig) Validate() error {
	if c.HistoryLength <= 0 {
		return fmt.Errorf("%w: history length must be positive, got %d", ErrInvalidConfig, c.HistoryLength)
	}
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("%w: sampling interval must be positive, got %s", ErrInvalidConfig, c.SamplingInterval)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("%w: initial delay must not be negative, got %s", ErrInvalidConfig, c.InitialDelay)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfig, c.PollInterval)
	}
	if c.TrustedSubnet != "" {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(c.TrustedSubnet)); err != nil {
			return fmt.Errorf("%w: trusted subnet: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// GetConfigFilePathWithFlag получает путь к файлу конфигурации, учитывая явно переданный флаг.
// Используется после разбора флагов.
func GetConfigFilePathWithFlag(flagValue string) string {
	// Флаги имеют больший приоритет
	if flagValue != "" {
		return flagValue
	}
	// Затем проверяем переменную окружения
	return EnvString(EnvConfig)
}
