package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"mailbatch/internal/assets"
	"mailbatch/internal/dispatch"
	"mailbatch/internal/kv"
	"mailbatch/internal/lock"
	"mailbatch/internal/quota"
	"mailbatch/internal/recipient"
	"mailbatch/internal/scheduler"
	"mailbatch/internal/smtp"
)

const DefaultPath = "config/app.yaml"

type AwsConfig struct {
	BaseEndpoint string `yaml:"base_endpoint"`
	Key          string `yaml:"key"`
	Secret       string `yaml:"secret"`
	Region       string `yaml:"region"`
	sdkConfig    aws.Config
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver" validate:"required,oneof=memory sqlite redis dynamodb"`
	Namespace     string        `yaml:"namespace"`
	Path          string        `yaml:"path" validate:"required_if=Driver sqlite"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	DynamoDBTable string        `yaml:"dynamodb_table" validate:"required_if=Driver dynamodb"`
}

type RecipientsConfig struct {
	Driver        string `yaml:"driver" validate:"required,oneof=csv sql"`
	Path          string `yaml:"path" validate:"required_if=Driver csv"`
	AddressColumn string `yaml:"address_column"`
	StatusColumn  string `yaml:"status_column"`
	SQLDriver     string `yaml:"sql_driver" validate:"omitempty,oneof=mysql sqlite"`
	DSN           string `yaml:"dsn" validate:"required_if=Driver sql"`
	Table         string `yaml:"table"`
}

type SmtpConfig struct {
	Host             string        `yaml:"host" validate:"required"`
	Port             int           `yaml:"port" validate:"required"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	AllowInsecureTls bool          `yaml:"allow_insecure_tls"`
	Timeout          time.Duration `yaml:"timeout"`
}

type TransportConfig struct {
	Driver string      `yaml:"driver" validate:"required,oneof=smtp ses"`
	From   string      `yaml:"from" validate:"required"`
	Smtp   *SmtpConfig `yaml:"smtp" validate:"required_if=Driver smtp"`
}

type QuotaConfig struct {
	Driver     string `yaml:"driver" validate:"required,oneof=ledger ses none"`
	DailyLimit int    `yaml:"daily_limit" validate:"required_if=Driver ledger,gte=0"`
	Timezone   string `yaml:"timezone"`
}

type AssetsConfig struct {
	BasePath string `yaml:"base_path"`
	Template string `yaml:"template" validate:"required"`
	S3       bool   `yaml:"s3"`
}

type SchedulerConfig struct {
	Interval          time.Duration `yaml:"interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	Timezone          string        `yaml:"timezone"`
}

type LockConfig struct {
	Driver    string        `yaml:"driver" validate:"omitempty,oneof=none flock redis"`
	Path      string        `yaml:"path" validate:"required_if=Driver flock"`
	Name      string        `yaml:"name"`
	Expiry    time.Duration `yaml:"expiry"`
	RedisAddr string        `yaml:"redis_addr"`
}

type DispatchConfig struct {
	Handler          string `yaml:"handler"`
	Advance          string `yaml:"advance" validate:"omitempty,oneof=selected scanned"`
	OnQuotaExhausted string `yaml:"on_quota_exhausted" validate:"omitempty,oneof=stop pause"`
}

type HealthCheckServerConfig struct {
	Port int `yaml:"port" validate:"required"`
}

type HealthCheckConfig struct {
	Server HealthCheckServerConfig `yaml:"server" validate:"required"`
}

type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ProcessInterval time.Duration `yaml:"process_interval"`
}

type Config struct {
	Aws         AwsConfig         `yaml:"aws,flow"`
	Log         LogConfig         `yaml:"log"`
	Store       StoreConfig       `yaml:"store" validate:"required"`
	Recipients  RecipientsConfig  `yaml:"recipients" validate:"required"`
	Transport   TransportConfig   `yaml:"transport" validate:"required"`
	Quota       QuotaConfig       `yaml:"quota" validate:"required"`
	Assets      AssetsConfig      `yaml:"assets" validate:"required"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Lock        LockConfig        `yaml:"lock"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	HealthCheck HealthCheckConfig `yaml:"health-check,flow" validate:"required"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

func NewFromYaml(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewFromYamlContent(content)
}

func NewFromYamlContent(yamlContent []byte) (*Config, error) {
	cfg := &Config{}
	yamlString := os.ExpandEnv(string(yamlContent))
	reader := strings.NewReader(yamlString)

	if err := cfg.load(reader); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) load(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	decodeErr := decoder.Decode(c)
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(c)

	if decodeErr != nil && err != nil {
		return fmt.Errorf("%w\n%w", err, decodeErr)
	}
	if decodeErr != nil {
		return decodeErr
	}
	if err != nil {
		return err
	}

	c.applyDefaults()

	var opts []func(*config.LoadOptions) error
	if c.Aws.Region != "" {
		opts = append(opts, config.WithRegion(c.Aws.Region))
	}
	if c.Aws.Key != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.Aws.Key, c.Aws.Secret, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return err
	}

	if c.Aws.BaseEndpoint != "" {
		awsConfig.BaseEndpoint = aws.String(c.Aws.BaseEndpoint)
	}

	c.Aws.sdkConfig = awsConfig
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Recipients.AddressColumn == "" {
		c.Recipients.AddressColumn = "A"
	}
	if c.Recipients.StatusColumn == "" {
		c.Recipients.StatusColumn = "B"
	}
	if c.Recipients.Table == "" {
		c.Recipients.Table = "recipients"
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = scheduler.DefaultInterval
	}
	if c.Scheduler.ReconcileInterval <= 0 {
		c.Scheduler.ReconcileInterval = 10 * time.Second
	}
	if c.Dispatch.Handler == "" {
		c.Dispatch.Handler = "sendEmailsInBatches"
	}
	if c.Dispatch.Advance == "" {
		c.Dispatch.Advance = dispatch.AdvanceSelected
	}
	if c.Dispatch.OnQuotaExhausted == "" {
		c.Dispatch.OnQuotaExhausted = dispatch.QuotaStop
	}
	if c.Metrics.ProcessInterval <= 0 {
		c.Metrics.ProcessInterval = 15 * time.Second
	}
}

func (c *Config) GetAwsConfig() aws.Config {
	return c.Aws.sdkConfig
}

func (c *Config) GetLogLevel() string {
	return c.Log.Level
}

func (c *Config) GetLogFormat() string {
	return c.Log.Format
}

func (c *Config) GetStoreConfig() kv.Config {
	return kv.Config{
		Driver:        c.Store.Driver,
		Namespace:     c.Store.Namespace,
		Path:          c.Store.Path,
		BusyTimeout:   c.Store.BusyTimeout,
		RedisAddr:     c.Store.RedisAddr,
		RedisPassword: c.Store.RedisPassword,
		RedisDB:       c.Store.RedisDB,
		DynamoDBTable: c.Store.DynamoDBTable,
	}
}

func (c *Config) GetRecipientsConfig() recipient.Config {
	return recipient.Config{
		Driver:        c.Recipients.Driver,
		Path:          c.Recipients.Path,
		AddressColumn: c.Recipients.AddressColumn,
		StatusColumn:  c.Recipients.StatusColumn,
		SQLDriver:     c.Recipients.SQLDriver,
		DSN:           c.Recipients.DSN,
		Table:         c.Recipients.Table,
	}
}

func (c *Config) GetTransportDriver() string {
	return c.Transport.Driver
}

func (c *Config) GetSmtpConfig() smtp.Config {
	if c.Transport.Smtp == nil {
		return smtp.Config{From: c.Transport.From}
	}
	return smtp.Config{
		Host:             c.Transport.Smtp.Host,
		Port:             c.Transport.Smtp.Port,
		User:             c.Transport.Smtp.User,
		Password:         c.Transport.Smtp.Password,
		From:             c.Transport.From,
		AllowInsecureTls: c.Transport.Smtp.AllowInsecureTls,
		Timeout:          c.Transport.Smtp.Timeout,
	}
}

func (c *Config) GetQuotaConfig() quota.Config {
	return quota.Config{
		Driver:     c.Quota.Driver,
		DailyLimit: c.Quota.DailyLimit,
		Timezone:   c.Quota.Timezone,
	}
}

func (c *Config) GetAssetsConfig() assets.Config {
	return assets.Config{
		BasePath: c.Assets.BasePath,
		S3:       c.Assets.S3,
	}
}

func (c *Config) GetSchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Interval: c.Scheduler.Interval,
		Timezone: c.Scheduler.Timezone,
	}
}

func (c *Config) GetReconcileInterval() time.Duration {
	return c.Scheduler.ReconcileInterval
}

func (c *Config) GetLockConfig() lock.Config {
	return lock.Config{
		Driver: c.Lock.Driver,
		Path:   c.Lock.Path,
		Name:   c.Lock.Name,
		Expiry: c.Lock.Expiry,
	}
}

// GetLockRedisAddr returns the redis address for the lock, falling back to
// the store connection.
func (c *Config) GetLockRedisAddr() string {
	if c.Lock.RedisAddr != "" {
		return c.Lock.RedisAddr
	}
	return c.Store.RedisAddr
}

func (c *Config) GetDispatchConfig() dispatch.Config {
	return dispatch.Config{
		Handler:          c.Dispatch.Handler,
		From:             c.Transport.From,
		Template:         c.Assets.Template,
		Advance:          c.Dispatch.Advance,
		OnQuotaExhausted: c.Dispatch.OnQuotaExhausted,
	}
}

func (c *Config) GetHealthCheckServerPort() int {
	return c.HealthCheck.Server.Port
}

func (c *Config) GetMetricsEnabled() bool {
	return c.Metrics.Enabled
}

func (c *Config) GetMetricsProcessInterval() time.Duration {
	return c.Metrics.ProcessInterval
}
