// Package kv is the durable key/value storage shared by the cursor, the job
// settings, the scheduler triggers and the quota ledger.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix; an empty prefix lists everything.
	List(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}

type Config struct {
	Driver        string
	Namespace     string
	Path          string
	BusyTimeout   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DynamoDBTable string
}

// Open builds the store selected by cfg.Driver. awsCfg is only used by the
// dynamodb driver.
func Open(cfg Config, awsCfg aws.Config) (Store, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "mailbatch"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg.Path, namespace, cfg.BusyTimeout)
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, namespace), nil
	case "dynamodb":
		return NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, namespace), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
