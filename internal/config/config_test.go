//go:build unit

package config

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbatch/internal/dispatch"
)

func TestNewFromYaml(t *testing.T) {
	t.Parallel()

	type caseStruct struct {
		filepath    string
		expectError bool
	}

	cases := []caseStruct{
		{"testdata/valid.yaml", false},
		{"testdata/valid-ses.yaml", false},
		{"testdata/invalid-unknown-field.yaml", true},
		{"testdata/invalid-missing-smtp.yaml", true},
		{"testdata/invalid-ledger-without-limit.yaml", true},
		{"testdata/invalid-store-driver.yaml", true},
		{"testdata/missing.yaml", true},
	}

	for _, c := range cases {
		_, err := NewFromYaml(c.filepath)

		if c.expectError {
			assert.Error(t, err, c.filepath)
		} else {
			assert.NoError(t, err, c.filepath)
		}
	}
}

func TestGetters(t *testing.T) {
	cfg, err := NewFromYaml("testdata/valid.yaml")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.GetLogLevel())
	assert.Equal(t, "json", cfg.GetLogFormat())

	store := cfg.GetStoreConfig()
	assert.Equal(t, "sqlite", store.Driver)
	assert.Equal(t, 5*time.Second, store.BusyTimeout)

	recipients := cfg.GetRecipientsConfig()
	assert.Equal(t, "A", recipients.AddressColumn)
	assert.Equal(t, "B", recipients.StatusColumn)
	assert.Equal(t, "recipients", recipients.Table)

	assert.Equal(t, "smtp", cfg.GetTransportDriver())
	smtpCfg := cfg.GetSmtpConfig()
	assert.Equal(t, "smtp.example.com", smtpCfg.Host)
	assert.Equal(t, 587, smtpCfg.Port)
	assert.Equal(t, "Newsletter <newsletter@example.com>", smtpCfg.From)
	assert.Equal(t, 20*time.Second, smtpCfg.Timeout)

	assert.Equal(t, 100, cfg.GetQuotaConfig().DailyLimit)
	assert.Equal(t, "assets", cfg.GetAssetsConfig().BasePath)
	assert.Equal(t, 2*time.Minute, cfg.GetSchedulerConfig().Interval)
	assert.Equal(t, 10*time.Second, cfg.GetReconcileInterval())
	assert.Equal(t, "flock", cfg.GetLockConfig().Driver)

	assert.Equal(t, dispatch.Config{
		Handler:          "sendEmailsInBatches",
		From:             "Newsletter <newsletter@example.com>",
		Template:         "template.html",
		Advance:          dispatch.AdvanceScanned,
		OnQuotaExhausted: dispatch.QuotaPause,
	}, cfg.GetDispatchConfig())

	assert.Equal(t, 8080, cfg.GetHealthCheckServerPort())
	assert.True(t, cfg.GetMetricsEnabled())
	assert.Equal(t, 15*time.Second, cfg.GetMetricsProcessInterval())
}

func TestDefaults(t *testing.T) {
	cfg, err := NewFromYaml("testdata/valid-ses.yaml")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.Equal(t, "text", cfg.GetLogFormat())
	assert.Equal(t, dispatch.AdvanceSelected, cfg.GetDispatchConfig().Advance)
	assert.Equal(t, dispatch.QuotaStop, cfg.GetDispatchConfig().OnQuotaExhausted)
	assert.Equal(t, time.Minute, cfg.GetSchedulerConfig().Interval)
	assert.Equal(t, "", cfg.GetLockConfig().Driver)
	assert.Equal(t, "newsletter@example.com", cfg.GetSmtpConfig().From)
	assert.Equal(t, "http://localhost:4566", *cfg.GetAwsConfig().BaseEndpoint)
	assert.Equal(t, "eu-west-1", cfg.GetAwsConfig().Region)
}

func TestExpandEnvVars(t *testing.T) {
	randomString := fmt.Sprintf("ran%d", rand.Int())
	t.Setenv("TEST_AWS_SECRET", randomString)

	cfg, err := NewFromYaml("testdata/valid-ses.yaml")
	require.NoError(t, err)

	assert.Equal(t, randomString, cfg.Aws.Secret)
}

func TestLockRedisAddrFallsBackToStore(t *testing.T) {
	cfg := &Config{Store: StoreConfig{RedisAddr: "redis:6379"}}
	assert.Equal(t, "redis:6379", cfg.GetLockRedisAddr())

	cfg.Lock.RedisAddr = "locks:6379"
	assert.Equal(t, "locks:6379", cfg.GetLockRedisAddr())
}
