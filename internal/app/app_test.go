//go:build unit

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/suite"

	"mailbatch/internal/assets"
	"mailbatch/internal/batch"
	"mailbatch/internal/dispatch"
	"mailbatch/internal/kv"
	"mailbatch/internal/lock"
	"mailbatch/internal/quota"
	"mailbatch/internal/recipient"
	"mailbatch/internal/scheduler"
	"mailbatch/internal/settings"
	"mailbatch/internal/smtp"
)

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, &AppTestSuite{})
}

type AppTestSuite struct {
	suite.Suite
	dir string
	app *App
}

type configProviderMock struct {
	csvPath     string
	quotaDriver string
}

func newConfigProviderMock(csvPath string) *configProviderMock {
	return &configProviderMock{csvPath: csvPath, quotaDriver: "ledger"}
}

func (cp *configProviderMock) GetAwsConfig() aws.Config {
	return aws.Config{
		Region:       "dummy-region",
		Credentials:  credentials.NewStaticCredentialsProvider("dummy-key", "dummy-secret", "dummy-session"),
		BaseEndpoint: aws.String("dummy-endpoint"),
	}
}

func (cp *configProviderMock) GetStoreConfig() kv.Config {
	return kv.Config{Driver: "memory"}
}

func (cp *configProviderMock) GetRecipientsConfig() recipient.Config {
	return recipient.Config{Driver: "csv", Path: cp.csvPath, AddressColumn: "A", StatusColumn: "B"}
}

func (cp *configProviderMock) GetTransportDriver() string {
	return "smtp"
}

func (cp *configProviderMock) GetSmtpConfig() smtp.Config {
	return smtp.Config{
		Host:     "dummy-host",
		Port:     1234,
		User:     "dummy-user",
		Password: "dummy-password",
		From:     "dummy-from@example.com",
	}
}

func (cp *configProviderMock) GetQuotaConfig() quota.Config {
	return quota.Config{Driver: cp.quotaDriver, DailyLimit: 5}
}

func (cp *configProviderMock) GetAssetsConfig() assets.Config {
	return assets.Config{BasePath: filepath.Dir(cp.csvPath)}
}

func (cp *configProviderMock) GetSchedulerConfig() scheduler.Config {
	return scheduler.Config{Interval: time.Hour}
}

func (cp *configProviderMock) GetReconcileInterval() time.Duration {
	return 20 * time.Millisecond
}

func (cp *configProviderMock) GetLockConfig() lock.Config {
	return lock.Config{Driver: "none"}
}

func (cp *configProviderMock) GetLockRedisAddr() string {
	return ""
}

func (cp *configProviderMock) GetDispatchConfig() dispatch.Config {
	return dispatch.Config{
		Handler:  "sendEmailsInBatches",
		From:     "dummy-from@example.com",
		Template: "template.html",
	}
}

func (cp *configProviderMock) GetHealthCheckServerPort() int {
	return 0
}

func (cp *configProviderMock) GetMetricsEnabled() bool {
	return true
}

func (cp *configProviderMock) GetMetricsProcessInterval() time.Duration {
	return 20 * time.Millisecond
}

func (suite *AppTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.app = suite.newApp("email,status\n")
}

func (suite *AppTestSuite) TearDownTest() {
	suite.Require().NoError(suite.app.Close())
}

func (suite *AppTestSuite) newApp(csv string) *App {
	path := filepath.Join(suite.dir, "recipients.csv")
	suite.Require().NoError(os.WriteFile(path, []byte(csv), 0o644))

	app, err := New(newConfigProviderMock(path))
	suite.Require().NoError(err)
	return app
}

func (suite *AppTestSuite) configure(ctx context.Context) {
	suite.Require().NoError(suite.app.Set(ctx, settings.KeyBatchSize, "2"))
	suite.Require().NoError(suite.app.Set(ctx, settings.KeyTargetEmail, "owner@example.com"))
	suite.Require().NoError(suite.app.Set(ctx, settings.KeySubject, "Seminar invitation"))
}

func (suite *AppTestSuite) TestAppInstance() {
	suite.Assert().NotNil(suite.app.engine)
	suite.Assert().NotNil(suite.app.scheduler)
	suite.Assert().IsType(&quota.Ledger{}, suite.app.gate)
	suite.Assert().Empty(suite.app.scheduler.Active())
}

func (suite *AppTestSuite) TestNewWithUnknownQuotaDriver() {
	cp := newConfigProviderMock(filepath.Join(suite.dir, "recipients.csv"))
	cp.quotaDriver = "carrier-pigeon"

	_, err := New(cp)
	suite.Assert().ErrorContains(err, "unknown quota driver")
}

func (suite *AppTestSuite) TestInitSettingsThenStartIsRejected() {
	ctx := context.TODO()

	seeded, err := suite.app.InitSettings(ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal(settings.Required, seeded)

	err = suite.app.StartJob(ctx)
	suite.Assert().ErrorIs(err, settings.ErrMissingSettings)

	status, err := suite.app.Status(ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal("Idle", status.State())
}

func (suite *AppTestSuite) TestSetRejectsUnknownKey() {
	err := suite.app.Set(context.TODO(), "FAVOURITE_COLOUR", "blue")
	suite.Assert().ErrorContains(err, "unknown setting")
}

func (suite *AppTestSuite) TestStartAndStopJob() {
	ctx := context.TODO()
	suite.configure(ctx)

	suite.Require().NoError(suite.app.StartJob(ctx))
	status, err := suite.app.Status(ctx)
	suite.Require().NoError(err)
	suite.Assert().True(status.Scheduled)
	suite.Assert().Equal("Active", status.State())

	suite.Require().NoError(suite.app.StopJob(ctx))
	status, err = suite.app.Status(ctx)
	suite.Require().NoError(err)
	suite.Assert().False(status.Scheduled)
	suite.Assert().False(status.HasCursor)
	suite.Assert().Equal("Idle", status.State())
}

func (suite *AppTestSuite) TestRunOnceOnEmptySheetCompletes() {
	ctx := context.TODO()
	suite.configure(ctx)
	suite.Require().NoError(suite.app.StartJob(ctx))

	outcome, err := suite.app.RunOnce(ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal(dispatch.OutcomeCompleted, outcome)

	status, err := suite.app.Status(ctx)
	suite.Require().NoError(err)
	suite.Assert().Equal("Idle", status.State())
}

func (suite *AppTestSuite) TestRunOnceWithoutSettings() {
	outcome, err := suite.app.RunOnce(context.TODO())
	suite.Assert().ErrorIs(err, settings.ErrMissingSettings)
	suite.Assert().Equal(dispatch.OutcomeMisconfigured, outcome)
}

func (suite *AppTestSuite) TestStatus() {
	suite.Require().NoError(suite.app.Close())
	suite.app = suite.newApp("email,status\na@example.com,\nb@example.com,Sent\nc@example.com,pending\n,\n")

	status, err := suite.app.Status(context.TODO())
	suite.Require().NoError(err)
	suite.Assert().Equal(batch.Stats{Rows: 4, Eligible: 3, Sent: 1, Pending: 2}, status.Stats)
	suite.Assert().Equal(5, status.Remaining)
	suite.Assert().False(status.HasCursor)
}

func (suite *AppTestSuite) TestCheckQuota() {
	remaining, err := suite.app.CheckQuota(context.TODO())
	suite.Require().NoError(err)
	suite.Assert().Equal(5, remaining)
}

func (suite *AppTestSuite) TestRunFunction() {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		suite.app.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		suite.Fail("run did not return after the context was done")
	}
}

func (suite *AppTestSuite) TestRunPicksUpTriggersFromOtherProcesses() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	suite.configure(ctx)

	go suite.app.Run(ctx)

	suite.Require().NoError(suite.app.store.Set(context.TODO(), "trigger:sendEmailsInBatches", "@every 1h"))
	suite.Assert().Eventually(func() bool {
		return len(suite.app.scheduler.Active()) == 1
	}, time.Second, 10*time.Millisecond)
}
