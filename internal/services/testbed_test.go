package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/celestiaorg/testbed/internal/compute"
	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/db/repos"
	tblogger "github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/ssh"
	"github.com/celestiaorg/testbed/internal/testbed"
)

// TestSetup wires a service over the fake provider and an in-memory history
type TestSetup struct {
	Fake    *compute.FakeProvider
	Repo    *repos.OperationRepository
	Metrics *metrics.Metrics
	Service *Testbed
	ctx     context.Context
}

// NewTestSetup creates a new test setup with in-memory database
func NewTestSetup(t *testing.T) *TestSetup {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to create in-memory database")
	require.NoError(t, db.AutoMigrate(&models.Operation{}), "Failed to run migrations")

	pair, err := ssh.EnsureKeyPair(t.TempDir())
	require.NoError(t, err)

	settings := &config.Settings{
		TestbedID:         "svc",
		CloudProvider:     compute.ProviderFake,
		SSHPrivateKeyFile: pair.PrivateKeyPath,
		SSHPublicKeyFile:  pair.PublicKeyPath,
		Regions:           []string{"A", "B"},
	}

	ctx := context.Background()
	fake := compute.NewFakeProvider()
	engine, err := testbed.New(ctx, settings, fake,
		testbed.WithSSHChecker(&ssh.MockChecker{}),
		testbed.WithPollInterval(time.Millisecond),
		testbed.WithStopPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	repo := repos.NewOperationRepository(db)
	m := metrics.New()
	return &TestSetup{
		Fake:    fake,
		Repo:    repo,
		Metrics: m,
		Service: NewTestbedService(engine, repo, m),
		ctx:     ctx,
	}
}

func TestTestbedService_RecordsOperations(t *testing.T) {
	setup := NewTestSetup(t)
	svc := setup.Service

	op, err := svc.Deploy(setup.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ActionDeploy, op.Action)
	assert.Equal(t, models.OperationStatusCompleted, op.Status)
	assert.Equal(t, 4, op.Instances)
	assert.NotNil(t, op.FinishedAt)
	_, err = uuid.Parse(op.Name)
	assert.NoError(t, err)

	stored, err := setup.Repo.GetByName(setup.ctx, op.Name)
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusCompleted, stored.Status)
	assert.Equal(t, "svc", stored.TestbedID)
	assert.Equal(t, compute.ProviderFake, stored.Provider)
	assert.Equal(t, 2, stored.Quantity)

	_, err = svc.Start(setup.ctx, 1)
	require.NoError(t, err)
	_, err = svc.Stop(setup.ctx)
	require.NoError(t, err)
	_, err = svc.Refresh(setup.ctx)
	require.NoError(t, err)
	_, err = svc.Destroy(setup.ctx)
	require.NoError(t, err)

	history, err := svc.History(setup.ctx, nil)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, models.ActionDestroy, history[0].Action)
	assert.Equal(t, 0, history[0].Instances)
	assert.Equal(t, models.ActionDeploy, history[4].Action)
}

func TestTestbedService_RecordsFailures(t *testing.T) {
	setup := NewTestSetup(t)
	svc := setup.Service

	_, err := svc.Deploy(setup.ctx, 1)
	require.NoError(t, err)

	op, err := svc.Start(setup.ctx, 2)
	require.Error(t, err)

	var capacityErr *testbed.InsufficientCapacityError
	require.True(t, errors.As(err, &capacityErr))
	assert.Len(t, capacityErr.Deficits, 2)
	assert.Equal(t, models.OperationStatusFailed, op.Status)
	assert.Equal(t, err.Error(), op.Error)

	failed, err := svc.History(setup.ctx, &models.ListOptions{Status: models.OperationStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.ActionStart, failed[0].Action)
	assert.Equal(t, 2, failed[0].Instances)
}

func TestTestbedService_LogsOutcomeLevel(t *testing.T) {
	setup := NewTestSetup(t)
	svc := setup.Service

	var out bytes.Buffer
	tblogger.SetOutput(&out)
	t.Cleanup(func() { tblogger.SetOutput(os.Stderr) })

	_, err := svc.Start(setup.ctx, 1)
	require.ErrorIs(t, err, testbed.ErrInsufficientCapacity)
	assert.Contains(t, out.String(), "level=warning")
	assert.Contains(t, out.String(), `msg="Operation refused"`)
	assert.Contains(t, out.String(), "action=start")

	out.Reset()
	setup.Fake.SimulateCreateFailure(0)
	_, err = svc.Deploy(setup.ctx, 1)
	require.ErrorIs(t, err, compute.ErrFakeCreateFailed)
	assert.Contains(t, out.String(), "level=error")
	assert.Contains(t, out.String(), `msg="Operation failed"`)
	assert.Contains(t, out.String(), "action=deploy")

	out.Reset()
	setup.Fake.ResetToStandard()
	_, err = svc.Refresh(setup.ctx)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "level=info")
	assert.Contains(t, out.String(), `msg="Operation completed"`)
}

func TestTestbedService_UpdatesMetrics(t *testing.T) {
	setup := NewTestSetup(t)
	svc := setup.Service

	_, err := svc.Deploy(setup.ctx, 3)
	require.NoError(t, err)
	_, err = svc.Start(setup.ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(setup.Metrics.Instances.WithLabelValues("A", "active")))
	assert.Equal(t, 2.0, testutil.ToFloat64(setup.Metrics.Instances.WithLabelValues("B", "inactive")))
	assert.Equal(t, 2, testutil.CollectAndCount(setup.Metrics.OperationDuration))
}

func TestTestbedService_SerialisesCallers(t *testing.T) {
	setup := NewTestSetup(t)
	svc := setup.Service

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deploy(setup.ctx, 1)
			assert.NoError(t, err)
			_ = svc.Status()
		}()
	}
	wg.Wait()

	assert.Len(t, svc.Instances(), 10)
	history, err := svc.History(setup.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, history, 5)
}

func TestTestbedService_WithoutHistory(t *testing.T) {
	setup := NewTestSetup(t)
	engineOnly := &Testbed{engine: setup.Service.engine}

	op, err := engineOnly.Deploy(setup.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.OperationStatusCompleted, op.Status)
	assert.Zero(t, op.ID)

	_, err = engineOnly.History(setup.ctx, nil)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestTestbedService_Status(t *testing.T) {
	setup := NewTestSetup(t)
	svc := setup.Service

	_, err := svc.Deploy(setup.ctx, 1)
	require.NoError(t, err)

	status := svc.Status()
	assert.Equal(t, compute.ProviderFake, status.Provider)
	assert.Equal(t, 2, status.Total)
	require.Len(t, status.Regions, 2)
	assert.Len(t, status.Regions[0].Rows, 1)
}
