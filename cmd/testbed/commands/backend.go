package commands

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/celestiaorg/testbed/internal/compute"
	"github.com/celestiaorg/testbed/internal/config"
	"github.com/celestiaorg/testbed/internal/db"
	"github.com/celestiaorg/testbed/internal/db/models"
	"github.com/celestiaorg/testbed/internal/db/repos"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/internal/services"
	"github.com/celestiaorg/testbed/internal/testbed"
	"github.com/celestiaorg/testbed/pkg/api/v1/client"
)

// Backend is what the commands drive: either the engine in-process or a remote server
type Backend interface {
	Deploy(ctx context.Context, quantity int) (models.Operation, error)
	Start(ctx context.Context, quantity int) (models.Operation, error)
	Stop(ctx context.Context) (models.Operation, error)
	Refresh(ctx context.Context) (models.Operation, error)
	Destroy(ctx context.Context) (models.Operation, error)
	Status(ctx context.Context) (testbed.Status, error)
	History(ctx context.Context, opts *models.ListOptions) ([]models.Operation, error)
	Close() error
}

// newBackend is replaced in tests
var newBackend = openBackend

func openBackend(ctx context.Context, opts *rootOptions) (Backend, error) {
	if opts.serverAddress != "" {
		apiClient, err := client.NewClient(&client.Options{BaseURL: opts.serverAddress})
		if err != nil {
			return nil, err
		}
		return &remoteBackend{client: apiClient}, nil
	}

	svc, closeDB, err := openService(ctx, opts, nil)
	if err != nil {
		return nil, err
	}
	return &localBackend{service: svc, closeDB: closeDB}, nil
}

// openService loads the settings, connects to the provider and opens the history database
func openService(ctx context.Context, opts *rootOptions, m *metrics.Metrics) (*services.Testbed, func() error, error) {
	settings, err := config.Load(opts.settingsFile)
	if err != nil {
		return nil, nil, err
	}

	provider, err := compute.NewComputeProvider(ctx, settings)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []testbed.Option{testbed.WithMaxWait(opts.maxWait)}
	if opts.pollInterval > 0 {
		engineOpts = append(engineOpts, testbed.WithPollInterval(opts.pollInterval))
	}
	engine, err := testbed.New(ctx, settings, provider, engineOpts...)
	if err != nil {
		return nil, nil, err
	}

	closeDB := func() error { return nil }
	var operationRepo *repos.OperationRepository
	if opts.dbPath != "" {
		var gdb *gorm.DB
		gdb, err = db.New(db.Options{Driver: db.DriverSQLite, Path: opts.dbPath})
		if err != nil {
			return nil, nil, err
		}
		operationRepo = repos.NewOperationRepository(gdb)
		closeDB = func() error { return db.Close(gdb) }
	} else {
		logger.Debug("Operation history disabled")
	}

	return services.NewTestbedService(engine, operationRepo, m), closeDB, nil
}

// localBackend drives the engine in-process
type localBackend struct {
	service *services.Testbed
	closeDB func() error
}

func deref(op *models.Operation, err error) (models.Operation, error) {
	if op == nil {
		return models.Operation{}, err
	}
	return *op, err
}

func (b *localBackend) Deploy(ctx context.Context, quantity int) (models.Operation, error) {
	return deref(b.service.Deploy(ctx, quantity))
}

func (b *localBackend) Start(ctx context.Context, quantity int) (models.Operation, error) {
	return deref(b.service.Start(ctx, quantity))
}

func (b *localBackend) Stop(ctx context.Context) (models.Operation, error) {
	return deref(b.service.Stop(ctx))
}

func (b *localBackend) Refresh(ctx context.Context) (models.Operation, error) {
	return deref(b.service.Refresh(ctx))
}

func (b *localBackend) Destroy(ctx context.Context) (models.Operation, error) {
	return deref(b.service.Destroy(ctx))
}

func (b *localBackend) Status(_ context.Context) (testbed.Status, error) {
	return b.service.Status(), nil
}

func (b *localBackend) History(ctx context.Context, opts *models.ListOptions) ([]models.Operation, error) {
	return b.service.History(ctx, opts)
}

func (b *localBackend) Close() error {
	return b.closeDB()
}

// remoteBackend drives a testbed server through the API client
type remoteBackend struct {
	client client.Client
}

func (b *remoteBackend) Deploy(ctx context.Context, quantity int) (models.Operation, error) {
	return b.client.Deploy(ctx, quantity)
}

func (b *remoteBackend) Start(ctx context.Context, quantity int) (models.Operation, error) {
	return b.client.Start(ctx, quantity)
}

func (b *remoteBackend) Stop(ctx context.Context) (models.Operation, error) {
	return b.client.Stop(ctx)
}

func (b *remoteBackend) Refresh(ctx context.Context) (models.Operation, error) {
	return b.client.Refresh(ctx)
}

func (b *remoteBackend) Destroy(ctx context.Context) (models.Operation, error) {
	return b.client.Destroy(ctx)
}

func (b *remoteBackend) Status(ctx context.Context) (testbed.Status, error) {
	return b.client.GetStatus(ctx)
}

func (b *remoteBackend) History(ctx context.Context, opts *models.ListOptions) ([]models.Operation, error) {
	return b.client.ListOperations(ctx, opts)
}

func (b *remoteBackend) Close() error {
	return nil
}

// describe renders an operation for the terminal
func describe(op models.Operation) string {
	return fmt.Sprintf("%s %s in %s (%d instances)", op.Action, op.Status, op.Duration().Round(time.Millisecond), op.Instances)
}
