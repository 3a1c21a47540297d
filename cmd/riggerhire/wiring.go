package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tiation/riggerhire/internal/actor"
	actorrepo "github.com/tiation/riggerhire/internal/actor/repositoryimpl"
	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/config"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/eventbus"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/sqlitedb"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/store/storeimpl"
	"github.com/tiation/riggerhire/pkg/storage"
)

// components is everything a command needs, built from the environment.
type components struct {
	engine  *engine.Engine
	worker  *actorsync.Worker
	bus     *eventbus.Bus
	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

func newStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return s, nil
	}
}

func newComponents(ctx context.Context, env *config.Env) (*components, error) {
	c := &components{bus: eventbus.New()}

	docs, err := newStorage(ctx, &env.StorageEnv)
	if err != nil {
		return nil, err
	}

	var (
		st     store.Store
		actors actor.Repository
	)
	switch env.StoreEnv.Type {
	case "sqlite":
		db, err := sqlitedb.Open(ctx, env.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		st = storeimpl.NewSQLiteStore(db)
		actors = actorrepo.NewSQLiteRepository(db)
	default:
		st = storeimpl.NewYAMLStore(docs)
		actors = actorrepo.NewYAMLRepository(docs)
	}

	gateway := payment.NewSimulated(payment.SimulatedConfig{
		SuccessRate:    env.SuccessRate,
		ChargeLatency:  env.Latency,
		ReleaseLatency: env.EscrowLatency,
	})
	queue := actorsync.NewQueue(docs)

	c.engine = engine.New(st, actors, gateway, queue,
		engine.WithPublisher(c.bus),
		engine.WithStaleAfter(env.StaleAfter),
	)
	c.worker = actorsync.NewWorker(queue, actors, c.engine, actorsync.Config{
		PollInterval:   env.PollInterval,
		InitialBackoff: env.InitialBackoff,
		MaxBackoff:     env.MaxBackoff,
	})
	return c, nil
}
