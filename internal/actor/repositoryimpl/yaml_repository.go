package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/keylock"
	"github.com/tiation/riggerhire/pkg/storage"
)

const (
	actorsPrefix = "actors"
	maxAttempts  = 5
)

var _ actor.Repository = (*YAMLRepository)(nil)

type YAMLRepository struct {
	storage storage.Storage
	locks   *keylock.Locker
	now     func() time.Time
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s, locks: keylock.New(), now: time.Now}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", actorsPrefix, id)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*actor.Actor, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("actor", err)
	}
	var a actor.Actor
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal actor: %w", err))
	}
	return &a, nil
}

// modify applies fn to the stored actor, creating it when missing. Writers
// in other processes are detected by the conditional write and retried.
func (r *YAMLRepository) modify(ctx context.Context, id string, fn func(a *actor.Actor)) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	for range maxAttempts {
		a := &actor.Actor{ID: id}
		data, version, err := r.storage.ReadVersioned(ctx, path(id))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			version = ""
		case err != nil:
			return cerr.WrapStorageReadError("actor", err)
		default:
			if err := yaml.Unmarshal(data, a); err != nil {
				return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal actor: %w", err))
			}
		}
		if a.Counters == nil {
			a.Counters = make(map[string]int64)
		}
		fn(a)
		a.UpdatedAt = r.now()

		out, err := yaml.Marshal(a)
		if err != nil {
			return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal actor: %w", err))
		}
		_, err = r.storage.WriteIfMatch(ctx, path(id), out, version)
		if errors.Is(err, storage.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return cerr.WrapStorageWriteError("actor", err)
		}
		return nil
	}
	return cerr.WrapStorageWriteError("actor", storage.ErrPreconditionFailed)
}

func (r *YAMLRepository) Register(ctx context.Context, id string, role actor.Role) error {
	return r.modify(ctx, id, func(a *actor.Actor) {
		a.Role = role
	})
}

func (r *YAMLRepository) IncrementCounter(ctx context.Context, id, counter string, delta int64) error {
	return r.modify(ctx, id, func(a *actor.Actor) {
		a.Counters[counter] += delta
	})
}

func (r *YAMLRepository) SetRating(ctx context.Context, id string, average decimal.Decimal, count int) error {
	return r.modify(ctx, id, func(a *actor.Actor) {
		a.AverageRating = average
		a.RatingCount = count
	})
}
