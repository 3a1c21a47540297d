package storeimpl

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/keylock"
	"github.com/tiation/riggerhire/pkg/storage"
)

const (
	tasksPrefix        = "tasks"
	applicationsPrefix = "applications"
)

var _ store.Store = (*YAMLStore)(nil)

// YAMLStore keeps each task and its applications in one YAML document, so
// a transition is a single conditional object write. applications/<id>.yaml
// maps an application id back to its task.
type YAMLStore struct {
	storage storage.Storage
	locks   *keylock.Locker
}

func NewYAMLStore(s storage.Storage) *YAMLStore {
	return &YAMLStore{storage: s, locks: keylock.New()}
}

type applicationIndex struct {
	TaskID string `yaml:"task_id"`
}

func taskPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", tasksPrefix, id)
}

func applicationPath(id string) string {
	return fmt.Sprintf("%s/%s.yaml", applicationsPrefix, id)
}

func (r *YAMLStore) read(ctx context.Context, id string) (*store.Snapshot, string, error) {
	data, version, err := r.storage.ReadVersioned(ctx, taskPath(id))
	if err != nil {
		return nil, "", cerr.WrapStorageReadError("task", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, "", err
	}
	return snap, version, nil
}

func decodeSnapshot(data []byte) (*store.Snapshot, error) {
	var snap store.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal task: %w", err))
	}
	if snap.Task == nil {
		return nil, cerr.NewError(cerr.Internal, "server error", errors.New("task document without task"))
	}
	return &snap, nil
}

func encodeSnapshot(snap *store.Snapshot) ([]byte, error) {
	if snap.Applications == nil {
		snap.Applications = []*application.Application{}
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
	}
	return data, nil
}

func (r *YAMLStore) CreateTask(ctx context.Context, t *task.Task) error {
	snap := &store.Snapshot{Task: t.Clone()}
	if snap.Task.Version == 0 {
		snap.Task.Version = 1
	}
	if err := snap.Validate(); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid task", err)
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := r.storage.WriteIfMatch(ctx, taskPath(t.ID), data, ""); err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
		}
		return cerr.WrapStorageWriteError("task", err)
	}
	t.Version = snap.Task.Version
	return nil
}

func (r *YAMLStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	snap, _, err := r.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.Task, nil
}

func (r *YAMLStore) Snapshot(ctx context.Context, taskID string) (*store.Snapshot, error) {
	snap, _, err := r.read(ctx, taskID)
	return snap, err
}

func (r *YAMLStore) GetApplication(ctx context.Context, id string) (*application.Application, error) {
	data, err := r.storage.Read(ctx, applicationPath(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("application", err)
	}
	var idx applicationIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal application index: %w", err))
	}
	snap, _, err := r.read(ctx, idx.TaskID)
	if err != nil {
		return nil, err
	}
	// The index is written before the task document, so it may point at a
	// commit that never happened.
	a := snap.Application(id)
	if a == nil {
		return nil, cerr.NewReasonError(cerr.NotFound, cerr.ReasonNotFound, "application not found")
	}
	return a, nil
}

// scan reads every task document in id order. Unreadable documents are
// skipped, matching the other YAML listings.
func (r *YAMLStore) scan(ctx context.Context) ([]*store.Snapshot, error) {
	paths, err := r.storage.List(ctx, tasksPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("tasks", err)
	}
	sort.Strings(paths)

	var out []*store.Snapshot
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (r *YAMLStore) ListTasks(ctx context.Context, f store.TaskFilter) ([]*task.Task, int, error) {
	snaps, err := r.scan(ctx)
	if err != nil {
		return nil, 0, err
	}
	var all []*task.Task
	for _, s := range snaps {
		if f.Match(s.Task) {
			all = append(all, s.Task)
		}
	}
	return store.Page(all, f.Limit, f.Offset), len(all), nil
}

func (r *YAMLStore) ListApplications(ctx context.Context, f store.ApplicationFilter) ([]*application.Application, error) {
	var snaps []*store.Snapshot
	if f.TaskID != "" {
		snap, _, err := r.read(ctx, f.TaskID)
		if err != nil {
			return nil, err
		}
		snaps = []*store.Snapshot{snap}
	} else {
		var err error
		if snaps, err = r.scan(ctx); err != nil {
			return nil, err
		}
	}
	var out []*application.Application
	for _, s := range snaps {
		for _, a := range s.Applications {
			if f.Match(a) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// Update serializes writers of the same task in this process with a key
// lock and across processes with a conditional write on the document.
func (r *YAMLStore) Update(ctx context.Context, taskID string, mutate store.MutateFunc) (*store.Snapshot, error) {
	unlock := r.locks.Lock(taskID)
	defer unlock()

	current, version, err := r.read(ctx, taskID)
	if err != nil {
		return nil, err
	}
	next, err := store.Apply(current, mutate)
	if err != nil {
		return nil, err
	}

	for _, a := range store.Added(current, next) {
		data, err := yaml.Marshal(applicationIndex{TaskID: taskID})
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal application index: %w", err))
		}
		if err := r.storage.Write(ctx, applicationPath(a.ID), data); err != nil {
			return nil, cerr.WrapStorageWriteError("application", err)
		}
	}

	data, err := encodeSnapshot(next)
	if err != nil {
		return nil, err
	}
	if _, err := r.storage.WriteIfMatch(ctx, taskPath(taskID), data, version); err != nil {
		return nil, cerr.WrapStorageWriteError("task", err)
	}
	return next, nil
}

func (r *YAMLStore) Close() error {
	return nil
}
