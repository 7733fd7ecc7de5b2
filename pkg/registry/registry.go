package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/events"
	"github.com/aerosuite/platform/pkg/log"
)

var bucketModels = []byte("model_registry")

// Stage is the deployment stage of a model version.
type Stage string

const (
	StageDraft      Stage = "draft"
	StageStaging    Stage = "staging"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// Version is one immutable registered version of a model. Only Stage
// changes after creation.
type Version struct {
	Version   int               `json:"version"`
	ModelID   string            `json:"modelId"`
	Stage     Stage             `json:"stage"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Model is a named model with its ordered version history.
type Model struct {
	Name      string            `json:"name"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Versions  []*Version        `json:"versions"`
}

// Registry is the durable model registry. Transitions are serialized per
// model name so the at-most-one production and staging occupants hold
// under concurrency.
type Registry struct {
	db  *bolt.DB
	bus *events.Bus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a registry over the given database. bus may be nil.
func New(db *bolt.DB, bus *events.Bus) (*Registry, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketModels)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry bucket: %w", err)
	}
	return &Registry{db: db, bus: bus, locks: make(map[string]*sync.Mutex)}, nil
}

func (r *Registry) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Register creates a named model. Registering an existing name returns
// the stored model unchanged.
func (r *Registry) Register(name string, metadata map[string]string) (*Model, error) {
	if name == "" {
		return nil, apperr.Validation("model name is required")
	}
	l := r.lockFor(name)
	l.Lock()
	defer l.Unlock()

	existing, err := r.load(name)
	if err == nil {
		return existing, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	model := &Model{
		Name:      name,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
		Versions:  []*Version{},
	}
	if err := r.save(model); err != nil {
		return nil, err
	}
	r.publish(events.EventModelRegistered, name, "model registered: "+name)
	log.WithComponent("registry").Info().Str("model", name).Msg("model registered")
	return model, nil
}

// AddVersion appends a new version for the model and returns its number.
// Version numbers are monotonic and never reused.
func (r *Registry) AddVersion(name, modelID string, metadata map[string]string) (int, error) {
	if modelID == "" {
		return 0, apperr.Validation("model id is required")
	}
	l := r.lockFor(name)
	l.Lock()
	defer l.Unlock()

	model, err := r.load(name)
	if err != nil {
		return 0, err
	}

	next := 1
	if n := len(model.Versions); n > 0 {
		next = model.Versions[n-1].Version + 1
	}
	model.Versions = append(model.Versions, &Version{
		Version:   next,
		ModelID:   modelID,
		Stage:     StageDraft,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
	if err := r.save(model); err != nil {
		return 0, err
	}
	return next, nil
}

// Transition moves a version to a new stage. At most one version of a
// model occupies production and at most one occupies staging; the
// previous occupant is archived.
func (r *Registry) Transition(name string, version int, stage Stage) error {
	switch stage {
	case StageDraft, StageStaging, StageProduction, StageArchived:
	default:
		return apperr.Validation("unknown stage: %s", stage)
	}
	l := r.lockFor(name)
	l.Lock()
	defer l.Unlock()

	model, err := r.load(name)
	if err != nil {
		return err
	}

	var target *Version
	for _, v := range model.Versions {
		if v.Version == version {
			target = v
			break
		}
	}
	if target == nil {
		return apperr.NotFound("model %s has no version %d", name, version)
	}

	if stage == StageProduction || stage == StageStaging {
		for _, v := range model.Versions {
			if v != target && v.Stage == stage {
				v.Stage = StageArchived
			}
		}
	}
	target.Stage = stage

	if err := r.save(model); err != nil {
		return err
	}
	r.publish(events.EventModelTransitioned, name,
		fmt.Sprintf("model %s version %d transitioned to %s", name, version, stage))
	log.WithComponent("registry").Info().
		Str("model", name).Int("version", version).Str("stage", string(stage)).
		Msg("version transitioned")
	return nil
}

// GetProduction returns the production version of the model.
func (r *Registry) GetProduction(name string) (*Version, error) {
	return r.getStage(name, StageProduction)
}

// GetStaging returns the staging version of the model.
func (r *Registry) GetStaging(name string) (*Version, error) {
	return r.getStage(name, StageStaging)
}

func (r *Registry) getStage(name string, stage Stage) (*Version, error) {
	model, err := r.load(name)
	if err != nil {
		return nil, err
	}
	for _, v := range model.Versions {
		if v.Stage == stage {
			return v, nil
		}
	}
	return nil, apperr.NotFound("model %s has no %s version", name, stage)
}

// ListVersions returns every version of the model in creation order.
func (r *Registry) ListVersions(name string) ([]*Version, error) {
	model, err := r.load(name)
	if err != nil {
		return nil, err
	}
	return model.Versions, nil
}

// ListModels returns every registered model name.
func (r *Registry) ListModels() ([]string, error) {
	var names []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (r *Registry) load(name string) (*Model, error) {
	var model *Model
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketModels).Get([]byte(name))
		if data == nil {
			return apperr.NotFound("model %s not found", name)
		}
		model = &Model{}
		return json.Unmarshal(data, model)
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

func (r *Registry) save(model *Model) error {
	data, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to marshal model %s: %w", model.Name, err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).Put([]byte(model.Name), data)
	})
}

func (r *Registry) publish(t events.EventType, entityID, msg string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(&events.Event{Type: t, EntityID: entityID, Message: msg})
}
