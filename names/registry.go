// Package names maintains the durable name-registry index: a
// name -> NameRecord lookup and its reverse, kept current by subscribing
// to the weave's name-registration events rather than by scanning state.
// weave.State itself only ever remembers the current name -> address
// binding (see weave.State.ResolveName/ReverseName); this package is the
// durable, queryable index of currently bound names behind it that
// nodeapi's ListNames and GetNameRecords read from. A cleared name's
// records are deleted, so no history of past bindings is kept.
package names

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/events"
	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/storage"
	"github.com/nornlabs/norn/types"
)

const (
	prefixName    = "name:"
	prefixReverse = "reverse:"
)

// NameRecord is the durable record behind a registered name: who
// registered it, what address it currently resolves to, and when it was
// first bound. Owner and Target coincide at registration time; there is
// no delegated-redirect operation in this registry, so the two never
// diverge today, but are kept distinct to match the on-chain layout named
// in the node's persistent-storage spec.
type NameRecord struct {
	Name         string          `json:"name"`
	Owner        types.Address   `json:"owner"`
	Target       types.Address   `json:"target"`
	RegisteredAt types.Timestamp `json:"registered_at"`
}

// Registry subscribes to the weave's name-registration events and keeps a
// durable index of the names currently bound, queryable by name or by
// address.
type Registry struct {
	db storage.DB
}

// New creates a Registry backed by db and subscribes it to emitter.
func New(db storage.DB, emitter *events.Emitter) *Registry {
	r := &Registry{db: db}
	emitter.Subscribe(events.EventNameRegistered, r.onNameRegistered)
	emitter.Subscribe(events.EventNameCleared, r.onNameCleared)
	return r
}

// Resolve returns the record currently bound to name.
func (r *Registry) Resolve(name string) (*NameRecord, error) {
	data, err := r.db.Get([]byte(prefixName + name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNameNotFound
		}
		return nil, err
	}
	var rec NameRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode name record: %v", errs.ErrStorage, err)
	}
	return &rec, nil
}

// Reverse returns the name currently bound to addr, if any.
func (r *Registry) Reverse(addr types.Address) (string, error) {
	data, err := r.db.Get([]byte(prefixReverse + addr.String()))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNameNotFound
		}
		return "", err
	}
	return string(data), nil
}

// List returns every name record currently bound, in storage iteration
// order (not guaranteed sorted; callers needing a stable order should sort
// on Name).
func (r *Registry) List() ([]*NameRecord, error) {
	it := r.db.NewIterator([]byte(prefixName))
	defer it.Release()

	var out []*NameRecord
	for it.Next() {
		var rec NameRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode name record: %v", errs.ErrStorage, err)
		}
		out = append(out, &rec)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrNameNotFound is returned by Resolve/Reverse when no record is bound.
var ErrNameNotFound = fmt.Errorf("%w: name not registered", errs.ErrStorage)

func (r *Registry) onNameRegistered(ev events.Event) {
	logger := log.For("names")
	name, _ := ev.Data["name"].(string)
	addrHex, _ := ev.Data["address"].(string)
	registeredAt, _ := ev.Data["registered_at"].(uint64)
	if name == "" || addrHex == "" {
		return
	}
	addr, err := types.AddressFromHex(addrHex)
	if err != nil {
		logger.Warnw("bad address in name_registered event", "name", name, "error", err)
		return
	}

	rec := NameRecord{Name: name, Owner: addr, Target: addr, RegisteredAt: types.Timestamp(registeredAt)}
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Errorw("marshal name record failed", "name", name, "error", err)
		return
	}
	if err := r.db.Set([]byte(prefixName+name), data); err != nil {
		logger.Errorw("persist name record failed", "name", name, "error", err)
		return
	}
	if err := r.db.Set([]byte(prefixReverse+addr.String()), []byte(name)); err != nil {
		logger.Errorw("persist reverse name record failed", "name", name, "error", err)
	}
}

func (r *Registry) onNameCleared(ev events.Event) {
	logger := log.For("names")
	name, _ := ev.Data["name"].(string)
	if name == "" {
		return
	}
	rec, err := r.Resolve(name)
	if err != nil {
		if !errors.Is(err, ErrNameNotFound) {
			logger.Warnw("resolve before clear failed", "name", name, "error", err)
		}
		return
	}
	if err := r.db.Delete([]byte(prefixName + name)); err != nil {
		logger.Errorw("delete name record failed", "name", name, "error", err)
	}
	if err := r.db.Delete([]byte(prefixReverse + rec.Target.String())); err != nil {
		logger.Errorw("delete reverse name record failed", "name", name, "error", err)
	}
}
