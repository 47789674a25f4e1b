package inmem

import (
	"context"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/qfnu-tools/jwxt-relay/internal/random"
	"github.com/qfnu-tools/jwxt-relay/internal/session"
	"github.com/qfnu-tools/jwxt-relay/internal/upstream"
)

// idBytes is the amount of random bytes per session identifier (192 bits of entropy)
var idBytes = 24

var dbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		"sessions": {
			Name: "sessions",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:         "id",
					Unique:       true,
					AllowMissing: false,
					Indexer:      &memdb.StringFieldIndex{Field: "ID"},
				},
				"lastUsed": {
					Name:         "lastUsed",
					Unique:       false,
					AllowMissing: false,
					Indexer:      &memdb.IntFieldIndex{Field: "LastUsed"},
				},
			},
		},
	},
}

// Driver represents the in-memory session storage driver built using hashicorp/go-memdb
type Driver struct {
	db *memdb.MemDB
}

var _ session.Storage = (*Driver)(nil)

// New creates a new empty in-memory session storage driver
func New() (*Driver, error) {
	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, err
	}
	return &Driver{db}, nil
}

// Create allocates a new session owning the given upstream client and returns it
func (driver *Driver) Create(_ context.Context, client *upstream.Client) (*session.Session, error) {
	ses := &session.Session{
		ID:       random.Token(idBytes),
		Client:   client,
		LastUsed: time.Now().UnixNano(),
	}

	txn := driver.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("sessions", ses); err != nil {
		return nil, err
	}
	txn.Commit()

	return ses, nil
}

// Resolve looks up a session by its identifier, evicting it if its age exceeds the
// given TTL and refreshing its last-used timestamp otherwise.
// The lookup, eviction and refresh happen inside a single write transaction so that
// concurrent resolves never observe a half-updated entry.
func (driver *Driver) Resolve(_ context.Context, id string, ttl time.Duration) (*session.Session, error) {
	now := time.Now()

	txn := driver.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First("sessions", "id", id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}

	ses := obj.(*session.Session)
	if now.Sub(time.Unix(0, ses.LastUsed)) > ttl {
		if err := txn.Delete("sessions", ses); err != nil {
			return nil, err
		}
		txn.Commit()
		return nil, nil
	}

	// memdb objects are immutable once inserted; touch a copy
	touched := *ses
	touched.LastUsed = now.UnixNano()
	if err := txn.Insert("sessions", &touched); err != nil {
		return nil, err
	}
	txn.Commit()

	return &touched, nil
}

// SetAuthenticated records the latest login verdict on a session
func (driver *Driver) SetAuthenticated(_ context.Context, id string, authenticated bool) error {
	txn := driver.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First("sessions", "id", id)
	if err != nil {
		return err
	}
	if obj == nil {
		return nil
	}

	updated := *(obj.(*session.Session))
	updated.Authenticated = &authenticated
	if err := txn.Insert("sessions", &updated); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Terminate removes a session by its identifier
func (driver *Driver) Terminate(_ context.Context, id string) error {
	txn := driver.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll("sessions", "id", id); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// TerminateExpired removes all sessions whose age exceeds the given TTL
func (driver *Driver) TerminateExpired(_ context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl).UnixNano()

	txn := driver.db.Txn(true)
	defer txn.Abort()

	it, err := txn.LowerBound("sessions", "lastUsed", int64(0))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		ses := obj.(*session.Session)
		if ses.LastUsed > cutoff {
			break
		}
		if err := txn.Delete("sessions", ses); err != nil {
			return 0, err
		}
		deleted++
	}

	txn.Commit()
	return deleted, nil
}
