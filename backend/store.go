package backend

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	bolt "go.etcd.io/bbolt"
)

const (
	dbName           = "backend.db"
	dbFilePermission = 0600
)

// byteOrder is the encoding used for every fixed-width integer persisted
// by this package.
var byteOrder = binary.BigEndian

var (
	projectsBucket = []byte("projects")
	openBucket     = []byte("open-pledges")
	claimedBucket  = []byte("claimed-pledges")
	revokedBucket  = []byte("revoked-pledges")
)

// migration mutates the bucket structure of a prior database version to
// arrive at the current one.
type migration func(tx *bolt.Tx) error

type version struct {
	number    uint32
	migration migration
}

// dbVersions lists every schema version in order; the base version
// requires no migration.
var dbVersions = []version{
	{number: 0, migration: nil},
}

var metaBucket = []byte("meta")
var dbVersionKey = []byte("version")

// Store is the backend's persistent record of project state and pledge
// sets, backed by a bbolt database file.
type Store struct {
	*bolt.DB
	dbPath string
}

// OpenStore opens (creating if necessary) the backend store at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	path := filepath.Join(dbPath, dbName)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	bdb, err := bolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	store := &Store{DB: bdb, dbPath: dbPath}
	if err := store.initBuckets(); err != nil {
		bdb.Close()
		return nil, err
	}
	if err := store.syncVersion(); err != nil {
		bdb.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) initBuckets() error {
	return s.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{projectsBucket, openBucket, claimedBucket, revokedBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// syncVersion runs every migration between the database's stored version
// and the newest one known to this binary.
func (s *Store) syncVersion() error {
	var current uint32
	err := s.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		v := meta.Get(dbVersionKey)
		if len(v) == 4 {
			current = byteOrder.Uint32(v)
		}
		return nil
	})
	if err != nil {
		return err
	}

	latest := dbVersions[len(dbVersions)-1].number
	if current == latest {
		return nil
	}
	if current > latest {
		return fmt.Errorf("backend store version %d is newer than this binary's %d", current, latest)
	}

	return s.Update(func(tx *bolt.Tx) error {
		for _, v := range dbVersions {
			if v.number <= current || v.migration == nil {
				continue
			}
			if err := v.migration(tx); err != nil {
				return err
			}
		}
		buf := make([]byte, 4)
		byteOrder.PutUint32(buf, latest)
		return tx.Bucket(metaBucket).Put(dbVersionKey, buf)
	})
}

// putProjectState persists a project's current state and (if CLAIMED)
// claim txid.
func (s *Store) putProjectState(id chainhash.Hash, state ProjectState, claimTxID *chainhash.Hash) error {
	return s.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 1, 33)
		buf[0] = byte(state)
		if claimTxID != nil {
			buf = append(buf, claimTxID[:]...)
		}
		return tx.Bucket(projectsBucket).Put(id[:], buf)
	})
}

// loadProjectState reads a project's persisted state, if any.
func (s *Store) loadProjectState(id chainhash.Hash) (ProjectState, *chainhash.Hash, bool, error) {
	var (
		state ProjectState
		txid  *chainhash.Hash
		found bool
	)
	err := s.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(projectsBucket).Get(id[:])
		if v == nil {
			return nil
		}
		found = true
		state = ProjectState(v[0])
		if len(v) == 33 {
			var h chainhash.Hash
			copy(h[:], v[1:])
			txid = &h
		}
		return nil
	})
	return state, txid, found, err
}

func pledgeKey(projectID, pledgeID chainhash.Hash) []byte {
	key := make([]byte, 64)
	copy(key[:32], projectID[:])
	copy(key[32:], pledgeID[:])
	return key
}

func (s *Store) putPledge(bucket []byte, projectID, pledgeID chainhash.Hash, raw []byte) error {
	return s.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(pledgeKey(projectID, pledgeID), raw)
	})
}

func (s *Store) deletePledge(bucket []byte, projectID, pledgeID chainhash.Hash) error {
	return s.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(pledgeKey(projectID, pledgeID))
	})
}

// loadPledges returns every raw pledge stored under bucket for projectID.
func (s *Store) loadPledges(bucket []byte, projectID chainhash.Hash) (map[chainhash.Hash][]byte, error) {
	out := make(map[chainhash.Hash][]byte)
	err := s.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		prefix := projectID[:]
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var id chainhash.Hash
			copy(id[:], k[32:])
			out[id] = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func hasPrefix(k, prefix []byte) bool {
	return len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix)
}
