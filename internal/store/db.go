package store

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"dualinbox/internal/domain"
)

const (
	metadataBucket      = "metadata"
	dmKeysBucket        = "dm_keys"
	groupKeysBucket     = "group_keys"
	activeBucket        = "active"
	resolutionsBucket   = "resolutions"
	groupMessagesBucket = "group_messages"
	groupUsersBucket    = "group_users"

	versionKey = "version"
	kdfKey     = "kdf"
	checkKey   = "check"
	activeKey  = "address"

	dbVersion = 0
)

var (
	allBuckets = []string{
		metadataBucket,
		dmKeysBucket,
		groupKeysBucket,
		activeBucket,
		resolutionsBucket,
		groupMessagesBucket,
		groupUsersBucket,
	}

	// ErrUnsealedKeys is returned when a passphrase is supplied for a
	// database that already holds plaintext keys.
	ErrUnsealedKeys = errors.New("store: database holds unsealed keys")

	errUnknownKind = errors.New("store: unknown key kind")
)

// DB is the bbolt backed local key and cache store.
type DB struct {
	db   *bolt.DB
	seal *sealer
	enc  cbor.EncMode
}

// Open creates (or loads) the store at path. A non-empty passphrase seals
// protocol keys; a store created with a passphrase cannot be opened
// without one.
func Open(path, passphrase string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		bdb.Close()
		return nil, err
	}
	d := &DB{db: bdb, enc: enc}

	if err = bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		meta := tx.Bucket([]byte(metadataBucket))
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != dbVersion {
				return fmt.Errorf("store: incompatible version: %x", b)
			}
		} else if err := meta.Put([]byte(versionKey), []byte{dbVersion}); err != nil {
			return err
		}
		return d.initSealer(tx, passphrase)
	}); err != nil {
		bdb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initSealer(tx *bolt.Tx, passphrase string) error {
	meta := tx.Bucket([]byte(metadataBucket))
	raw := meta.Get([]byte(kdfKey))

	if raw == nil {
		if passphrase == "" {
			return nil
		}
		for _, name := range []string{dmKeysBucket, groupKeysBucket} {
			if k, _ := tx.Bucket([]byte(name)).Cursor().First(); k != nil {
				return ErrUnsealedKeys
			}
		}
		if err := resetBucket(tx, groupMessagesBucket); err != nil {
			return err
		}
		params, err := newKDFParams()
		if err != nil {
			return err
		}
		s, err := newSealer(passphrase, params)
		if err != nil {
			return err
		}
		check, err := s.seal([]byte(checkPlaintext), []byte(checkKey))
		if err != nil {
			return err
		}
		b, err := d.enc.Marshal(params)
		if err != nil {
			return err
		}
		if err := meta.Put([]byte(kdfKey), b); err != nil {
			return err
		}
		if err := meta.Put([]byte(checkKey), check); err != nil {
			return err
		}
		d.seal = s
		return nil
	}

	if passphrase == "" {
		return ErrPassphraseRequired
	}
	params := new(kdfParams)
	if err := cbor.Unmarshal(raw, params); err != nil {
		return err
	}
	s, err := newSealer(passphrase, params)
	if err != nil {
		return err
	}
	pt, err := s.open(meta.Get([]byte(checkKey)), []byte(checkKey))
	if err != nil {
		return err
	}
	if !bytes.Equal(pt, []byte(checkPlaintext)) {
		return ErrWrongPassphrase
	}
	d.seal = s
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Sealed reports whether protocol keys are encrypted at rest.
func (d *DB) Sealed() bool {
	return d.seal != nil
}

func keyBucket(kind domain.KeyKind) (string, error) {
	switch kind {
	case domain.KeyDM:
		return dmKeysBucket, nil
	case domain.KeyGroup:
		return groupKeysBucket, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

// SaveKey persists key for addr, replacing any previous value.
func (d *DB) SaveKey(kind domain.KeyKind, addr domain.Address, key []byte) error {
	name, err := keyBucket(kind)
	if err != nil {
		return err
	}
	k := []byte(addr.Key())
	v := key
	if d.seal != nil {
		if v, err = d.seal.seal(key, k); err != nil {
			return err
		}
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(name)).Put(k, v)
	})
}

// LoadKey returns the key stored for addr. Lookups are case-insensitive in
// the address.
func (d *DB) LoadKey(kind domain.KeyKind, addr domain.Address) ([]byte, bool, error) {
	name, err := keyBucket(kind)
	if err != nil {
		return nil, false, err
	}
	k := []byte(addr.Key())
	var v []byte
	if err := d.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(name)).Get(k); b != nil {
			v = bytes.Clone(b)
		}
		return nil
	}); err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	if d.seal != nil {
		if v, err = d.seal.open(v, k); err != nil {
			return nil, false, err
		}
	}
	return v, true, nil
}

// MarkActive records addr as the currently active inbox.
func (d *DB) MarkActive(addr domain.Address) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(activeBucket)).Put([]byte(activeKey), []byte(addr.String()))
	})
}

// ActiveAddress returns the most recently activated inbox.
func (d *DB) ActiveAddress() (domain.Address, bool, error) {
	var addr domain.Address
	err := d.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(activeBucket)).Get([]byte(activeKey)); b != nil {
			addr = domain.Address(string(b))
		}
		return nil
	})
	return addr, !addr.IsZero(), err
}

// Purge removes every key of addr, drops the decrypted group message cache
// and clears the active marker if it points at addr. Cached resolutions are
// public name data and survive.
func (d *DB) Purge(addr domain.Address) error {
	k := []byte(addr.Key())
	return d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{dmKeysBucket, groupKeysBucket, groupUsersBucket} {
			if err := tx.Bucket([]byte(name)).Delete(k); err != nil {
				return err
			}
		}
		if err := resetBucket(tx, groupMessagesBucket); err != nil {
			return err
		}
		active := tx.Bucket([]byte(activeBucket))
		if b := active.Get([]byte(activeKey)); b != nil && domain.Address(string(b)).Equal(addr) {
			return active.Delete([]byte(activeKey))
		}
		return nil
	})
}

func resetBucket(tx *bolt.Tx, name string) error {
	if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return err
	}
	_, err := tx.CreateBucket([]byte(name))
	return err
}

func (d *DB) put(bucket string, key []byte, v any) error {
	return d.putValue(bucket, key, v, false)
}

// putSealed is put with the value sealed when the store has a passphrase.
func (d *DB) putSealed(bucket string, key []byte, v any) error {
	return d.putValue(bucket, key, v, true)
}

func (d *DB) putValue(bucket string, key []byte, v any, sealed bool) error {
	b, err := d.enc.Marshal(v)
	if err != nil {
		return err
	}
	if sealed && d.seal != nil {
		if b, err = d.seal.seal(b, key); err != nil {
			return err
		}
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(key, b)
	})
}

func (d *DB) get(bucket string, key []byte, out any) (bool, error) {
	return d.getValue(bucket, key, out, false)
}

func (d *DB) getSealed(bucket string, key []byte, out any) (bool, error) {
	return d.getValue(bucket, key, out, true)
}

func (d *DB) getValue(bucket string, key []byte, out any, sealed bool) (bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bucket)).Get(key); b != nil {
			raw = bytes.Clone(b)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	if sealed && d.seal != nil {
		if raw, err = d.seal.open(raw, key); err != nil {
			return false, err
		}
	}
	return true, cbor.Unmarshal(raw, out)
}

func subjectKey(subject string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(subject)))
}

// SaveResolution caches a name resolution keyed by its subject.
func (d *DB) SaveResolution(r domain.Resolution) error {
	return d.put(resolutionsBucket, subjectKey(r.Subject), r)
}

// LoadResolution returns the cached resolution for subject.
func (d *DB) LoadResolution(subject string) (domain.Resolution, bool, error) {
	var r domain.Resolution
	ok, err := d.get(resolutionsBucket, subjectKey(subject), &r)
	return r, ok, err
}

// SaveGroupMessage caches a decrypted group message by its content link,
// sealed like protocol keys.
func (d *DB) SaveGroupMessage(m domain.DecryptedGroupMessage) error {
	if m.CID == "" {
		return errors.New("store: group message without content link")
	}
	return d.putSealed(groupMessagesBucket, []byte(m.CID), m)
}

// LoadGroupMessage returns the cached group message with content link cid.
func (d *DB) LoadGroupMessage(cid string) (domain.DecryptedGroupMessage, bool, error) {
	var m domain.DecryptedGroupMessage
	ok, err := d.getSealed(groupMessagesBucket, []byte(cid), &m)
	return m, ok, err
}

// SaveGroupUser caches a group user profile by account.
func (d *DB) SaveGroupUser(u domain.GroupUser) error {
	return d.put(groupUsersBucket, []byte(u.Account.Key()), u)
}

// LoadGroupUser returns the cached profile of addr.
func (d *DB) LoadGroupUser(addr domain.Address) (domain.GroupUser, bool, error) {
	var u domain.GroupUser
	ok, err := d.get(groupUsersBucket, []byte(addr.Key()), &u)
	return u, ok, err
}

var (
	_ domain.KeyStore        = (*DB)(nil)
	_ domain.ResolutionStore = (*DB)(nil)
	_ domain.GroupCache      = (*DB)(nil)
)
