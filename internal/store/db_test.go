package store

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"dualinbox/internal/domain"
)

const (
	alice = domain.Address("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	bob   = domain.Address("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
)

func openTemp(t *testing.T, passphrase string) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, passphrase)
	require.NoError(t, err)
	return db, path
}

func TestDB_Keys(t *testing.T) {
	require := require.New(t)
	db, _ := openTemp(t, "")
	defer db.Close()

	_, ok, err := db.LoadKey(domain.KeyDM, alice)
	require.NoError(err)
	require.False(ok)

	key := []byte("0123456789abcdef0123456789abcdef")
	require.NoError(db.SaveKey(domain.KeyDM, alice, key))

	// Lookups ignore address case.
	got, ok, err := db.LoadKey(domain.KeyDM, domain.Address("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	require.NoError(err)
	require.True(ok)
	require.Equal(key, got)

	_, ok, err = db.LoadKey(domain.KeyGroup, alice)
	require.NoError(err)
	require.False(ok)

	require.Error(db.SaveKey(domain.KeyKind("bogus"), alice, key))
}

func TestDB_ActiveAndPurge(t *testing.T) {
	require := require.New(t)
	db, _ := openTemp(t, "")
	defer db.Close()

	require.NoError(db.SaveKey(domain.KeyDM, alice, []byte{1}))
	require.NoError(db.SaveKey(domain.KeyGroup, alice, []byte{2}))
	require.NoError(db.SaveKey(domain.KeyDM, bob, []byte{3}))
	require.NoError(db.MarkActive(alice))
	require.NoError(db.SaveGroupMessage(domain.DecryptedGroupMessage{CID: "bafy1", ChatID: "chat", From: bob, Plaintext: []byte("hi")}))
	require.NoError(db.SaveResolution(domain.Resolution{Subject: "bob.eth", Address: bob}))

	active, ok, err := db.ActiveAddress()
	require.NoError(err)
	require.True(ok)
	require.True(active.Equal(alice))

	require.NoError(db.Purge(alice))

	_, ok, err = db.LoadKey(domain.KeyDM, alice)
	require.NoError(err)
	require.False(ok)
	_, ok, err = db.LoadKey(domain.KeyGroup, alice)
	require.NoError(err)
	require.False(ok)
	_, ok, err = db.ActiveAddress()
	require.NoError(err)
	require.False(ok)
	_, ok, err = db.LoadGroupMessage("bafy1")
	require.NoError(err)
	require.False(ok)
	_, ok, err = db.LoadResolution("bob.eth")
	require.NoError(err)
	require.True(ok)

	_, ok, err = db.LoadKey(domain.KeyDM, bob)
	require.NoError(err)
	require.True(ok)
}

func TestDB_Sealed(t *testing.T) {
	require := require.New(t)
	db, path := openTemp(t, "hunter2")
	require.True(db.Sealed())

	key := []byte("sealed-key")
	require.NoError(db.SaveKey(domain.KeyGroup, alice, key))
	msg := domain.DecryptedGroupMessage{CID: "bafy1", ChatID: "chat", From: bob, Plaintext: []byte("secret plaintext")}
	require.NoError(db.SaveGroupMessage(msg))
	require.NoError(db.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(groupMessagesBucket)).Get([]byte("bafy1"))
		require.NotNil(raw)
		require.False(bytes.Contains(raw, msg.Plaintext))
		return nil
	}))
	require.NoError(db.Close())

	_, err := Open(path, "")
	require.ErrorIs(err, ErrPassphraseRequired)

	_, err = Open(path, "wrong")
	require.ErrorIs(err, ErrWrongPassphrase)

	db, err = Open(path, "hunter2")
	require.NoError(err)
	defer db.Close()
	got, ok, err := db.LoadKey(domain.KeyGroup, alice)
	require.NoError(err)
	require.True(ok)
	require.Equal(key, got)
	gotMsg, ok, err := db.LoadGroupMessage("bafy1")
	require.NoError(err)
	require.True(ok)
	require.Equal(msg.Plaintext, gotMsg.Plaintext)
}

func TestDB_SealingDropsPlaintextCache(t *testing.T) {
	require := require.New(t)
	db, path := openTemp(t, "")
	require.NoError(db.SaveGroupMessage(domain.DecryptedGroupMessage{CID: "bafy1", ChatID: "chat", From: bob, Plaintext: []byte("hi")}))
	require.NoError(db.Close())

	db, err := Open(path, "late")
	require.NoError(err)
	defer db.Close()
	require.True(db.Sealed())
	_, ok, err := db.LoadGroupMessage("bafy1")
	require.NoError(err)
	require.False(ok)
}

func TestDB_RefusesSealingPlaintextKeys(t *testing.T) {
	require := require.New(t)
	db, path := openTemp(t, "")
	require.NoError(db.SaveKey(domain.KeyDM, alice, []byte{1}))
	require.NoError(db.Close())

	_, err := Open(path, "late")
	require.ErrorIs(err, ErrUnsealedKeys)
}

func TestDB_Caches(t *testing.T) {
	require := require.New(t)
	db, _ := openTemp(t, "")
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(db.SaveResolution(domain.Resolution{Subject: "Alice.eth", Address: alice, Name: "alice.eth", Resolved: now}))
	r, ok, err := db.LoadResolution("alice.eth")
	require.NoError(err)
	require.True(ok)
	require.Equal(alice, r.Address)
	require.True(now.Equal(r.Resolved))

	msg := domain.DecryptedGroupMessage{CID: "bafy1", Link: "bafy0", ChatID: "chat", From: bob, Kind: domain.GroupKindText, Plaintext: []byte("hi"), Timestamp: 42}
	require.NoError(db.SaveGroupMessage(msg))
	got, ok, err := db.LoadGroupMessage("bafy1")
	require.NoError(err)
	require.True(ok)
	require.Equal(msg, got)
	require.Error(db.SaveGroupMessage(domain.DecryptedGroupMessage{}))

	_, ok, err = db.LoadGroupUser(bob)
	require.NoError(err)
	require.False(ok)
	u := domain.GroupUser{Account: bob, DID: "eip155:" + bob.String(), PublicKey: []byte{9}, Name: "bob"}
	require.NoError(db.SaveGroupUser(u))
	gotU, ok, err := db.LoadGroupUser(bob)
	require.NoError(err)
	require.True(ok)
	require.Equal(u, gotU)
}

func TestWalletFileStore(t *testing.T) {
	require := require.New(t)
	ws := NewWalletFileStore(t.TempDir())
	require.False(ws.HasWallet())

	_, err := ws.LoadWallet("pass")
	require.ErrorIs(err, ErrNoWallet)

	seed := []byte("0123456789abcdef0123456789abcdef")
	require.NoError(ws.SaveWallet("pass", seed))
	require.True(ws.HasWallet())

	got, err := ws.LoadWallet("pass")
	require.NoError(err)
	require.Equal(seed, got)

	_, err = ws.LoadWallet("wrong")
	require.ErrorIs(err, ErrWrongPassphrase)
}
