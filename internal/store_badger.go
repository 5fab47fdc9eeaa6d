/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"encoding/binary"
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Key schema:
//
//	'd' | fsId (4, BE) | parentId (8, BE) | name | 0x00 | txId (8, BE) -> json(Dentry)
//	'i' | fsId (4, BE) | inodeId (8, BE)                               -> json(Inode)
//
// Names cannot contain NUL or '/', so the 0x00 terminator keeps keys ordered
// by (parent, name, txId) the same way the in-memory btree orders them.
// Values are JSON: metadata records are small and the debuggability is worth
// more than a binary codec here.

func dentryPrefix(fsId uint32, parentId uint64) []byte {
	key := make([]byte, 13)
	key[0] = 'd'
	binary.BigEndian.PutUint32(key[1:5], fsId)
	binary.BigEndian.PutUint64(key[5:13], parentId)
	return key
}

func dentryVersionPrefix(key DentryKey) []byte {
	buf := dentryPrefix(key.FsId, key.ParentId)
	buf = append(buf, key.Name...)
	buf = append(buf, 0)
	return buf
}

func dentryKeyBytes(key DentryKey, txId uint64) []byte {
	buf := dentryVersionPrefix(key)
	var txBuf [8]byte
	binary.BigEndian.PutUint64(txBuf[:], txId)
	return append(buf, txBuf[:]...)
}

func inodeKeyBytes(key InodeKey) []byte {
	buf := make([]byte, 13)
	buf[0] = 'i'
	binary.BigEndian.PutUint32(buf[1:5], key.FsId)
	binary.BigEndian.PutUint64(buf[5:13], key.InodeId)
	return buf
}

// BadgerStore backs both store contracts with one embedded badger database,
// so a partition's dentries and inodes survive restarts together.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	db, err := badger.Open(opts)
	if err != nil {
		log.Errorf("Failed: NewBadgerStore, Open, dir=%v, err=%v", dir, err)
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) DentryStore() DentryStore {
	return &badgerDentryStore{db: s.db}
}

func (s *BadgerStore) InodeStore() InodeStore {
	return &badgerInodeStore{db: s.db}
}

type badgerDentryStore struct {
	db *badger.DB
}

func (s *badgerDentryStore) Put(dentry Dentry) int32 {
	value, err := json.Marshal(&dentry)
	if err != nil {
		log.Errorf("Failed: badgerDentryStore.Put, Marshal, dentry=%v, err=%v", dentry.ShortDebugString(), err)
		return MetaStatusInternal
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dentryKeyBytes(dentry.Key(), dentry.TxId), value)
	})
	if err != nil {
		log.Errorf("Failed: badgerDentryStore.Put, Update, dentry=%v, err=%v", dentry.ShortDebugString(), err)
		return MetaStatusInternal
	}
	return MetaStatusOk
}

func (s *badgerDentryStore) Get(key DentryKey, txId uint64) (dentry Dentry, status int32) {
	status = MetaStatusOk
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dentryKeyBytes(key, txId))
		if err == badger.ErrKeyNotFound {
			status = MetaStatusNotExist
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &dentry)
		})
	})
	if err != nil {
		log.Errorf("Failed: badgerDentryStore.Get, View, parentId=%v, name=%v, txId=%v, err=%v", key.ParentId, key.Name, txId, err)
		return Dentry{}, MetaStatusInternal
	}
	return
}

func (s *badgerDentryStore) Delete(key DentryKey, txId uint64) int32 {
	status := MetaStatusOk
	err := s.db.Update(func(txn *badger.Txn) error {
		keyBytes := dentryKeyBytes(key, txId)
		if _, err := txn.Get(keyBytes); err == badger.ErrKeyNotFound {
			status = MetaStatusNotExist
			return nil
		}
		return txn.Delete(keyBytes)
	})
	if err != nil {
		log.Errorf("Failed: badgerDentryStore.Delete, Update, parentId=%v, name=%v, txId=%v, err=%v", key.ParentId, key.Name, txId, err)
		return MetaStatusInternal
	}
	return status
}

func (s *badgerDentryStore) Count() int {
	count := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{'d'}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count += 1
		}
		return nil
	})
	return count
}

func (s *badgerDentryStore) ascend(prefix []byte, iter func(Dentry) bool) {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var dentry Dentry
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dentry)
			})
			if err != nil {
				return err
			}
			if !iter(dentry) {
				break
			}
		}
		return nil
	})
	if err != nil {
		log.Errorf("Failed: badgerDentryStore.ascend, View, prefix=%x, err=%v", prefix, err)
	}
}

func (s *badgerDentryStore) AscendVersions(key DentryKey, iter func(Dentry) bool) {
	s.ascend(dentryVersionPrefix(key), iter)
}

func (s *badgerDentryStore) AscendChildren(fsId uint32, parentId uint64, iter func(Dentry) bool) {
	s.ascend(dentryPrefix(fsId, parentId), iter)
}

type badgerInodeStore struct {
	db *badger.DB
}

func (s *badgerInodeStore) put(inode Inode, mustExist bool) int32 {
	value, err := json.Marshal(&inode)
	if err != nil {
		log.Errorf("Failed: badgerInodeStore.put, Marshal, inode=%v, err=%v", inode.ShortDebugString(), err)
		return MetaStatusInternal
	}
	status := MetaStatusOk
	err = s.db.Update(func(txn *badger.Txn) error {
		keyBytes := inodeKeyBytes(inode.Key())
		_, err := txn.Get(keyBytes)
		if mustExist && err == badger.ErrKeyNotFound {
			status = MetaStatusNotFound
			return nil
		} else if !mustExist && err == nil {
			status = MetaStatusExist
			return nil
		}
		return txn.Set(keyBytes, value)
	})
	if err != nil {
		log.Errorf("Failed: badgerInodeStore.put, Update, inode=%v, err=%v", inode.ShortDebugString(), err)
		return MetaStatusInternal
	}
	return status
}

func (s *badgerInodeStore) Insert(inode Inode) int32 {
	return s.put(inode, false)
}

func (s *badgerInodeStore) Update(inode Inode) int32 {
	return s.put(inode, true)
}

func (s *badgerInodeStore) Get(key InodeKey) (inode Inode, status int32) {
	status = MetaStatusOk
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(inodeKeyBytes(key))
		if err == badger.ErrKeyNotFound {
			status = MetaStatusNotFound
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &inode)
		})
	})
	if err != nil {
		log.Errorf("Failed: badgerInodeStore.Get, View, inodeId=%v, err=%v", key.InodeId, err)
		return Inode{}, MetaStatusInternal
	}
	return
}

func (s *badgerInodeStore) Delete(key InodeKey) int32 {
	status := MetaStatusOk
	err := s.db.Update(func(txn *badger.Txn) error {
		keyBytes := inodeKeyBytes(key)
		if _, err := txn.Get(keyBytes); err == badger.ErrKeyNotFound {
			status = MetaStatusNotFound
			return nil
		}
		return txn.Delete(keyBytes)
	})
	if err != nil {
		log.Errorf("Failed: badgerInodeStore.Delete, Update, inodeId=%v, err=%v", key.InodeId, err)
		return MetaStatusInternal
	}
	return status
}

func (s *badgerInodeStore) Count() int {
	count := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{'i'}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count += 1
		}
		return nil
	})
	return count
}
