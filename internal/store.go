/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"sync"

	"github.com/google/btree"
)

// DentryStore is the associative container a partition keeps its dentry
// versions in. Implementations guarantee non-torn reads: Put/Get/Delete are
// atomic with respect to each other, and the Ascend callbacks observe a
// consistent snapshot of the range they walk. The version key is
// (FsId, ParentId, Name, TxId); Put replaces an existing version in place so
// that a dangling staged version from an aborted rename is superseded by the
// next prepare on the same path.
type DentryStore interface {
	Put(dentry Dentry) int32
	Get(key DentryKey, txId uint64) (Dentry, int32)
	Delete(key DentryKey, txId uint64) int32
	Count() int
	// AscendVersions walks all versions of one logical entry in TxId order.
	AscendVersions(key DentryKey, iter func(Dentry) bool)
	// AscendChildren walks every version under a parent ordered by
	// (Name, TxId). Visibility filtering is the caller's job.
	AscendChildren(fsId uint32, parentId uint64, iter func(Dentry) bool)
}

// InodeStore holds the partition's inodes keyed by (FsId, InodeId).
type InodeStore interface {
	Insert(inode Inode) int32
	Get(key InodeKey) (Inode, int32)
	Update(inode Inode) int32
	Delete(key InodeKey) int32
	Count() int
}

type dentryItem struct {
	dentry Dentry
}

func (a dentryItem) Less(b btree.Item) bool {
	o := b.(dentryItem)
	if a.dentry.FsId != o.dentry.FsId {
		return a.dentry.FsId < o.dentry.FsId
	}
	if a.dentry.ParentId != o.dentry.ParentId {
		return a.dentry.ParentId < o.dentry.ParentId
	}
	if a.dentry.Name != o.dentry.Name {
		return a.dentry.Name < o.dentry.Name
	}
	return a.dentry.TxId < o.dentry.TxId
}

type MemoryDentryStore struct {
	lock    *sync.RWMutex
	entries *btree.BTree
}

func NewMemoryDentryStore() *MemoryDentryStore {
	return &MemoryDentryStore{lock: new(sync.RWMutex), entries: btree.New(3)}
}

func (s *MemoryDentryStore) Put(dentry Dentry) int32 {
	s.lock.Lock()
	s.entries.ReplaceOrInsert(dentryItem{dentry: dentry})
	s.lock.Unlock()
	return MetaStatusOk
}

func (s *MemoryDentryStore) Get(key DentryKey, txId uint64) (Dentry, int32) {
	s.lock.RLock()
	item := s.entries.Get(dentryItem{dentry: Dentry{FsId: key.FsId, ParentId: key.ParentId, Name: key.Name, TxId: txId}})
	s.lock.RUnlock()
	if item == nil {
		return Dentry{}, MetaStatusNotExist
	}
	return item.(dentryItem).dentry, MetaStatusOk
}

func (s *MemoryDentryStore) Delete(key DentryKey, txId uint64) int32 {
	s.lock.Lock()
	item := s.entries.Delete(dentryItem{dentry: Dentry{FsId: key.FsId, ParentId: key.ParentId, Name: key.Name, TxId: txId}})
	s.lock.Unlock()
	if item == nil {
		return MetaStatusNotExist
	}
	return MetaStatusOk
}

func (s *MemoryDentryStore) Count() int {
	s.lock.RLock()
	n := s.entries.Len()
	s.lock.RUnlock()
	return n
}

func (s *MemoryDentryStore) AscendVersions(key DentryKey, iter func(Dentry) bool) {
	pivot := dentryItem{dentry: Dentry{FsId: key.FsId, ParentId: key.ParentId, Name: key.Name, TxId: 0}}
	s.lock.RLock()
	s.entries.AscendGreaterOrEqual(pivot, func(b btree.Item) bool {
		dentry := b.(dentryItem).dentry
		if dentry.FsId != key.FsId || dentry.ParentId != key.ParentId || dentry.Name != key.Name {
			return false
		}
		return iter(dentry)
	})
	s.lock.RUnlock()
}

func (s *MemoryDentryStore) AscendChildren(fsId uint32, parentId uint64, iter func(Dentry) bool) {
	pivot := dentryItem{dentry: Dentry{FsId: fsId, ParentId: parentId}}
	s.lock.RLock()
	s.entries.AscendGreaterOrEqual(pivot, func(b btree.Item) bool {
		dentry := b.(dentryItem).dentry
		if dentry.FsId != fsId || dentry.ParentId != parentId {
			return false
		}
		return iter(dentry)
	})
	s.lock.RUnlock()
}

type MemoryInodeStore struct {
	lock   *sync.RWMutex
	inodes map[InodeKey]Inode
}

func NewMemoryInodeStore() *MemoryInodeStore {
	return &MemoryInodeStore{lock: new(sync.RWMutex), inodes: make(map[InodeKey]Inode)}
}

func (s *MemoryInodeStore) Insert(inode Inode) int32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.inodes[inode.Key()]; ok {
		return MetaStatusExist
	}
	s.inodes[inode.Key()] = inode
	return MetaStatusOk
}

func (s *MemoryInodeStore) Get(key InodeKey) (Inode, int32) {
	s.lock.RLock()
	inode, ok := s.inodes[key]
	s.lock.RUnlock()
	if !ok {
		return Inode{}, MetaStatusNotFound
	}
	return inode, MetaStatusOk
}

func (s *MemoryInodeStore) Update(inode Inode) int32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.inodes[inode.Key()]; !ok {
		return MetaStatusNotFound
	}
	s.inodes[inode.Key()] = inode
	return MetaStatusOk
}

func (s *MemoryInodeStore) Delete(key InodeKey) int32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.inodes[key]; !ok {
		return MetaStatusNotFound
	}
	delete(s.inodes, key)
	return MetaStatusOk
}

func (s *MemoryInodeStore) Count() int {
	s.lock.RLock()
	n := len(s.inodes)
	s.lock.RUnlock()
	return n
}
