/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// DentryCacheManager is the client-side read-through cache over
// (parentId, name) lookups. Capacity is bounded both by entry count and by
// accounted bytes; eviction is LRU. Listing is deliberately uncached: the
// only caller that lists through here is the rename emptiness probe, which
// must see the owning partition's authoritative children.
type DentryCacheManager struct {
	lock     *sync.Mutex
	maxCount int
	maxBytes int64
	bytes    int64
	lruList  *list.List
	elements map[DentryKey]*list.Element
	meta     MetaServerClient

	hits      uint64
	misses    uint64
	evictions uint64
}

func dentryBytes(dentry *Dentry) int64 {
	// key + value share the name; fixed fields are two ids, an inode id,
	// a txid and flags
	return int64(len(dentry.Name))*2 + 32
}

func NewDentryCacheManager(maxCount int, maxBytes int64, meta MetaServerClient) *DentryCacheManager {
	return &DentryCacheManager{
		lock: new(sync.Mutex), maxCount: maxCount, maxBytes: maxBytes,
		lruList: list.New(), elements: make(map[DentryKey]*list.Element), meta: meta,
	}
}

func (c *DentryCacheManager) GetDentry(fsId uint32, parentId uint64, name string) (Dentry, int32) {
	key := DentryKey{FsId: fsId, ParentId: parentId, Name: name}
	c.lock.Lock()
	if element, ok := c.elements[key]; ok {
		c.lruList.MoveToFront(element)
		dentry := element.Value.(Dentry)
		c.lock.Unlock()
		atomic.AddUint64(&c.hits, 1)
		return dentry, MetaStatusOk
	}
	c.lock.Unlock()
	atomic.AddUint64(&c.misses, 1)
	dentry, status := c.meta.GetDentry(fsId, parentId, name)
	if status != MetaStatusOk {
		return Dentry{}, status
	}
	c.InsertOrReplaceCache(dentry)
	return dentry, MetaStatusOk
}

func (c *DentryCacheManager) ListDentry(fsId uint32, parentId uint64, limit int) ([]Dentry, int32) {
	return c.meta.ListDentry(fsId, parentId, limit)
}

func (c *DentryCacheManager) DeleteCache(fsId uint32, parentId uint64, name string) {
	key := DentryKey{FsId: fsId, ParentId: parentId, Name: name}
	c.lock.Lock()
	if element, ok := c.elements[key]; ok {
		dentry := element.Value.(Dentry)
		c.bytes -= dentryBytes(&dentry)
		c.lruList.Remove(element)
		delete(c.elements, key)
	}
	c.lock.Unlock()
}

func (c *DentryCacheManager) InsertOrReplaceCache(dentry Dentry) {
	c.lock.Lock()
	if element, ok := c.elements[dentry.Key()]; ok {
		c.lruList.MoveToFront(element)
		element.Value = dentry
		c.lock.Unlock()
		return
	}
	c.elements[dentry.Key()] = c.lruList.PushFront(dentry)
	c.bytes += dentryBytes(&dentry)
	for c.lruList.Len() > c.maxCount || (c.maxBytes > 0 && c.bytes > c.maxBytes) {
		oldest := c.lruList.Back()
		if oldest == nil {
			break
		}
		old := oldest.Value.(Dentry)
		c.bytes -= dentryBytes(&old)
		c.lruList.Remove(oldest)
		delete(c.elements, old.Key())
		atomic.AddUint64(&c.evictions, 1)
	}
	c.lock.Unlock()
}

func (c *DentryCacheManager) CacheStats() (hits uint64, misses uint64, evictions uint64, count int, bytes int64) {
	c.lock.Lock()
	count = c.lruList.Len()
	bytes = c.bytes
	c.lock.Unlock()
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions), count, bytes
}

// InodeWrapper is a client-side handle to one inode. Mutations lock the
// wrapper so concurrent holders of the same handle serialize.
type InodeWrapper struct {
	lock  *sync.Mutex
	inode Inode
	meta  MetaServerClient
}

func (w *InodeWrapper) GetInode() Inode {
	w.lock.Lock()
	inode := w.inode
	w.lock.Unlock()
	return inode
}

// UnlinkLocked drops one link at the owning partition and mirrors the result
// locally. The partition deletes the inode when the count reaches zero.
func (w *InodeWrapper) UnlinkLocked() int32 {
	w.lock.Lock()
	defer w.lock.Unlock()
	status := w.meta.UnlinkInode(w.inode.FsId, w.inode.InodeId)
	if status != MetaStatusOk {
		log.Errorf("Failed: InodeWrapper.UnlinkLocked, UnlinkInode, inode=(%v), status=%v", w.inode.ShortDebugString(), StatusString(status))
		return status
	}
	if w.inode.Nlink > 0 {
		w.inode.Nlink -= 1
	}
	return MetaStatusOk
}

// InodeCacheManager caches inode handles by id with LRU eviction. Eviction
// only forgets the handle; the authoritative inode lives at its partition.
type InodeCacheManager struct {
	lock     *sync.Mutex
	maxCount int
	lruList  *list.List
	elements map[InodeKey]*list.Element
	meta     MetaServerClient
}

func NewInodeCacheManager(maxCount int, meta MetaServerClient) *InodeCacheManager {
	return &InodeCacheManager{
		lock: new(sync.Mutex), maxCount: maxCount,
		lruList: list.New(), elements: make(map[InodeKey]*list.Element), meta: meta,
	}
}

func (m *InodeCacheManager) GetInode(fsId uint32, inodeId uint64) (*InodeWrapper, int32) {
	key := InodeKey{FsId: fsId, InodeId: inodeId}
	m.lock.Lock()
	if element, ok := m.elements[key]; ok {
		m.lruList.MoveToFront(element)
		wrapper := element.Value.(*InodeWrapper)
		m.lock.Unlock()
		return wrapper, MetaStatusOk
	}
	m.lock.Unlock()
	inode, status := m.meta.GetInode(fsId, inodeId)
	if status != MetaStatusOk {
		return nil, status
	}
	wrapper := &InodeWrapper{lock: new(sync.Mutex), inode: inode, meta: m.meta}
	m.lock.Lock()
	if element, ok := m.elements[key]; ok {
		// lost the race to another fetch, keep the first handle
		m.lruList.MoveToFront(element)
		wrapper = element.Value.(*InodeWrapper)
	} else {
		m.elements[key] = m.lruList.PushFront(wrapper)
		for m.lruList.Len() > m.maxCount {
			oldest := m.lruList.Back()
			if oldest == nil {
				break
			}
			old := oldest.Value.(*InodeWrapper)
			m.lruList.Remove(oldest)
			inode := old.GetInode()
			delete(m.elements, inode.Key())
		}
	}
	m.lock.Unlock()
	return wrapper, MetaStatusOk
}

func (m *InodeCacheManager) DeleteCache(fsId uint32, inodeId uint64) {
	key := InodeKey{FsId: fsId, InodeId: inodeId}
	m.lock.Lock()
	if element, ok := m.elements[key]; ok {
		m.lruList.Remove(element)
		delete(m.elements, key)
	}
	m.lock.Unlock()
}
