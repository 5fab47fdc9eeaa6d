/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"sync"
)

// Partition owns a disjoint shard of the namespace: the dentries whose parent
// hashes onto it and the inodes created under them. Visibility of rename
// writes is gated by txId, the committed watermark: dentry versions staged
// above it are provisional and invisible to readers until the cluster manager
// advances the watermark. The partition holds at most one pending transaction
// (the staged set at txId+1); a new prepare rolls back whatever a previous,
// never-committed prepare left behind, so a dangling staged version from an
// aborted cross-partition rename can never be published by a later commit.
type Partition struct {
	partitionId uint32
	lock        *sync.RWMutex
	txId        uint64
	pending     []DentryKey
	dentries    DentryStore
	inodes      InodeStore
}

func NewPartition(partitionId uint32, dentries DentryStore, inodes InodeStore) *Partition {
	return &Partition{
		partitionId: partitionId, lock: new(sync.RWMutex),
		dentries: dentries, inodes: inodes,
	}
}

func (p *Partition) PartitionId() uint32 {
	return p.partitionId
}

func (p *Partition) GetTxId() uint64 {
	p.lock.RLock()
	txId := p.txId
	p.lock.RUnlock()
	return txId
}

// PrepareRenameTx stages dentry versions for the next transaction id. Every
// entry must expect exactly txId+1; anything else means the caller raced with
// a committed rename and must restart from fresh transaction ids. Staged
// versions of a superseded pending transaction are deleted before the new set
// is written, so only the transaction the cluster manager is asked to commit
// can ever become visible.
func (p *Partition) PrepareRenameTx(entries []Dentry) int32 {
	if len(entries) == 0 {
		return MetaStatusInval
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	for i := range entries {
		if !entries[i].IsPrepared() {
			log.Errorf("Failed: Partition.PrepareRenameTx, entry without prepare flag, partitionId=%v, dentry=(%v)", p.partitionId, entries[i].ShortDebugString())
			return MetaStatusInval
		}
		if entries[i].TxId != p.txId+1 {
			log.Errorf("Failed: Partition.PrepareRenameTx, stale txId, partitionId=%v, current=%v, dentry=(%v)", p.partitionId, p.txId, entries[i].ShortDebugString())
			return MetaStatusTxStale
		}
	}
	incoming := make(map[DentryKey]bool, len(entries))
	for i := range entries {
		incoming[entries[i].Key()] = true
	}
	for _, key := range p.pending {
		if incoming[key] {
			continue
		}
		if status := p.dentries.Delete(key, p.txId+1); status != MetaStatusOk && status != MetaStatusNotExist {
			log.Errorf("Failed: Partition.PrepareRenameTx, rollback superseded, partitionId=%v, name=%v, status=%v", p.partitionId, key.Name, StatusString(status))
			return MetaStatusPrepareFailed
		}
	}
	pending := make([]DentryKey, 0, len(entries))
	for i := range entries {
		if status := p.dentries.Put(entries[i]); status != MetaStatusOk {
			log.Errorf("Failed: Partition.PrepareRenameTx, Put, partitionId=%v, dentry=(%v), status=%v", p.partitionId, entries[i].ShortDebugString(), StatusString(status))
			p.pending = pending
			return MetaStatusPrepareFailed
		}
		pending = append(pending, entries[i].Key())
	}
	p.pending = pending
	return MetaStatusOk
}

// commitTxId advances the committed watermark. Callers serialize through the
// cluster manager; the check-and-advance here is the partition's last line of
// defense against racing renames.
func (p *Partition) commitTxId(txId uint64) int32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	if txId != p.txId+1 {
		log.Errorf("Failed: Partition.commitTxId, stale txId, partitionId=%v, current=%v, txId=%v", p.partitionId, p.txId, txId)
		return MetaStatusTxStale
	}
	p.txId = txId
	p.pending = nil
	return MetaStatusOk
}

// visibleVersion picks the authoritative version of one logical entry: the
// highest TxId at or below the watermark. A delete-marked winner means the
// entry is gone.
func visibleVersion(versions []Dentry, watermark uint64) (Dentry, bool) {
	var ret Dentry
	found := false
	for _, dentry := range versions {
		if dentry.TxId > watermark {
			continue
		}
		if !found || dentry.TxId >= ret.TxId {
			ret = dentry
			found = true
		}
	}
	if !found || ret.IsDeleteMarked() {
		return Dentry{}, false
	}
	ret.Flags &= ^DentryFlagTxPrepare
	return ret, true
}

func (p *Partition) GetDentry(fsId uint32, parentId uint64, name string) (Dentry, int32) {
	watermark := p.GetTxId()
	versions := make([]Dentry, 0, 2)
	p.dentries.AscendVersions(DentryKey{FsId: fsId, ParentId: parentId, Name: name}, func(dentry Dentry) bool {
		versions = append(versions, dentry)
		return true
	})
	dentry, ok := visibleVersion(versions, watermark)
	if !ok {
		return Dentry{}, MetaStatusNotExist
	}
	return dentry, MetaStatusOk
}

// ListDentry returns up to limit visible children of a directory. limit <= 0
// means no limit.
func (p *Partition) ListDentry(fsId uint32, parentId uint64, limit int) ([]Dentry, int32) {
	watermark := p.GetTxId()
	ret := make([]Dentry, 0)
	versions := make([]Dentry, 0, 2)
	flush := func() bool {
		if len(versions) == 0 {
			return true
		}
		dentry, ok := visibleVersion(versions, watermark)
		versions = versions[:0]
		if ok {
			ret = append(ret, dentry)
			if limit > 0 && len(ret) >= limit {
				return false
			}
		}
		return true
	}
	p.dentries.AscendChildren(fsId, parentId, func(dentry Dentry) bool {
		if len(versions) > 0 && versions[0].Name != dentry.Name {
			if !flush() {
				return false
			}
		}
		versions = append(versions, dentry)
		return true
	})
	flush()
	return ret, MetaStatusOk
}

// CreateDentry inserts a visible entry at the current watermark. Normal
// namespace writes do not go through the rename transaction path.
func (p *Partition) CreateDentry(dentry Dentry) int32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	dentry.TxId = p.txId
	dentry.Flags &= ^(DentryFlagDeleteMark | DentryFlagTxPrepare)
	versions := make([]Dentry, 0, 2)
	p.dentries.AscendVersions(dentry.Key(), func(d Dentry) bool {
		versions = append(versions, d)
		return true
	})
	if _, ok := visibleVersion(versions, p.txId); ok {
		return MetaStatusExist
	}
	return p.dentries.Put(dentry)
}

// DeleteDentry removes an entry outside any rename transaction, dropping all
// of its stored versions.
func (p *Partition) DeleteDentry(fsId uint32, parentId uint64, name string) int32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	key := DentryKey{FsId: fsId, ParentId: parentId, Name: name}
	versions := make([]Dentry, 0, 2)
	p.dentries.AscendVersions(key, func(d Dentry) bool {
		versions = append(versions, d)
		return true
	})
	if _, ok := visibleVersion(versions, p.txId); !ok {
		return MetaStatusNotExist
	}
	for _, dentry := range versions {
		if status := p.dentries.Delete(key, dentry.TxId); status != MetaStatusOk {
			log.Errorf("Failed: Partition.DeleteDentry, Delete, partitionId=%v, dentry=(%v), status=%v", p.partitionId, dentry.ShortDebugString(), StatusString(status))
			return MetaStatusInternal
		}
	}
	return MetaStatusOk
}

func (p *Partition) CreateInode(inode Inode) int32 {
	return p.inodes.Insert(inode)
}

func (p *Partition) GetInode(fsId uint32, inodeId uint64) (Inode, int32) {
	return p.inodes.Get(InodeKey{FsId: fsId, InodeId: inodeId})
}

// UnlinkInode decrements the link count and deletes the inode when it reaches
// zero. Directories count their self-link only here; the parent's ".." link
// bookkeeping belongs to mkdir/rmdir, not rename.
func (p *Partition) UnlinkInode(fsId uint32, inodeId uint64) int32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	key := InodeKey{FsId: fsId, InodeId: inodeId}
	inode, status := p.inodes.Get(key)
	if status != MetaStatusOk {
		return status
	}
	if inode.Type == InodeTypeDir || inode.Nlink <= 1 {
		return p.inodes.Delete(key)
	}
	inode.Nlink -= 1
	return p.inodes.Update(inode)
}
