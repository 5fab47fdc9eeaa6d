/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"fmt"
)

// RenameOperator carries one rename call through the cross-partition
// transaction protocol:
//
//	GetTxId -> Precheck -> PrepareTx -> CommitTx -> UnlinkOldInode -> UpdateCache
//
// Source and destination parents may live on different partitions that cannot
// be locked together, so the move is staged as two dentry versions written
// under each partition's next transaction id (a delete-marked tombstone at
// the source, a prepared insert at the destination) and becomes authoritative
// only when the cluster manager advances both transaction ids in one batch.
// The operator is owned by a single call and never shared; a retry rebuilds
// it from authoritative state.
type RenameOperator struct {
	fsId        uint32
	parentId    uint64
	name        string
	newParentId uint64
	newname     string

	srcPartitionId uint32
	dstPartitionId uint32
	srcTxId        uint64
	dstTxId        uint64
	oldInodeId     uint64
	srcDentry      Dentry
	dstDentry      Dentry
	dentry         Dentry
	newDentry      Dentry

	dentryManager *DentryCacheManager
	inodeManager  *InodeCacheManager
	metaClient    MetaServerClient
	clusterClient ClusterManagerClient
}

func NewRenameOperator(fsId uint32, parentId uint64, name string, newParentId uint64, newname string,
	dentryManager *DentryCacheManager, inodeManager *InodeCacheManager,
	metaClient MetaServerClient, clusterClient ClusterManagerClient) *RenameOperator {
	return &RenameOperator{
		fsId: fsId, parentId: parentId, name: name,
		newParentId: newParentId, newname: newname,
		dentryManager: dentryManager, inodeManager: inodeManager,
		metaClient: metaClient, clusterClient: clusterClient,
	}
}

func (r *RenameOperator) DebugString() string {
	return fmt.Sprintf("( fsId = %v, parentId = %v, name = %v, newParentId = %v, newname = %v"+
		", srcPartitionId = %v, dstPartitionId = %v, srcTxId = %v, dstTxId = %v, oldInodeId = %v"+
		", srcDentry = [%v], dstDentry = [%v], prepare dentry = [%v], prepare new dentry = [%v] )",
		r.fsId, r.parentId, r.name, r.newParentId, r.newname,
		r.srcPartitionId, r.dstPartitionId, r.srcTxId, r.dstTxId, r.oldInodeId,
		r.srcDentry.ShortDebugString(), r.dstDentry.ShortDebugString(),
		r.dentry.ShortDebugString(), r.newDentry.ShortDebugString())
}

// GetTxId resolves the owning partition and pre-rename transaction id for
// both parents. Both lookups must succeed before anything is staged.
func (r *RenameOperator) GetTxId() int32 {
	partitionId, txId, status := r.metaClient.GetTxId(r.fsId, r.parentId)
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.GetTxId, src, status=%v, DebugString=%v", StatusString(status), r.DebugString())
		return MetaStatusRpcErr
	}
	r.srcPartitionId, r.srcTxId = partitionId, txId

	partitionId, txId, status = r.metaClient.GetTxId(r.fsId, r.newParentId)
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.GetTxId, dst, status=%v, DebugString=%v", StatusString(status), r.DebugString())
		return MetaStatusRpcErr
	}
	r.dstPartitionId, r.dstTxId = partitionId, txId
	return MetaStatusOk
}

// checkOverwrite decides whether a pre-existing destination entry may be
// replaced: a regular file always may, a directory only when empty. The probe
// lists a single child through the authoritative partition.
func (r *RenameOperator) checkOverwrite() int32 {
	if r.dstDentry.IsFile() {
		return MetaStatusOk
	}
	children, status := r.dentryManager.ListDentry(r.fsId, r.dstDentry.InodeId, 1)
	if status == MetaStatusOk && len(children) > 0 {
		log.Errorf("Failed: RenameOperator.checkOverwrite, the directory is not empty, dentry=(%v)", r.dstDentry.ShortDebugString())
		return MetaStatusNotEmpty
	}
	return status
}

// Precheck enforces the two rename preconditions: the source entry must
// exist, and an existing destination must be a file or an empty directory.
func (r *RenameOperator) Precheck() int32 {
	dentry, status := r.dentryManager.GetDentry(r.fsId, r.parentId, r.name)
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.Precheck, GetDentry src, status=%v, DebugString=%v", StatusString(status), r.DebugString())
		return status
	}
	r.srcDentry = dentry

	dentry, status = r.dentryManager.GetDentry(r.fsId, r.newParentId, r.newname)
	if status == MetaStatusNotExist {
		return MetaStatusOk
	} else if status == MetaStatusOk {
		r.dstDentry = dentry
		r.oldInodeId = dentry.InodeId
		return r.checkOverwrite()
	}

	log.Errorf("Failed: RenameOperator.Precheck, GetDentry dst, status=%v, DebugString=%v", StatusString(status), r.DebugString())
	return status
}

func (r *RenameOperator) prepareRenameTx(partitionId uint32, entries []Dentry) int32 {
	status := r.metaClient.PrepareRenameTx(partitionId, entries)
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.prepareRenameTx, partitionId=%v, status=%v, DebugString=%v", partitionId, StatusString(status), r.DebugString())
	}
	return status
}

// PrepareTx stages the two transactional writes: a tombstone of the source
// entry under the source partition's next transaction id and a re-parented
// copy under the destination partition's next id. Same-partition renames
// submit both in one batch; cross-partition renames submit per partition, and
// a failure of the second submission aborts the rename leaving the first
// partition's staged tombstone dangling (it stays provisional and is rolled
// back by that partition's next prepare).
func (r *RenameOperator) PrepareTx() int32 {
	r.dentry = r.srcDentry
	r.dentry.TxId = r.srcTxId + 1
	r.dentry.Flags |= DentryFlagDeleteMark | DentryFlagTxPrepare

	r.newDentry = r.srcDentry
	r.newDentry.ParentId = r.newParentId
	r.newDentry.Name = r.newname
	r.newDentry.TxId = r.dstTxId + 1
	r.newDentry.Flags |= DentryFlagTxPrepare

	var status int32
	if r.srcPartitionId == r.dstPartitionId {
		status = r.prepareRenameTx(r.srcPartitionId, []Dentry{r.dentry, r.newDentry})
	} else {
		status = r.prepareRenameTx(r.srcPartitionId, []Dentry{r.dentry})
		if status == MetaStatusOk {
			status = r.prepareRenameTx(r.dstPartitionId, []Dentry{r.newDentry})
		}
	}

	if status == MetaStatusTxStale {
		// the pre-read transaction id lost a race with another commit; the
		// caller restarts from fresh ids
		return MetaStatusTxStale
	}
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.PrepareTx, status=%v, DebugString=%v", StatusString(status), r.DebugString())
		return MetaStatusPrepareFailed
	}
	return MetaStatusOk
}

// CommitTx asks the cluster manager to advance the touched partitions'
// transaction ids in one batch. This is the point of no return: before it
// succeeds readers still see the pre-rename state, after it the staged
// entries are the truth.
func (r *RenameOperator) CommitTx() int32 {
	txIds := []PartitionTxId{{PartitionId: r.srcPartitionId, TxId: r.srcTxId + 1}}
	if r.srcPartitionId != r.dstPartitionId {
		txIds = append(txIds, PartitionTxId{PartitionId: r.dstPartitionId, TxId: r.dstTxId + 1})
	}
	status := r.clusterClient.CommitTx(txIds)
	if status == MetaStatusTxStale {
		// a racing client committed first; the next attempt re-reads the ids
		return MetaStatusTxStale
	}
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.CommitTx, status=%v, DebugString=%v", StatusString(status), r.DebugString())
		return MetaStatusInternal
	}
	return MetaStatusOk
}

// UnlinkOldInode drops the overwritten target's link after a successful
// commit. Failures are cleanup debt for the reclamation path, never a rename
// failure.
func (r *RenameOperator) UnlinkOldInode() {
	if r.oldInodeId == 0 {
		return
	}
	wrapper, status := r.inodeManager.GetInode(r.fsId, r.oldInodeId)
	if status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.UnlinkOldInode, GetInode, status=%v, DebugString=%v", StatusString(status), r.DebugString())
		return
	}
	if status = wrapper.UnlinkLocked(); status != MetaStatusOk {
		log.Errorf("Failed: RenameOperator.UnlinkOldInode, UnlinkLocked, status=%v, DebugString=%v", StatusString(status), r.DebugString())
	}
}

// UpdateCache reconciles this client's own view: the source entry is evicted,
// the destination entry replaced with the committed version, and the cached
// transaction ids bumped to the committed values.
func (r *RenameOperator) UpdateCache() {
	r.dentryManager.DeleteCache(r.fsId, r.parentId, r.name)
	committed := r.newDentry
	committed.Flags &= ^DentryFlagTxPrepare
	r.dentryManager.InsertOrReplaceCache(committed)
	r.metaClient.SetTxId(r.srcPartitionId, r.srcTxId+1)
	r.metaClient.SetTxId(r.dstPartitionId, r.dstTxId+1)
}
