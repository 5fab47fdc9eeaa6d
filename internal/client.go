/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"sync"
)

// MetaServerClient is the stub a client holds toward metadata-server
// partitions. The wire protocol behind it belongs to the transport layer;
// everything here speaks statuses and plain records.
type MetaServerClient interface {
	// GetTxId resolves the partition owning an inode and that partition's
	// current rename-transaction id.
	GetTxId(fsId uint32, inodeId uint64) (partitionId uint32, txId uint64, status int32)
	// SetTxId updates the client-side cached transaction id after a commit.
	SetTxId(partitionId uint32, txId uint64)
	PrepareRenameTx(partitionId uint32, entries []Dentry) int32

	GetDentry(fsId uint32, parentId uint64, name string) (Dentry, int32)
	ListDentry(fsId uint32, parentId uint64, limit int) ([]Dentry, int32)
	CreateDentry(dentry Dentry) int32
	DeleteDentry(fsId uint32, parentId uint64, name string) int32

	CreateInode(inode Inode) int32
	GetInode(fsId uint32, inodeId uint64) (Inode, int32)
	UnlinkInode(fsId uint32, inodeId uint64) int32
}

// ClusterManagerClient is the stub toward the cluster manager.
type ClusterManagerClient interface {
	CommitTx(txIds []PartitionTxId) int32
	AllocInodeId() (uint64, int32)
}

// LoopbackMetaClient dispatches in-process to partitions resolved through the
// cluster ring. It keeps the per-partition transaction-id cache that a remote
// implementation would maintain to skip a lookup RPC per rename.
type LoopbackMetaClient struct {
	cluster *ClusterManager
	lock    *sync.RWMutex
	txIds   map[uint32]uint64
}

func NewLoopbackMetaClient(cluster *ClusterManager) *LoopbackMetaClient {
	return &LoopbackMetaClient{cluster: cluster, lock: new(sync.RWMutex), txIds: make(map[uint32]uint64)}
}

func (c *LoopbackMetaClient) GetTxId(fsId uint32, inodeId uint64) (partitionId uint32, txId uint64, status int32) {
	p, ok := c.cluster.ResolvePartition(fsId, inodeId)
	if !ok {
		log.Errorf("Failed: LoopbackMetaClient.GetTxId, ResolvePartition, fsId=%v, inodeId=%v", fsId, inodeId)
		return 0, 0, MetaStatusRpcErr
	}
	c.lock.RLock()
	txId, hit := c.txIds[p.PartitionId()]
	c.lock.RUnlock()
	if !hit {
		txId = p.GetTxId()
		c.SetTxId(p.PartitionId(), txId)
	}
	return p.PartitionId(), txId, MetaStatusOk
}

func (c *LoopbackMetaClient) SetTxId(partitionId uint32, txId uint64) {
	c.lock.Lock()
	c.txIds[partitionId] = txId
	c.lock.Unlock()
}

func (c *LoopbackMetaClient) PrepareRenameTx(partitionId uint32, entries []Dentry) int32 {
	p, ok := c.cluster.GetPartition(partitionId)
	if !ok {
		log.Errorf("Failed: LoopbackMetaClient.PrepareRenameTx, unknown partition, partitionId=%v", partitionId)
		return MetaStatusRpcErr
	}
	status := p.PrepareRenameTx(entries)
	if status == MetaStatusTxStale {
		// the cached txId lost a race with another client's commit
		c.lock.Lock()
		delete(c.txIds, partitionId)
		c.lock.Unlock()
	}
	return status
}

func (c *LoopbackMetaClient) resolve(fsId uint32, inodeId uint64) (*Partition, int32) {
	p, ok := c.cluster.ResolvePartition(fsId, inodeId)
	if !ok {
		log.Errorf("Failed: LoopbackMetaClient.resolve, ResolvePartition, fsId=%v, inodeId=%v", fsId, inodeId)
		return nil, MetaStatusRpcErr
	}
	return p, MetaStatusOk
}

func (c *LoopbackMetaClient) GetDentry(fsId uint32, parentId uint64, name string) (Dentry, int32) {
	p, status := c.resolve(fsId, parentId)
	if status != MetaStatusOk {
		return Dentry{}, status
	}
	return p.GetDentry(fsId, parentId, name)
}

func (c *LoopbackMetaClient) ListDentry(fsId uint32, parentId uint64, limit int) ([]Dentry, int32) {
	p, status := c.resolve(fsId, parentId)
	if status != MetaStatusOk {
		return nil, status
	}
	return p.ListDentry(fsId, parentId, limit)
}

func (c *LoopbackMetaClient) CreateDentry(dentry Dentry) int32 {
	p, status := c.resolve(dentry.FsId, dentry.ParentId)
	if status != MetaStatusOk {
		return status
	}
	return p.CreateDentry(dentry)
}

func (c *LoopbackMetaClient) DeleteDentry(fsId uint32, parentId uint64, name string) int32 {
	p, status := c.resolve(fsId, parentId)
	if status != MetaStatusOk {
		return status
	}
	return p.DeleteDentry(fsId, parentId, name)
}

func (c *LoopbackMetaClient) CreateInode(inode Inode) int32 {
	p, status := c.resolve(inode.FsId, inode.InodeId)
	if status != MetaStatusOk {
		return status
	}
	return p.CreateInode(inode)
}

func (c *LoopbackMetaClient) GetInode(fsId uint32, inodeId uint64) (Inode, int32) {
	p, status := c.resolve(fsId, inodeId)
	if status != MetaStatusOk {
		return Inode{}, status
	}
	return p.GetInode(fsId, inodeId)
}

func (c *LoopbackMetaClient) UnlinkInode(fsId uint32, inodeId uint64) int32 {
	p, status := c.resolve(fsId, inodeId)
	if status != MetaStatusOk {
		return status
	}
	return p.UnlinkInode(fsId, inodeId)
}

// LoopbackClusterClient dispatches commit batches to an in-process cluster
// manager.
type LoopbackClusterClient struct {
	cluster *ClusterManager
}

func NewLoopbackClusterClient(cluster *ClusterManager) *LoopbackClusterClient {
	return &LoopbackClusterClient{cluster: cluster}
}

func (c *LoopbackClusterClient) CommitTx(txIds []PartitionTxId) int32 {
	return c.cluster.CommitTx(txIds)
}

func (c *LoopbackClusterClient) AllocInodeId() (uint64, int32) {
	return c.cluster.AllocInodeId(), MetaStatusOk
}
