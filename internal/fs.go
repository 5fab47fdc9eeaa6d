/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"github.com/shardfs/shardfs/common"
)

const RootInodeId = uint64(1)

// FsClient is the client-facing surface of the metadata layer. It owns the
// per-client caches and the stubs toward the metadata servers and the cluster
// manager. Concurrent calls on one FsClient are safe; each rename builds its
// own operator and the caches synchronize themselves.
type FsClient struct {
	conf          *common.ShardFsConfig
	dentryManager *DentryCacheManager
	inodeManager  *InodeCacheManager
	metaClient    MetaServerClient
	clusterClient ClusterManagerClient
}

func NewFsClient(conf *common.ShardFsConfig, metaClient MetaServerClient, clusterClient ClusterManagerClient) *FsClient {
	return &FsClient{
		conf:          conf,
		dentryManager: NewDentryCacheManager(conf.DentryCacheCount, conf.DentryCacheSizeBytes, metaClient),
		inodeManager:  NewInodeCacheManager(conf.InodeCacheCount, metaClient),
		metaClient:    metaClient,
		clusterClient: clusterClient,
	}
}

func (c *FsClient) DentryManager() *DentryCacheManager {
	return c.dentryManager
}

// Mkfs creates the root directory inode of a file system. Idempotent: an
// already-formatted file system reports Ok.
func (c *FsClient) Mkfs(fsId uint32) int32 {
	root := NewDirInode(fsId, RootInodeId, c.conf.DirMode, c.conf.Uid, c.conf.Gid)
	status := c.metaClient.CreateInode(root)
	if status == MetaStatusExist {
		return MetaStatusOk
	}
	return status
}

// Rename atomically moves (parentId, name) to (newParentId, newname),
// replacing a pre-existing destination when POSIX allows it. The call
// succeeds once the cluster manager commits; unlink of an overwritten inode
// and cache reconciliation are post-commit housekeeping and never fail the
// call. Attempts that lose the optimistic transaction-id race against
// another client are restarted from fresh ids, up to MaxRetry times.
func (c *FsClient) Rename(fsId uint32, parentId uint64, name string, newParentId uint64, newname string) int32 {
	status := MetaStatusTxStale
	for i := 0; i < c.conf.MaxRetry && status == MetaStatusTxStale; i++ {
		status = c.renameOnce(fsId, parentId, name, newParentId, newname)
	}
	if status == MetaStatusTxStale {
		log.Errorf("Failed: FsClient.Rename, retries exhausted, fsId=%v, parentId=%v, name=%v, maxRetry=%v", fsId, parentId, name, c.conf.MaxRetry)
		return MetaStatusPrepareFailed
	}
	return status
}

func (c *FsClient) renameOnce(fsId uint32, parentId uint64, name string, newParentId uint64, newname string) int32 {
	op := NewRenameOperator(fsId, parentId, name, newParentId, newname,
		c.dentryManager, c.inodeManager, c.metaClient, c.clusterClient)
	if status := op.GetTxId(); status != MetaStatusOk {
		return status
	}
	if status := op.Precheck(); status != MetaStatusOk {
		return status
	}
	if status := op.PrepareTx(); status != MetaStatusOk {
		return status
	}
	if status := op.CommitTx(); status != MetaStatusOk {
		return status
	}
	op.UnlinkOldInode()
	op.UpdateCache()
	log.Debugf("Rename, fsId=%v, parentId=%v, name=%v, newParentId=%v, newname=%v", fsId, parentId, name, newParentId, newname)
	return MetaStatusOk
}

func (c *FsClient) Lookup(fsId uint32, parentId uint64, name string) (Dentry, int32) {
	return c.dentryManager.GetDentry(fsId, parentId, name)
}

func (c *FsClient) ReadDir(fsId uint32, parentId uint64, limit int) ([]Dentry, int32) {
	return c.dentryManager.ListDentry(fsId, parentId, limit)
}

func (c *FsClient) create(fsId uint32, parentId uint64, name string, inode Inode, flags uint32) (Dentry, int32) {
	if status := c.metaClient.CreateInode(inode); status != MetaStatusOk {
		log.Errorf("Failed: FsClient.create, CreateInode, inode=(%v), status=%v", inode.ShortDebugString(), StatusString(status))
		return Dentry{}, status
	}
	dentry := Dentry{FsId: fsId, ParentId: parentId, Name: name, InodeId: inode.InodeId, Flags: flags}
	if status := c.metaClient.CreateDentry(dentry); status != MetaStatusOk {
		log.Errorf("Failed: FsClient.create, CreateDentry, dentry=(%v), status=%v", dentry.ShortDebugString(), StatusString(status))
		if status2 := c.metaClient.UnlinkInode(fsId, inode.InodeId); status2 != MetaStatusOk {
			log.Errorf("Failed: FsClient.create, UnlinkInode rollback, inodeId=%v, status=%v", inode.InodeId, StatusString(status2))
		}
		return Dentry{}, status
	}
	c.dentryManager.InsertOrReplaceCache(dentry)
	return dentry, MetaStatusOk
}

func (c *FsClient) CreateFile(fsId uint32, parentId uint64, name string) (Dentry, int32) {
	inodeId, status := c.clusterClient.AllocInodeId()
	if status != MetaStatusOk {
		return Dentry{}, status
	}
	inode := NewFileInode(fsId, inodeId, c.conf.FileMode, c.conf.Uid, c.conf.Gid)
	return c.create(fsId, parentId, name, inode, DentryFlagTypeFile)
}

func (c *FsClient) Mkdir(fsId uint32, parentId uint64, name string) (Dentry, int32) {
	inodeId, status := c.clusterClient.AllocInodeId()
	if status != MetaStatusOk {
		return Dentry{}, status
	}
	inode := NewDirInode(fsId, inodeId, c.conf.DirMode, c.conf.Uid, c.conf.Gid)
	return c.create(fsId, parentId, name, inode, 0)
}

func (c *FsClient) Unlink(fsId uint32, parentId uint64, name string) int32 {
	dentry, status := c.dentryManager.GetDentry(fsId, parentId, name)
	if status != MetaStatusOk {
		return status
	}
	if !dentry.IsFile() {
		return MetaStatusInval
	}
	if status = c.metaClient.DeleteDentry(fsId, parentId, name); status != MetaStatusOk {
		log.Errorf("Failed: FsClient.Unlink, DeleteDentry, dentry=(%v), status=%v", dentry.ShortDebugString(), StatusString(status))
		return status
	}
	c.dentryManager.DeleteCache(fsId, parentId, name)
	if status = c.metaClient.UnlinkInode(fsId, dentry.InodeId); status != MetaStatusOk {
		// the dentry is gone; the inode is reclamation debt
		log.Errorf("Failed: FsClient.Unlink, UnlinkInode, inodeId=%v, status=%v", dentry.InodeId, StatusString(status))
	}
	c.inodeManager.DeleteCache(fsId, dentry.InodeId)
	return MetaStatusOk
}

func (c *FsClient) Rmdir(fsId uint32, parentId uint64, name string) int32 {
	dentry, status := c.dentryManager.GetDentry(fsId, parentId, name)
	if status != MetaStatusOk {
		return status
	}
	if dentry.IsFile() {
		return MetaStatusInval
	}
	children, status := c.dentryManager.ListDentry(fsId, dentry.InodeId, 1)
	if status != MetaStatusOk {
		return status
	}
	if len(children) > 0 {
		return MetaStatusNotEmpty
	}
	if status = c.metaClient.DeleteDentry(fsId, parentId, name); status != MetaStatusOk {
		log.Errorf("Failed: FsClient.Rmdir, DeleteDentry, dentry=(%v), status=%v", dentry.ShortDebugString(), StatusString(status))
		return status
	}
	c.dentryManager.DeleteCache(fsId, parentId, name)
	if status = c.metaClient.UnlinkInode(fsId, dentry.InodeId); status != MetaStatusOk {
		log.Errorf("Failed: FsClient.Rmdir, UnlinkInode, inodeId=%v, status=%v", dentry.InodeId, StatusString(status))
	}
	c.inodeManager.DeleteCache(fsId, dentry.InodeId)
	return MetaStatusOk
}
