/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"fmt"
)

const (
	DentryFlagTypeFile   = uint32(1)
	DentryFlagDeleteMark = uint32(2) // the name is absent at this version
	DentryFlagTxPrepare  = uint32(4) // staged by a rename, invisible until commit
)

// Dentry maps (fsId, parentId, name) to an inode. TxId versions the entry:
// a partition may hold several versions of one name and readers see the
// highest version at or below the partition's committed transaction id.
type Dentry struct {
	FsId     uint32 `json:"fsId"`
	ParentId uint64 `json:"parentId"`
	Name     string `json:"name"`
	InodeId  uint64 `json:"inodeId"`
	TxId     uint64 `json:"txId"`
	Flags    uint32 `json:"flags"`
}

type DentryKey struct {
	FsId     uint32
	ParentId uint64
	Name     string
}

func (d *Dentry) Key() DentryKey {
	return DentryKey{FsId: d.FsId, ParentId: d.ParentId, Name: d.Name}
}

func (d *Dentry) IsFile() bool {
	return d.Flags&DentryFlagTypeFile != 0
}

func (d *Dentry) IsDeleteMarked() bool {
	return d.Flags&DentryFlagDeleteMark != 0
}

func (d *Dentry) IsPrepared() bool {
	return d.Flags&DentryFlagTxPrepare != 0
}

func (d *Dentry) ShortDebugString() string {
	return fmt.Sprintf("fsId=%v, parentId=%v, name=%v, inodeId=%v, txId=%v, flags=%v", d.FsId, d.ParentId, d.Name, d.InodeId, d.TxId, d.Flags)
}

// PartitionTxId is one partition's entry in a commit batch.
type PartitionTxId struct {
	PartitionId uint32
	TxId        uint64
}
