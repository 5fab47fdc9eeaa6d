/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"fmt"
	"time"
)

const (
	InodeTypeFile = uint32(0)
	InodeTypeDir  = uint32(1)
)

// Inode is the link-counted object a dentry points at. The metadata layer
// only tracks attributes; file content lives behind the data path, which this
// layer never touches.
type Inode struct {
	FsId    uint32 `json:"fsId"`
	InodeId uint64 `json:"inodeId"`
	Type    uint32 `json:"type"`
	Mode    uint32 `json:"mode"`
	Uid     uint32 `json:"uid"`
	Gid     uint32 `json:"gid"`
	Nlink   uint32 `json:"nlink"`
	Size    int64  `json:"size"`
	Ctime   int64  `json:"ctime"`
	Mtime   int64  `json:"mtime"`
}

type InodeKey struct {
	FsId    uint32
	InodeId uint64
}

func (i *Inode) Key() InodeKey {
	return InodeKey{FsId: i.FsId, InodeId: i.InodeId}
}

func (i *Inode) ShortDebugString() string {
	return fmt.Sprintf("fsId=%v, inodeId=%v, type=%v, nlink=%v", i.FsId, i.InodeId, i.Type, i.Nlink)
}

func NewFileInode(fsId uint32, inodeId uint64, mode uint32, uid uint32, gid uint32) Inode {
	now := time.Now().UnixNano()
	return Inode{FsId: fsId, InodeId: inodeId, Type: InodeTypeFile, Mode: mode, Uid: uid, Gid: gid, Nlink: 1, Ctime: now, Mtime: now}
}

func NewDirInode(fsId uint32, inodeId uint64, mode uint32, uid uint32, gid uint32) Inode {
	now := time.Now().UnixNano()
	return Inode{FsId: fsId, InodeId: inodeId, Type: InodeTypeDir, Mode: mode, Uid: uid, Gid: gid, Nlink: 2, Ctime: now, Mtime: now}
}
