/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/shardfs/shardfs/common"
)

var log = common.GetLogger("main")

func InitLog(args *common.ShardFsCmdlineArgs, conf *common.ShardFsConfig) *common.LogHandle {
	if args.LogFile != "" {
		log = common.GetLoggerFile("main", args.LogFile)
	}
	if conf.DebugMeta {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// Status codes returned by every metadata operation. Ok is zero so a zero
// value never reads as a failure.
const (
	MetaStatusOk            = int32(0)
	MetaStatusNotExist      = int32(1) // named dentry is not visible
	MetaStatusExist         = int32(2)
	MetaStatusNotEmpty      = int32(3)
	MetaStatusNotFound      = int32(4) // inode or partition is unknown
	MetaStatusTxStale       = int32(5) // txId does not follow the watermark
	MetaStatusPrepareFailed = int32(6)
	MetaStatusRpcErr        = int32(7)
	MetaStatusInternal      = int32(8)
	MetaStatusInval         = int32(9)
)

func StatusString(status int32) string {
	switch status {
	case MetaStatusOk:
		return "OK"
	case MetaStatusNotExist:
		return "NOT_EXIST"
	case MetaStatusExist:
		return "EXIST"
	case MetaStatusNotEmpty:
		return "NOT_EMPTY"
	case MetaStatusNotFound:
		return "NOT_FOUND"
	case MetaStatusTxStale:
		return "TX_STALE"
	case MetaStatusPrepareFailed:
		return "PREPARE_FAILED"
	case MetaStatusRpcErr:
		return "RPC_ERROR"
	case MetaStatusInternal:
		return "INTERNAL"
	case MetaStatusInval:
		return "INVAL"
	}
	return "UNKNOWN"
}

// StatusToErrno maps a status to the errno the POSIX surface reports.
func StatusToErrno(status int32) unix.Errno {
	switch status {
	case MetaStatusOk:
		return 0
	case MetaStatusNotExist, MetaStatusNotFound:
		return unix.ENOENT
	case MetaStatusExist:
		return unix.EEXIST
	case MetaStatusNotEmpty:
		return unix.ENOTEMPTY
	case MetaStatusTxStale:
		return unix.EAGAIN
	case MetaStatusRpcErr:
		return unix.EIO
	case MetaStatusInval:
		return unix.EINVAL
	}
	return unix.EIO
}

func ErrnoToStatus(errno unix.Errno) int32 {
	switch errno {
	case 0:
		return MetaStatusOk
	case unix.ENOENT:
		return MetaStatusNotExist
	case unix.EEXIST:
		return MetaStatusExist
	case unix.ENOTEMPTY:
		return MetaStatusNotEmpty
	case unix.EAGAIN:
		return MetaStatusTxStale
	case unix.EINVAL:
		return MetaStatusInval
	}
	return MetaStatusInternal
}
