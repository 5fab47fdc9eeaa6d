/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"flag"

	_ "go.uber.org/automaxprocs"

	"github.com/shardfs/shardfs/common"
	"github.com/shardfs/shardfs/internal"
)

var args common.ShardFsCmdlineArgs

func init() {
	args.SetCmdArgs()
}

func main() {
	flag.Parse()
	conf := args.GetShardFsConfig()
	log := internal.InitLog(&args, &conf)

	node, err := internal.NewNodeServer(&args, conf)
	if err != nil {
		log.Errorf("Failed: NewNodeServer, err=%v", err)
		return
	}
	if status := node.FsClient().Mkfs(1); status != internal.MetaStatusOk {
		log.Errorf("Failed: Mkfs, status=%v", internal.StatusString(status))
		return
	}
	log.Infof("ShardFS instance is now running.")
	node.WaitShutdown()
}
