/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/shardfs/shardfs/common"
)

// NodeServer hosts the metadata partitions and the cluster manager of one
// process, plus the loopback client surface. The replication layer that makes
// each partition highly available plugs in underneath the stores and is not
// part of this layer.
type NodeServer struct {
	args    *common.ShardFsCmdlineArgs
	conf    common.ShardFsConfig
	cluster *ClusterManager
	client  *FsClient
	badger  *BadgerStore
	grpcSrv *grpc.Server
	done    chan struct{}
}

func NewNodeServer(args *common.ShardFsCmdlineArgs, conf common.ShardFsConfig) (*NodeServer, error) {
	s := &NodeServer{args: args, conf: conf, done: make(chan struct{})}

	partitions := make([]*Partition, 0, conf.Partitions)
	switch conf.StoreBackend {
	case "memory":
		for i := 0; i < conf.Partitions; i++ {
			partitions = append(partitions, NewPartition(uint32(i+1), NewMemoryDentryStore(), NewMemoryInodeStore()))
		}
	case "badger":
		store, err := NewBadgerStore(filepath.Join(args.RootDir, "meta"))
		if err != nil {
			return nil, err
		}
		s.badger = store
		for i := 0; i < conf.Partitions; i++ {
			partitions = append(partitions, NewPartition(uint32(i+1), store.DentryStore(), store.InodeStore()))
		}
	default:
		log.Errorf("Failed: NewNodeServer, unknown storeBackend=%v", conf.StoreBackend)
		return nil, StatusToErrno(MetaStatusInval)
	}

	s.cluster = NewClusterManager(partitions)
	metaClient := NewLoopbackMetaClient(s.cluster)
	clusterClient := NewLoopbackClusterClient(s.cluster)
	s.client = NewFsClient(&s.conf, metaClient, clusterClient)

	if !args.ClientMode {
		if err := s.serveApi(); err != nil {
			if s.badger != nil {
				_ = s.badger.Close()
			}
			return nil, err
		}
	}
	return s, nil
}

func (s *NodeServer) FsClient() *FsClient {
	return s.client
}

func (s *NodeServer) ClusterManager() *ClusterManager {
	return s.cluster
}

// serveApi exposes a liveness endpoint so orchestrators can probe the
// daemon. The metadata RPC surface proper is the transport layer's to mount.
func (s *NodeServer) serveApi() error {
	addr := fmt.Sprintf("%s:%d", s.args.ListenIp, s.args.ApiPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorf("Failed: NodeServer.serveApi, Listen, addr=%v, err=%v", addr, err)
		return err
	}
	s.grpcSrv = grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpcSrv, healthSrv)
	go func() {
		if err := s.grpcSrv.Serve(lis); err != nil {
			log.Errorf("Failed: NodeServer.serveApi, Serve, addr=%v, err=%v", addr, err)
		}
	}()
	log.Infof("NodeServer.serveApi, listening, addr=%v", addr)
	return nil
}

func (s *NodeServer) Shutdown() {
	if s.grpcSrv != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(s.conf.ShutdownTimeoutDuration):
			log.Errorf("Failed: NodeServer.Shutdown, GracefulStop timed out after %v, forcing stop", s.conf.ShutdownTimeout)
			s.grpcSrv.Stop()
		}
	}
	if s.badger != nil {
		if err := s.badger.Close(); err != nil {
			log.Errorf("Failed: NodeServer.Shutdown, Close, err=%v", err)
		}
	}
	close(s.done)
}

func (s *NodeServer) WaitShutdown() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
	select {
	case sig := <-sigs:
		log.Infof("WaitShutdown, received signal=%v", sig)
		s.Shutdown()
	case <-s.done:
	}
}
