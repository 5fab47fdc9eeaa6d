/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/serialx/hashring"
	"github.com/spaolacci/murmur3"
)

type PartitionHashKey struct {
	key uint32
}

func (m PartitionHashKey) Less(l hashring.HashKey) bool {
	return m.key < l.(PartitionHashKey).key
}

func PartitionHashFunc(in []byte) hashring.HashKey {
	return PartitionHashKey{key: uint32(murmur3.Sum64(in))}
}

func GetPartitionForInode(ring *hashring.HashRing, fsId uint32, inodeId uint64) (partitionId uint32, ok bool) {
	name, ok := ring.GetNode(strconv.FormatUint(uint64(fsId), 36) + "/" + strconv.FormatUint(inodeId, 36))
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		log.Errorf("Failed: GetPartitionForInode, ParseUint, name=%v, err=%v", name, err)
		return 0, false
	}
	return uint32(id), true
}

// ClusterManager is the authority for partition placement and for rename
// transaction commits. Placement is a consistent-hash ring over
// (fsId, inodeId) so a parent directory and all entries under it land on one
// partition. CommitTx is the atomicity boundary of a rename: the whole batch
// of watermark advances happens under one critical section or not at all.
type ClusterManager struct {
	lock        *sync.Mutex
	ring        *hashring.HashRing
	partitions  map[uint32]*Partition
	nextInodeId uint64
}

func NewClusterManager(partitions []*Partition) *ClusterManager {
	names := make([]string, 0, len(partitions))
	byId := make(map[uint32]*Partition)
	for _, p := range partitions {
		names = append(names, strconv.FormatUint(uint64(p.PartitionId()), 10))
		byId[p.PartitionId()] = p
	}
	return &ClusterManager{
		lock: new(sync.Mutex), ring: hashring.NewWithHash(names, PartitionHashFunc),
		partitions: byId, nextInodeId: 1,
	}
}

func (m *ClusterManager) Ring() *hashring.HashRing {
	return m.ring
}

func (m *ClusterManager) GetPartition(partitionId uint32) (*Partition, bool) {
	p, ok := m.partitions[partitionId]
	return p, ok
}

func (m *ClusterManager) ResolvePartition(fsId uint32, inodeId uint64) (*Partition, bool) {
	partitionId, ok := GetPartitionForInode(m.ring, fsId, inodeId)
	if !ok {
		return nil, false
	}
	return m.GetPartition(partitionId)
}

// AllocInodeId hands out cluster-unique inode ids. Id zero means "no inode"
// (an absent overwrite target) and id one is the root directory, so allocation
// starts at two.
func (m *ClusterManager) AllocInodeId() uint64 {
	return atomic.AddUint64(&m.nextInodeId, 1)
}

// CommitTx finalizes a rename: every (partition, txId) pair in the batch is
// validated against the partition's current watermark and only then are all
// watermarks advanced. A stale pair rejects the whole batch with no partition
// advanced, so observers never see a half-committed rename.
func (m *ClusterManager) CommitTx(txIds []PartitionTxId) int32 {
	if len(txIds) == 0 {
		return MetaStatusInval
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, pair := range txIds {
		p, ok := m.partitions[pair.PartitionId]
		if !ok {
			log.Errorf("Failed: ClusterManager.CommitTx, unknown partition, partitionId=%v", pair.PartitionId)
			return MetaStatusNotFound
		}
		if current := p.GetTxId(); pair.TxId != current+1 {
			log.Errorf("Failed: ClusterManager.CommitTx, stale txId, partitionId=%v, current=%v, txId=%v", pair.PartitionId, current, pair.TxId)
			return MetaStatusTxStale
		}
	}
	for _, pair := range txIds {
		if status := m.partitions[pair.PartitionId].commitTxId(pair.TxId); status != MetaStatusOk {
			// cannot happen while commits are serialized here
			log.Errorf("BUG: ClusterManager.CommitTx, commitTxId, partitionId=%v, txId=%v, status=%v", pair.PartitionId, pair.TxId, StatusString(status))
			return MetaStatusInternal
		}
	}
	return MetaStatusOk
}
