/*
 * Copyright 2024- ShardFS Authors
 * SPDX-License-Identifier: Apache-2.0
 */
package internal

import (
	"testing"
)

func newTestPartition() *Partition {
	return NewPartition(1, NewMemoryDentryStore(), NewMemoryInodeStore())
}

func TestPartitionPrepareStaleTxId(t *testing.T) {
	p := newTestPartition()
	dentry := Dentry{FsId: 1, ParentId: 2, Name: "foo", InodeId: 3, TxId: 5, Flags: DentryFlagTxPrepare}
	if status := p.PrepareRenameTx([]Dentry{dentry}); status != MetaStatusTxStale {
		t.Errorf("Failed: TestPartitionPrepareStaleTxId, expected=TX_STALE, actual=%v", StatusString(status))
	}
	dentry.TxId = 1
	if status := p.PrepareRenameTx([]Dentry{dentry}); status != MetaStatusOk {
		t.Errorf("Failed: TestPartitionPrepareStaleTxId, valid prepare, status=%v", StatusString(status))
	}
}

func TestPartitionPrepareRequiresFlag(t *testing.T) {
	p := newTestPartition()
	dentry := Dentry{FsId: 1, ParentId: 2, Name: "foo", InodeId: 3, TxId: 1}
	if status := p.PrepareRenameTx([]Dentry{dentry}); status != MetaStatusInval {
		t.Errorf("Failed: TestPartitionPrepareRequiresFlag, expected=INVAL, actual=%v", StatusString(status))
	}
	if status := p.PrepareRenameTx(nil); status != MetaStatusInval {
		t.Errorf("Failed: TestPartitionPrepareRequiresFlag, empty batch, expected=INVAL, actual=%v", StatusString(status))
	}
}

func TestPartitionProvisionalInvisible(t *testing.T) {
	p := newTestPartition()
	if status := p.CreateDentry(Dentry{FsId: 1, ParentId: 2, Name: "foo", InodeId: 3, Flags: DentryFlagTypeFile}); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionProvisionalInvisible, CreateDentry, status=%v", StatusString(status))
	}
	staged := []Dentry{
		{FsId: 1, ParentId: 2, Name: "foo", InodeId: 3, TxId: 1, Flags: DentryFlagTypeFile | DentryFlagDeleteMark | DentryFlagTxPrepare},
		{FsId: 1, ParentId: 2, Name: "bar", InodeId: 3, TxId: 1, Flags: DentryFlagTypeFile | DentryFlagTxPrepare},
	}
	if status := p.PrepareRenameTx(staged); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionProvisionalInvisible, PrepareRenameTx, status=%v", StatusString(status))
	}

	// before the watermark advances, readers see the pre-rename state
	if _, status := p.GetDentry(1, 2, "foo"); status != MetaStatusOk {
		t.Errorf("BUG: TestPartitionProvisionalInvisible, foo invisible before commit, status=%v", StatusString(status))
	}
	if _, status := p.GetDentry(1, 2, "bar"); status != MetaStatusNotExist {
		t.Errorf("BUG: TestPartitionProvisionalInvisible, bar visible before commit")
	}
	children, _ := p.ListDentry(1, 2, 0)
	if len(children) != 1 || children[0].Name != "foo" {
		t.Errorf("BUG: TestPartitionProvisionalInvisible, ListDentry before commit, children=%v", children)
	}

	if status := p.commitTxId(1); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionProvisionalInvisible, commitTxId, status=%v", StatusString(status))
	}

	// after the watermark advances, the staged entries are the truth
	if _, status := p.GetDentry(1, 2, "foo"); status != MetaStatusNotExist {
		t.Errorf("BUG: TestPartitionProvisionalInvisible, foo visible after commit")
	}
	dentry, status := p.GetDentry(1, 2, "bar")
	if status != MetaStatusOk {
		t.Fatalf("BUG: TestPartitionProvisionalInvisible, bar invisible after commit, status=%v", StatusString(status))
	}
	if dentry.IsPrepared() {
		t.Errorf("BUG: TestPartitionProvisionalInvisible, visible entry keeps prepare flag, flags=%#x", dentry.Flags)
	}
	children, _ = p.ListDentry(1, 2, 0)
	if len(children) != 1 || children[0].Name != "bar" {
		t.Errorf("BUG: TestPartitionProvisionalInvisible, ListDentry after commit, children=%v", children)
	}
}

func TestPartitionPrepareRollsBackSuperseded(t *testing.T) {
	p := newTestPartition()
	for _, name := range []string{"foo", "x"} {
		if status := p.CreateDentry(Dentry{FsId: 1, ParentId: 2, Name: name, InodeId: 3, Flags: DentryFlagTypeFile}); status != MetaStatusOk {
			t.Fatalf("Failed: TestPartitionPrepareRollsBackSuperseded, CreateDentry, name=%v, status=%v", name, StatusString(status))
		}
	}
	// an aborted rename left a staged tombstone of foo that was never committed
	aborted := []Dentry{
		{FsId: 1, ParentId: 2, Name: "foo", InodeId: 3, TxId: 1, Flags: DentryFlagTypeFile | DentryFlagDeleteMark | DentryFlagTxPrepare},
	}
	if status := p.PrepareRenameTx(aborted); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionPrepareRollsBackSuperseded, first prepare, status=%v", StatusString(status))
	}
	// an unrelated rename takes over the same transaction slot and commits
	staged := []Dentry{
		{FsId: 1, ParentId: 2, Name: "x", InodeId: 3, TxId: 1, Flags: DentryFlagTypeFile | DentryFlagDeleteMark | DentryFlagTxPrepare},
		{FsId: 1, ParentId: 2, Name: "y", InodeId: 3, TxId: 1, Flags: DentryFlagTypeFile | DentryFlagTxPrepare},
	}
	if status := p.PrepareRenameTx(staged); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionPrepareRollsBackSuperseded, second prepare, status=%v", StatusString(status))
	}
	if status := p.commitTxId(1); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionPrepareRollsBackSuperseded, commitTxId, status=%v", StatusString(status))
	}

	// the committed rename moved x to y; foo must be untouched
	if _, status := p.GetDentry(1, 2, "foo"); status != MetaStatusOk {
		t.Errorf("BUG: TestPartitionPrepareRollsBackSuperseded, foo vanished after an unrelated commit, status=%v", StatusString(status))
	}
	if _, status := p.GetDentry(1, 2, "x"); status != MetaStatusNotExist {
		t.Errorf("BUG: TestPartitionPrepareRollsBackSuperseded, x visible after commit")
	}
	if _, status := p.GetDentry(1, 2, "y"); status != MetaStatusOk {
		t.Errorf("BUG: TestPartitionPrepareRollsBackSuperseded, y invisible after commit, status=%v", StatusString(status))
	}
}

func TestPartitionCommitStale(t *testing.T) {
	p := newTestPartition()
	if status := p.commitTxId(2); status != MetaStatusTxStale {
		t.Errorf("Failed: TestPartitionCommitStale, skip ahead, expected=TX_STALE, actual=%v", StatusString(status))
	}
	if status := p.commitTxId(1); status != MetaStatusOk {
		t.Errorf("Failed: TestPartitionCommitStale, first commit, status=%v", StatusString(status))
	}
	if status := p.commitTxId(1); status != MetaStatusTxStale {
		t.Errorf("Failed: TestPartitionCommitStale, replay, expected=TX_STALE, actual=%v", StatusString(status))
	}
}

func TestPartitionListDentryLimit(t *testing.T) {
	p := newTestPartition()
	names := []string{"a", "b", "c", "d"}
	for i, name := range names {
		status := p.CreateDentry(Dentry{FsId: 1, ParentId: 2, Name: name, InodeId: uint64(10 + i), Flags: DentryFlagTypeFile})
		if status != MetaStatusOk {
			t.Fatalf("Failed: TestPartitionListDentryLimit, CreateDentry, name=%v, status=%v", name, StatusString(status))
		}
	}
	children, status := p.ListDentry(1, 2, 1)
	if status != MetaStatusOk || len(children) != 1 {
		t.Errorf("BUG: TestPartitionListDentryLimit, limit=1, children=%v, status=%v", children, StatusString(status))
	}
	children, status = p.ListDentry(1, 2, 0)
	if status != MetaStatusOk || len(children) != len(names) {
		t.Errorf("BUG: TestPartitionListDentryLimit, no limit, expected=%v, actual=%v", len(names), len(children))
	}
	for i, dentry := range children {
		if dentry.Name != names[i] {
			t.Errorf("BUG: TestPartitionListDentryLimit, order, expected=%v, actual=%v", names[i], dentry.Name)
		}
	}
}

func TestPartitionCreateDentryExist(t *testing.T) {
	p := newTestPartition()
	dentry := Dentry{FsId: 1, ParentId: 2, Name: "foo", InodeId: 3, Flags: DentryFlagTypeFile}
	if status := p.CreateDentry(dentry); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionCreateDentryExist, CreateDentry, status=%v", StatusString(status))
	}
	if status := p.CreateDentry(dentry); status != MetaStatusExist {
		t.Errorf("Failed: TestPartitionCreateDentryExist, duplicate, expected=EXIST, actual=%v", StatusString(status))
	}
	if status := p.DeleteDentry(1, 2, "foo"); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionCreateDentryExist, DeleteDentry, status=%v", StatusString(status))
	}
	if status := p.CreateDentry(dentry); status != MetaStatusOk {
		t.Errorf("Failed: TestPartitionCreateDentryExist, recreate after delete, status=%v", StatusString(status))
	}
}

func TestPartitionUnlinkInode(t *testing.T) {
	p := newTestPartition()
	inode := NewFileInode(1, 5, 0644, 0, 0)
	inode.Nlink = 2
	if status := p.CreateInode(inode); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionUnlinkInode, CreateInode, status=%v", StatusString(status))
	}
	if status := p.UnlinkInode(1, 5); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionUnlinkInode, first unlink, status=%v", StatusString(status))
	}
	got, status := p.GetInode(1, 5)
	if status != MetaStatusOk || got.Nlink != 1 {
		t.Errorf("BUG: TestPartitionUnlinkInode, nlink, expected=1, actual=%v, status=%v", got.Nlink, StatusString(status))
	}
	if status = p.UnlinkInode(1, 5); status != MetaStatusOk {
		t.Fatalf("Failed: TestPartitionUnlinkInode, second unlink, status=%v", StatusString(status))
	}
	if _, status = p.GetInode(1, 5); status != MetaStatusNotFound {
		t.Errorf("BUG: TestPartitionUnlinkInode, inode survives nlink=0, status=%v", StatusString(status))
	}
	if status = p.UnlinkInode(1, 5); status != MetaStatusNotFound {
		t.Errorf("Failed: TestPartitionUnlinkInode, unlink missing, expected=NOT_FOUND, actual=%v", StatusString(status))
	}
}
