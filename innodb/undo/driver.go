package undo

import (
	"golang.org/x/sync/errgroup"

	"github.com/filasieno/embedded-innodb/innodb/trx"
	"github.com/filasieno/embedded-innodb/logger"
)

// RowUndo runs one undo node to completion of its record. A modify node
// ends in StatePrevVers when the same row's previous version falls inside
// the rollback range; Rollback then undoes that version before it fetches
// the next record.
func RowUndo(env *Env, node *Node) error {
	var err error

	if node.State == StateInsert {
		err = RowUndoIns(env, node)
		node.State = StateFetchNext
	} else {
		err = RowUndoMod(env, node)
	}

	return err
}

// Rollback pops the transaction's undo records newest-first down to its
// roll limit and replays each through the undo core. The transaction's
// changes to every index are reverted in reverse order of their making.
func Rollback(env *Env, t *trx.Trx) error {
	t.AssertValid()

	processed := make(map[uint64]bool)

	max := t.MaxUndoNo()
	for no := max; no > t.RollLimit; no-- {
		undoNo := no - 1

		if processed[uint64(undoNo)] {
			continue
		}

		data := t.UndoRecByNo(undoNo)
		if data == nil {
			continue
		}

		node := NewNode(t, data, undoNo)
		processed[uint64(undoNo)] = true

		if err := RowUndo(env, node); err != nil {
			return err
		}

		// Chase the version chain of the same row while the state machine
		// asks for it.
		for node.State == StatePrevVers {
			prevData := t.UndoRecByNo(node.NewUndoNo)
			if prevData == nil {
				break
			}

			prevNode := NewNode(t, prevData, node.NewUndoNo)
			processed[uint64(node.NewUndoNo)] = true

			if err := RowUndo(env, prevNode); err != nil {
				return err
			}

			node = prevNode
		}
	}

	logger.Infof("rolled back trx %d down to undo no %d", t.ID, t.RollLimit)
	return nil
}

// RollbackAll rolls back a set of transactions in parallel, one worker per
// transaction; each worker drives at most one undo node at a time.
func RollbackAll(env *Env, trxs []*trx.Trx) error {
	var g errgroup.Group

	for _, t := range trxs {
		t := t
		g.Go(func() error {
			return Rollback(env, t)
		})
	}

	return g.Wait()
}
