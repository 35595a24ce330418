package core

import (
	"testing"
	"time"

	"github.com/minseo/galleria/crypto"
)

func signedTransfer(t *testing.T, nonce uint64) *Transaction {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	tx, err := NewTransaction("galleria-test", TxTransfer, pub.Hex(), nonce, 0, TransferPayload{To: "x", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	tx.Sign(priv)
	return tx
}

func TestMempoolAddAndSize(t *testing.T) {
	m := NewMempool()
	tx := signedTransfer(t, 0)
	if err := m.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if m.Size() != 1 {
		t.Errorf("size: got %d want 1", m.Size())
	}
	if _, ok := m.Get(tx.ID); !ok {
		t.Error("Get should find the added tx")
	}
}

func TestMempoolRejectsDuplicate(t *testing.T) {
	m := NewMempool()
	tx := signedTransfer(t, 0)
	if err := m.Add(tx); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(tx); err == nil {
		t.Error("duplicate tx should be rejected")
	}
}

func TestMempoolRejectsExpired(t *testing.T) {
	m := NewMempool()
	priv, pub, _ := crypto.GenerateKeyPair()
	tx, _ := NewTransaction("galleria-test", TxTransfer, pub.Hex(), 0, 0, TransferPayload{To: "x", Amount: 1})
	tx.Timestamp = time.Now().Add(-2 * time.Hour).UnixNano()
	tx.Sign(priv)
	if err := m.Add(tx); err == nil {
		t.Error("expired tx should be rejected")
	}
}

func TestMempoolPendingOrderAndRemove(t *testing.T) {
	m := NewMempool()
	var ids []string
	for i := 0; i < 3; i++ {
		tx := signedTransfer(t, uint64(i))
		if err := m.Add(tx); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tx.ID)
	}

	pending := m.Pending(10)
	if len(pending) != 3 {
		t.Fatalf("pending: got %d want 3", len(pending))
	}
	for i, tx := range pending {
		if tx.ID != ids[i] {
			t.Errorf("pending[%d]: got %s want %s (insertion order)", i, tx.ID, ids[i])
		}
	}

	m.Remove(ids[:2])
	if m.Size() != 1 {
		t.Errorf("size after remove: got %d want 1", m.Size())
	}
	rest := m.Pending(10)
	if len(rest) != 1 || rest[0].ID != ids[2] {
		t.Error("remaining tx should be the last inserted")
	}
}
