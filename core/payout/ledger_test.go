package payout

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jamesdoliver/featune-sub001/model"
)

// fakePayoutRepo keeps earnings and payouts in memory. A single mutex held
// from LockCreatorTx until commit or rollback mimics the row lock that
// serializes concurrent payout requests. Each BeginTx hands out a distinct
// (unused) *sql.Tx pointer so release is tied to the owning transaction;
// a deferred rollback after commit must not release someone else's lock.
type fakePayoutRepo struct {
	mu       sync.Mutex
	ownerMu  sync.Mutex
	owner    *sql.Tx
	earnings map[int64]int64
	payouts  []*model.Payout
	nextID   int64
}

func newFakePayoutRepo() *fakePayoutRepo {
	return &fakePayoutRepo{earnings: make(map[int64]int64)}
}

func (f *fakePayoutRepo) BeginTx(ctx context.Context) (*sql.Tx, error) { return new(sql.Tx), nil }

func (f *fakePayoutRepo) release(tx *sql.Tx) {
	f.ownerMu.Lock()
	defer f.ownerMu.Unlock()
	if f.owner == tx && tx != nil {
		f.owner = nil
		f.mu.Unlock()
	}
}

func (f *fakePayoutRepo) RollbackTx(tx *sql.Tx) { f.release(tx) }

func (f *fakePayoutRepo) CommitTx(tx *sql.Tx) error {
	f.release(tx)
	return nil
}

func (f *fakePayoutRepo) LockCreatorTx(ctx context.Context, tx *sql.Tx, creatorID int64) error {
	f.mu.Lock()
	f.ownerMu.Lock()
	f.owner = tx
	f.ownerMu.Unlock()
	return nil
}

func (f *fakePayoutRepo) sumEarnings(creatorID int64) int64 {
	return f.earnings[creatorID]
}

func (f *fakePayoutRepo) sumPayouts(creatorID int64, statuses []string) int64 {
	var total int64
	for _, p := range f.payouts {
		if p.CreatorID != creatorID {
			continue
		}
		for _, s := range statuses {
			if p.Status == s {
				total += p.Amount
				break
			}
		}
	}
	return total
}

func (f *fakePayoutRepo) SumEarningsTx(ctx context.Context, tx *sql.Tx, creatorID int64) (int64, error) {
	return f.sumEarnings(creatorID), nil
}

func (f *fakePayoutRepo) SumPayoutsTx(ctx context.Context, tx *sql.Tx, creatorID int64, statuses ...string) (int64, error) {
	return f.sumPayouts(creatorID, statuses), nil
}

func (f *fakePayoutRepo) SumEarnings(ctx context.Context, creatorID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sumEarnings(creatorID), nil
}

func (f *fakePayoutRepo) SumPayouts(ctx context.Context, creatorID int64, statuses ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sumPayouts(creatorID, statuses), nil
}

func (f *fakePayoutRepo) CreatePayoutTx(ctx context.Context, tx *sql.Tx, payout *model.Payout) (int64, error) {
	f.nextID++
	stored := *payout
	stored.ID = f.nextID
	stored.CreatedAt = time.Now()
	f.payouts = append(f.payouts, &stored)
	return stored.ID, nil
}

func (f *fakePayoutRepo) GetPayoutByID(ctx context.Context, id int64) (*model.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payouts {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePayoutRepo) GetPayoutsByCreatorID(ctx context.Context, creatorID int64) ([]*model.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Payout, 0)
	for _, p := range f.payouts {
		if p.CreatorID == creatorID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakePayoutRepo) CompletePayout(ctx context.Context, id int64, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payouts {
		if p.ID == id && p.Status != model.PayoutStatusCompleted {
			p.Status = model.PayoutStatusCompleted
			p.PaidAt = sql.NullTime{Time: paidAt, Valid: true}
		}
	}
	return nil
}

const testMinimum = 5000 // $50.00

func TestComputeBalances(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.earnings[1] = 30000 // $300.00 earned
	repo.payouts = []*model.Payout{
		{ID: 1, CreatorID: 1, Amount: 10000, Status: model.PayoutStatusCompleted},
		{ID: 2, CreatorID: 1, Amount: 5000, Status: model.PayoutStatusPending},
	}
	ledger := NewLedger(repo, testMinimum)

	balances, err := ledger.ComputeBalances(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}

	if balances.TotalEarnings != 30000 {
		t.Errorf("Expected total earnings 30000, got %d", balances.TotalEarnings)
	}
	if balances.AvailableBalance != 20000 {
		t.Errorf("Expected available 20000, got %d", balances.AvailableBalance)
	}
	if balances.RequestableBalance != 15000 {
		t.Errorf("Expected requestable 15000, got %d", balances.RequestableBalance)
	}
}

func TestRequestPayout_TakesFullRequestableBalance(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.earnings[1] = 30000 // $300.00
	repo.payouts = []*model.Payout{
		{ID: 1, CreatorID: 1, Amount: 10000, Status: model.PayoutStatusCompleted},
		{ID: 2, CreatorID: 1, Amount: 5000, Status: model.PayoutStatusPending},
	}
	repo.nextID = 2
	ledger := NewLedger(repo, testMinimum)

	// earned $300, paid out $100, $50 in flight -> $150 requestable
	payout, err := ledger.RequestPayout(context.Background(), 1)
	if err != nil {
		t.Fatalf("RequestPayout failed: %v", err)
	}
	if payout.Amount != 15000 {
		t.Errorf("Expected payout of 15000, got %d", payout.Amount)
	}
	if payout.Status != model.PayoutStatusPending {
		t.Errorf("Expected pending payout, got %s", payout.Status)
	}
}

func TestRequestPayout_MinimumThreshold(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.earnings[1] = 4999 // $49.99
	ledger := NewLedger(repo, testMinimum)

	if _, err := ledger.RequestPayout(context.Background(), 1); !errors.Is(err, ErrBelowMinimum) {
		t.Errorf("Expected ErrBelowMinimum at 4999, got %v", err)
	}

	repo.earnings[1] = 5000 // exactly $50.00
	payout, err := ledger.RequestPayout(context.Background(), 1)
	if err != nil {
		t.Errorf("Expected 5000 to succeed, got %v", err)
	} else if payout.Amount != 5000 {
		t.Errorf("Expected payout of 5000, got %d", payout.Amount)
	}
}

func TestRequestPayout_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.earnings[1] = 15000 // $150.00
	ledger := NewLedger(repo, testMinimum)

	// two concurrent requests: the first drains the balance, the second
	// finds nothing left
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.RequestPayout(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrBelowMinimum) || errors.Is(err, ErrInsufficientBalance):
			rejected++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Errorf("Expected 1 success and 1 rejection, got %d/%d", succeeded, rejected)
	}

	balances, err := ledger.ComputeBalances(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}
	if balances.RequestableBalance < 0 {
		t.Errorf("Requestable balance went negative: %d", balances.RequestableBalance)
	}
	if balances.PendingPayoutsTotal != 15000 {
		t.Errorf("Expected 15000 in flight, got %d", balances.PendingPayoutsTotal)
	}
}

func TestRequestPayout_AmountFrozen(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.earnings[1] = 30000
	ledger := NewLedger(repo, testMinimum)

	payout, err := ledger.RequestPayout(context.Background(), 1)
	if err != nil {
		t.Fatalf("RequestPayout failed: %v", err)
	}

	// earnings keep accruing; the payout amount must not move
	repo.earnings[1] = 50000

	stored, err := ledger.CompletePayout(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("CompletePayout failed: %v", err)
	}
	if stored.Amount != 30000 {
		t.Errorf("Expected frozen amount 30000, got %d", stored.Amount)
	}
}

func TestCompletePayout_Idempotent(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.earnings[1] = 30000
	ledger := NewLedger(repo, testMinimum)

	payout, err := ledger.RequestPayout(context.Background(), 1)
	if err != nil {
		t.Fatalf("RequestPayout failed: %v", err)
	}

	first, err := ledger.CompletePayout(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("First completion failed: %v", err)
	}
	if first.Status != model.PayoutStatusCompleted || !first.PaidAt.Valid {
		t.Fatalf("Expected completed payout with paid_at, got %+v", first)
	}

	second, err := ledger.CompletePayout(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("Second completion failed: %v", err)
	}
	if !second.PaidAt.Time.Equal(first.PaidAt.Time) {
		t.Errorf("paid_at changed on repeat completion: %v vs %v", second.PaidAt.Time, first.PaidAt.Time)
	}

	balances, err := ledger.ComputeBalances(context.Background(), 1)
	if err != nil {
		t.Fatalf("ComputeBalances failed: %v", err)
	}
	if balances.AvailableBalance != 0 {
		t.Errorf("Expected available 0 after completion, got %d", balances.AvailableBalance)
	}
}
