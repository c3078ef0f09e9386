package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/jamesdoliver/featune-sub001/model"
	"github.com/jamesdoliver/featune-sub001/repository"
)

// The fakes below ignore the *sql.Tx handle and serialize with a mutex,
// which is enough to exercise the processor's ordering and idempotency
// logic under goroutine-level concurrency.

type fakeStore struct {
	mu        sync.Mutex
	tracks    map[int64]*model.Track
	users     map[int64]*model.User
	orders    map[string]*model.Order
	lineItems []*model.OrderLineItem
	nextOrder int64
	nextLine  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tracks: make(map[int64]*model.Track),
		users:  make(map[int64]*model.User),
		orders: make(map[string]*model.Order),
	}
}

type fakeOrderRepo struct{ s *fakeStore }

func (f *fakeOrderRepo) BeginTx(ctx context.Context) (*sql.Tx, error) { return nil, nil }
func (f *fakeOrderRepo) RollbackTx(tx *sql.Tx)                        {}
func (f *fakeOrderRepo) CommitTx(tx *sql.Tx) error                    { return nil }

func (f *fakeOrderRepo) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *model.Order) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, exists := f.s.orders[order.ExternalPaymentRef]; exists {
		return 0, repository.ErrDuplicateOrder
	}
	f.s.nextOrder++
	stored := *order
	stored.ID = f.s.nextOrder
	f.s.orders[order.ExternalPaymentRef] = &stored
	return stored.ID, nil
}

func (f *fakeOrderRepo) CreateLineItemTx(ctx context.Context, tx *sql.Tx, item *model.OrderLineItem) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.nextLine++
	stored := *item
	stored.ID = f.s.nextLine
	f.s.lineItems = append(f.s.lineItems, &stored)
	return stored.ID, nil
}

func (f *fakeOrderRepo) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, orderID int64, status string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, order := range f.s.orders {
		if order.ID == orderID {
			order.Status = status
			return nil
		}
	}
	return fmt.Errorf("order %d not found", orderID)
}

func (f *fakeOrderRepo) GetOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if order, ok := f.s.orders[ref]; ok {
		copied := *order
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeOrderRepo) GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]*model.Order, error) {
	return nil, nil
}

func (f *fakeOrderRepo) GetLineItemsByOrderID(ctx context.Context, orderID int64) ([]*model.OrderLineItem, error) {
	return nil, nil
}

func (f *fakeOrderRepo) UpdateLineItemDocumentRef(ctx context.Context, lineItemID int64, documentRef string) error {
	return nil
}

type fakeTrackRepo struct{ s *fakeStore }

func (f *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	return 0, nil
}

func (f *fakeTrackRepo) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if track, ok := f.s.tracks[id]; ok {
		copied := *track
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeTrackRepo) GetTracksByCreatorID(ctx context.Context, creatorID int64) ([]*model.Track, error) {
	return nil, nil
}

func (f *fakeTrackRepo) UpdateTrackStatus(ctx context.Context, trackID int64, status string) error {
	return nil
}

func (f *fakeTrackRepo) ReserveLicenseTx(ctx context.Context, tx *sql.Tx, track *model.Track, licenseType string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	live, ok := f.s.tracks[track.ID]
	if !ok {
		return false, nil
	}
	switch {
	case licenseType == model.LicenseTypeExclusive:
		if live.LicenseMode != model.LicenseModeExclusive || live.LicensesSold != 0 {
			return false, nil
		}
		live.LicensesSold = 1
		return true, nil
	case live.LicenseMode == model.LicenseModeLimited:
		if live.LicensesSold >= live.LicenseLimit {
			return false, nil
		}
		live.LicensesSold++
		return true, nil
	case live.LicenseMode == model.LicenseModeUnlimited:
		live.LicensesSold++
		return true, nil
	default:
		return false, nil
	}
}

type fakeUserRepo struct{ s *fakeStore }

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) (int64, error) { return 0, nil }
func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.users[id], nil
}
func (f *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, kind string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, kind)
	return nil
}

func (f *fakeQueue) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.tasks {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestProcessor(s *fakeStore, q *fakeQueue) *Processor {
	return NewProcessor(&fakeOrderRepo{s: s}, &fakeTrackRepo{s: s}, &fakeUserRepo{s: s}, q)
}

func exclusiveTrack(id int64) *model.Track {
	return &model.Track{
		ID: id, CreatorID: 10, Title: "Only One", LicenseMode: model.LicenseModeExclusive,
		PriceExclusive: sql.NullInt64{Int64: 20000, Valid: true}, Status: model.TrackStatusApproved,
	}
}

func TestSettle_ExclusiveRace_SingleWinner(t *testing.T) {
	s := newFakeStore()
	s.tracks[1] = exclusiveTrack(1)
	s.users[10] = &model.User{ID: 10, Role: model.RoleCreator, RevenueSplit: 0.70}
	q := &fakeQueue{}
	p := newTestProcessor(s, q)

	const n = 10
	results := make([]*Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Settle(context.Background(), &Confirmation{
				PaymentRef: fmt.Sprintf("cs_race_%d", i),
				BuyerID:    int64(100 + i),
				Items: []model.OrderItemSnapshot{
					{TrackID: 1, LicenseType: model.LicenseTypeExclusive, Price: 20000, CreatorID: 10},
				},
				Subtotal: 20000,
				Total:    20000,
			})
			if err != nil {
				t.Errorf("Settle %d failed: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		if res != nil && res.Status == model.OrderStatusCompleted {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", winners)
	}
	if sold := s.tracks[1].LicensesSold; sold != 1 {
		t.Errorf("Expected licenses_sold 1, got %d", sold)
	}
	if len(s.lineItems) != 1 {
		t.Errorf("Expected 1 line item, got %d", len(s.lineItems))
	}
	if got := q.count(TaskCompensationReview); got != n-1 {
		t.Errorf("Expected %d compensation reviews, got %d", n-1, got)
	}
}

func TestSettle_LimitedNeverExceedsCap(t *testing.T) {
	s := newFakeStore()
	s.tracks[2] = &model.Track{
		ID: 2, CreatorID: 10, Title: "Limited Run", LicenseMode: model.LicenseModeLimited,
		LicenseLimit: 5, LicensesSold: 4,
		PriceNonExclusive: sql.NullInt64{Int64: 3000, Valid: true}, Status: model.TrackStatusApproved,
	}
	s.users[10] = &model.User{ID: 10, Role: model.RoleCreator, RevenueSplit: 0.70}
	q := &fakeQueue{}
	p := newTestProcessor(s, q)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Settle(context.Background(), &Confirmation{
				PaymentRef: fmt.Sprintf("cs_cap_%d", i),
				BuyerID:    int64(200 + i),
				Items: []model.OrderItemSnapshot{
					{TrackID: 2, LicenseType: model.LicenseTypeNonExclusive, Price: 3000, CreatorID: 10},
				},
				Subtotal: 3000,
				Total:    3000,
			})
			if err != nil {
				t.Errorf("Settle %d failed: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	completed, failed := 0, 0
	for _, res := range results {
		switch res.Status {
		case model.OrderStatusCompleted:
			completed++
		case model.OrderStatusFailed:
			failed++
		}
	}
	if completed != 1 || failed != 1 {
		t.Errorf("Expected 1 completed and 1 failed, got %d/%d", completed, failed)
	}
	if sold := s.tracks[2].LicensesSold; sold != 5 {
		t.Errorf("Expected licenses_sold 5, got %d", sold)
	}
}

func TestSettle_ReplayIsIdempotent(t *testing.T) {
	s := newFakeStore()
	s.tracks[1] = exclusiveTrack(1)
	s.users[10] = &model.User{ID: 10, Role: model.RoleCreator, RevenueSplit: 0.70}
	q := &fakeQueue{}
	p := newTestProcessor(s, q)

	conf := &Confirmation{
		PaymentRef: "cs_replay",
		BuyerID:    100,
		Items: []model.OrderItemSnapshot{
			{TrackID: 1, LicenseType: model.LicenseTypeExclusive, Price: 20000, CreatorID: 10},
		},
		Subtotal: 20000,
		Total:    20000,
	}

	first, err := p.Settle(context.Background(), conf)
	if err != nil {
		t.Fatalf("First settle failed: %v", err)
	}
	if first.AlreadySettled {
		t.Fatal("First settle reported AlreadySettled")
	}

	second, err := p.Settle(context.Background(), conf)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if !second.AlreadySettled {
		t.Error("Replay did not report AlreadySettled")
	}

	if len(s.orders) != 1 {
		t.Errorf("Expected 1 order, got %d", len(s.orders))
	}
	if sold := s.tracks[1].LicensesSold; sold != 1 {
		t.Errorf("Expected licenses_sold 1 after replay, got %d", sold)
	}
	if got := q.count(TaskLicenseIssue); got != 1 {
		t.Errorf("Expected 1 license_issue task, got %d", got)
	}
}

func TestSettle_ConcurrentReplay_OneOrder(t *testing.T) {
	s := newFakeStore()
	s.tracks[1] = exclusiveTrack(1)
	s.users[10] = &model.User{ID: 10, Role: model.RoleCreator, RevenueSplit: 0.70}
	p := newTestProcessor(s, &fakeQueue{})

	conf := &Confirmation{
		PaymentRef: "cs_dup",
		BuyerID:    100,
		Items: []model.OrderItemSnapshot{
			{TrackID: 1, LicenseType: model.LicenseTypeExclusive, Price: 20000, CreatorID: 10},
		},
		Subtotal: 20000,
		Total:    20000,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Settle(context.Background(), conf); err != nil {
				t.Errorf("Concurrent settle failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(s.orders) != 1 {
		t.Errorf("Expected 1 order after concurrent redelivery, got %d", len(s.orders))
	}
	if sold := s.tracks[1].LicensesSold; sold != 1 {
		t.Errorf("Expected licenses_sold 1, got %d", sold)
	}
}

func TestSettle_PartialLoss_OrderCompletes(t *testing.T) {
	s := newFakeStore()
	s.tracks[1] = exclusiveTrack(1)
	s.tracks[1].LicensesSold = 1 // lost during the payment window
	s.tracks[3] = &model.Track{
		ID: 3, CreatorID: 11, Title: "Evergreen", LicenseMode: model.LicenseModeUnlimited,
		PriceNonExclusive: sql.NullInt64{Int64: 5000, Valid: true}, Status: model.TrackStatusApproved,
	}
	s.users[10] = &model.User{ID: 10, Role: model.RoleCreator, RevenueSplit: 0.70}
	s.users[11] = &model.User{ID: 11, Role: model.RoleCreator, RevenueSplit: 0.80}
	q := &fakeQueue{}
	p := newTestProcessor(s, q)

	res, err := p.Settle(context.Background(), &Confirmation{
		PaymentRef: "cs_partial",
		BuyerID:    100,
		Items: []model.OrderItemSnapshot{
			{TrackID: 1, LicenseType: model.LicenseTypeExclusive, Price: 18000, CreatorID: 10},
			{TrackID: 3, LicenseType: model.LicenseTypeNonExclusive, Price: 4500, CreatorID: 11},
		},
		DiscountPercent: 10,
		Subtotal:        25000,
		Total:           22500,
	})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	if res.Status != model.OrderStatusCompleted {
		t.Errorf("Expected completed order, got %s", res.Status)
	}
	if len(res.Succeeded) != 1 || len(res.Lost) != 1 {
		t.Fatalf("Expected 1 succeeded and 1 lost, got %d/%d", len(res.Succeeded), len(res.Lost))
	}
	if res.Lost[0].TrackID != 1 {
		t.Errorf("Expected track 1 lost, got %d", res.Lost[0].TrackID)
	}
	if got := q.count(TaskCompensationReview); got != 1 {
		t.Errorf("Expected 1 compensation review, got %d", got)
	}
	if got := q.count(TaskNotifyBuyer); got != 1 {
		t.Errorf("Expected 1 buyer notification, got %d", got)
	}

	// creator earnings use the creator's split on the discounted price
	if len(s.lineItems) != 1 {
		t.Fatalf("Expected 1 line item, got %d", len(s.lineItems))
	}
	if earnings := s.lineItems[0].CreatorEarnings; earnings != 3600 {
		t.Errorf("Expected creator earnings 3600, got %d", earnings)
	}
}

func TestSettle_AllLinesLost_OrderFails(t *testing.T) {
	s := newFakeStore()
	s.tracks[1] = exclusiveTrack(1)
	s.tracks[1].LicensesSold = 1
	q := &fakeQueue{}
	p := newTestProcessor(s, q)

	res, err := p.Settle(context.Background(), &Confirmation{
		PaymentRef: "cs_lost",
		BuyerID:    100,
		Items: []model.OrderItemSnapshot{
			{TrackID: 1, LicenseType: model.LicenseTypeExclusive, Price: 20000, CreatorID: 10},
		},
		Subtotal: 20000,
		Total:    20000,
	})
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if res.Status != model.OrderStatusFailed {
		t.Errorf("Expected failed order, got %s", res.Status)
	}
	if got := q.count(TaskNotifyBuyer); got != 0 {
		t.Errorf("Expected no buyer purchase notification, got %d", got)
	}
	if got := q.count(TaskCompensationReview); got != 1 {
		t.Errorf("Expected 1 compensation review, got %d", got)
	}
}
