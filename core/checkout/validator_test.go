package checkout

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jamesdoliver/featune-sub001/model"
)

// fakeTrackRepo serves tracks from a map; only the read path matters here.
type fakeTrackRepo struct {
	tracks map[int64]*model.Track
}

func (f *fakeTrackRepo) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	return 0, nil
}

func (f *fakeTrackRepo) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	return f.tracks[id], nil
}

func (f *fakeTrackRepo) GetTracksByCreatorID(ctx context.Context, creatorID int64) ([]*model.Track, error) {
	return nil, nil
}

func (f *fakeTrackRepo) UpdateTrackStatus(ctx context.Context, trackID int64, status string) error {
	return nil
}

func (f *fakeTrackRepo) ReserveLicenseTx(ctx context.Context, tx *sql.Tx, track *model.Track, licenseType string) (bool, error) {
	return false, nil
}

func cents(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func testRepo() *fakeTrackRepo {
	return &fakeTrackRepo{tracks: map[int64]*model.Track{
		1: {ID: 1, CreatorID: 10, Title: "Midnight Drive", LicenseMode: model.LicenseModeUnlimited,
			PriceNonExclusive: cents(5000), Status: model.TrackStatusApproved},
		2: {ID: 2, CreatorID: 11, Title: "Cold Static", LicenseMode: model.LicenseModeExclusive,
			PriceExclusive: cents(20000), Status: model.TrackStatusApproved},
		3: {ID: 3, CreatorID: 11, Title: "Sold Anthem", LicenseMode: model.LicenseModeExclusive,
			PriceExclusive: cents(30000), LicensesSold: 1, Status: model.TrackStatusApproved},
		4: {ID: 4, CreatorID: 12, Title: "Capped Loop", LicenseMode: model.LicenseModeLimited,
			LicenseLimit: 5, LicensesSold: 5, PriceNonExclusive: cents(1500), Status: model.TrackStatusApproved},
		5: {ID: 5, CreatorID: 12, Title: "Pending Cut", LicenseMode: model.LicenseModeUnlimited,
			PriceNonExclusive: cents(1000), Status: model.TrackStatusPending},
	}}
}

func TestValidate_AllAvailable(t *testing.T) {
	v := NewValidator(testRepo())

	priced, rejected, err := v.Validate(context.Background(), []model.CartItem{
		{TrackID: 1, LicenseType: model.LicenseTypeNonExclusive},
		{TrackID: 2, LicenseType: model.LicenseTypeExclusive},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("Expected no rejections, got %v", rejected)
	}
	if len(priced) != 2 {
		t.Fatalf("Expected 2 priced items, got %d", len(priced))
	}
	if priced[0].UnitPrice != 5000 || priced[1].UnitPrice != 20000 {
		t.Errorf("Unexpected prices: %d, %d", priced[0].UnitPrice, priced[1].UnitPrice)
	}
	if priced[1].CreatorID != 11 {
		t.Errorf("Expected creator 11, got %d", priced[1].CreatorID)
	}
}

func TestValidate_AllOrNothing(t *testing.T) {
	v := NewValidator(testRepo())

	// one good item plus one sold-out item: the whole cart is rejected and
	// no priced items come back
	priced, rejected, err := v.Validate(context.Background(), []model.CartItem{
		{TrackID: 1, LicenseType: model.LicenseTypeNonExclusive},
		{TrackID: 4, LicenseType: model.LicenseTypeNonExclusive},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if priced != nil {
		t.Errorf("Expected no priced items, got %v", priced)
	}
	if len(rejected) != 1 {
		t.Fatalf("Expected 1 rejection, got %d", len(rejected))
	}
	if rejected[0].TrackID != 4 || rejected[0].Reason != ReasonSoldOut {
		t.Errorf("Unexpected rejection: %+v", rejected[0])
	}
}

func TestValidate_RejectionReasons(t *testing.T) {
	v := NewValidator(testRepo())

	cases := []struct {
		name   string
		item   model.CartItem
		reason string
	}{
		{"missing track", model.CartItem{TrackID: 99, LicenseType: model.LicenseTypeNonExclusive}, ReasonUnavailable},
		{"not approved", model.CartItem{TrackID: 5, LicenseType: model.LicenseTypeNonExclusive}, ReasonUnavailable},
		{"exclusive already sold", model.CartItem{TrackID: 3, LicenseType: model.LicenseTypeExclusive}, ReasonAlreadySold},
		{"exclusive on unlimited track", model.CartItem{TrackID: 1, LicenseType: model.LicenseTypeExclusive}, ReasonNotOffered},
		{"non-exclusive on exclusive track", model.CartItem{TrackID: 2, LicenseType: model.LicenseTypeNonExclusive}, ReasonNotOffered},
		{"limited cap reached", model.CartItem{TrackID: 4, LicenseType: model.LicenseTypeNonExclusive}, ReasonSoldOut},
		{"unknown license type", model.CartItem{TrackID: 1, LicenseType: "lifetime"}, ReasonNotOffered},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, rejected, err := v.Validate(context.Background(), []model.CartItem{c.item})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(rejected) != 1 {
				t.Fatalf("Expected 1 rejection, got %d", len(rejected))
			}
			if rejected[0].Reason != c.reason {
				t.Errorf("Expected reason %q, got %q", c.reason, rejected[0].Reason)
			}
		})
	}
}

func TestValidate_ReportsAllRejections(t *testing.T) {
	v := NewValidator(testRepo())

	_, rejected, err := v.Validate(context.Background(), []model.CartItem{
		{TrackID: 3, LicenseType: model.LicenseTypeExclusive},
		{TrackID: 4, LicenseType: model.LicenseTypeNonExclusive},
		{TrackID: 99, LicenseType: model.LicenseTypeNonExclusive},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rejected) != 3 {
		t.Fatalf("Expected 3 rejections, got %d", len(rejected))
	}
}
