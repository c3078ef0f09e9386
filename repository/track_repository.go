package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jamesdoliver/featune-sub001/db"
	"github.com/jamesdoliver/featune-sub001/model"
)

// TrackRepository defines the interface for track data operations.
// ReserveLicenseTx is the single concurrency-critical operation of the
// whole system: it must be an atomic, single-statement conditional
// increment so racing settlements resolve deterministically.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) (int64, error)
	GetTrackByID(ctx context.Context, id int64) (*model.Track, error)
	GetTracksByCreatorID(ctx context.Context, creatorID int64) ([]*model.Track, error)
	UpdateTrackStatus(ctx context.Context, trackID int64, status string) error
	ReserveLicenseTx(ctx context.Context, tx *sql.Tx, track *model.Track, licenseType string) (bool, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, creator_id, title, genre, license_mode, license_limit, licenses_sold,
	price_non_exclusive, price_exclusive, status, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var genre sql.NullString
	err := row.Scan(&track.ID, &track.CreatorID, &track.Title, &genre, &track.LicenseMode,
		&track.LicenseLimit, &track.LicensesSold, &track.PriceNonExclusive, &track.PriceExclusive,
		&track.Status, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	track.Genre = genre.String
	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (creator_id, title, genre, license_mode, license_limit,
	           price_non_exclusive, price_exclusive, status, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.ExecContext(ctx, track.CreatorID, track.Title, track.Genre, track.LicenseMode,
		track.LicenseLimit, track.PriceNonExclusive, track.PriceExclusive, track.Status, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	row := r.DB.QueryRowContext(ctx, query, id)

	track, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTracksByCreatorID retrieves all tracks published by a creator.
func (r *mysqlTrackRepository) GetTracksByCreatorID(ctx context.Context, creatorID int64) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE creator_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for creator ID %d: %w", creatorID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByCreatorID: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByCreatorID: %w", err)
	}

	return tracks, nil
}

// UpdateTrackStatus moves a track through moderation states.
func (r *mysqlTrackRepository) UpdateTrackStatus(ctx context.Context, trackID int64, status string) error {
	query := `UPDATE tracks SET status = ?, updated_at = ? WHERE id = ?`
	_, err := r.DB.ExecContext(ctx, query, status, time.Now(), trackID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrackStatus for track ID %d: %w", trackID, err)
	}
	return nil
}

// ReserveLicenseTx attempts to claim one license on the track inside the
// given transaction. Returns false when the conditional increment did not
// apply (exclusive already sold, or limited cap reached). The license mode
// is immutable once a track is approved, so dispatching on track.LicenseMode
// read outside the UPDATE is safe; the UPDATE itself re-checks the counter
// predicate atomically at the row level.
func (r *mysqlTrackRepository) ReserveLicenseTx(ctx context.Context, tx *sql.Tx, track *model.Track, licenseType string) (bool, error) {
	var query string
	var args []interface{}

	switch {
	case licenseType == model.LicenseTypeExclusive:
		if track.LicenseMode != model.LicenseModeExclusive {
			return false, nil
		}
		query = `UPDATE tracks SET licenses_sold = 1, updated_at = ? WHERE id = ? AND licenses_sold = 0`
		args = []interface{}{time.Now(), track.ID}
	case track.LicenseMode == model.LicenseModeLimited:
		query = `UPDATE tracks SET licenses_sold = licenses_sold + 1, updated_at = ?
		          WHERE id = ? AND licenses_sold < license_limit`
		args = []interface{}{time.Now(), track.ID}
	case track.LicenseMode == model.LicenseModeUnlimited:
		query = `UPDATE tracks SET licenses_sold = licenses_sold + 1, updated_at = ? WHERE id = ?`
		args = []interface{}{time.Now(), track.ID}
	default:
		// non-exclusive request against an exclusive-only track
		return false, nil
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to reserve license for track ID %d: %w", track.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for track ID %d: %w", track.ID, err)
	}

	return affected == 1, nil
}
