package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"X402FM/db"
	"X402FM/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) error
	GetTrackByID(id string) (*model.Track, error)
	GetAllTracks() ([]*model.Track, error)
	GetTracksByArtistWallet(wallet string) ([]*model.Track, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, title, artist, description, audio_path, cover_path, price, artist_wallet, created_at`

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) error {
	query := `INSERT INTO tracks (id, title, artist, description, audio_path, cover_path, price, artist_wallet, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now()
	}
	_, err = stmt.Exec(track.ID, track.Title, track.Artist, track.Description,
		track.AudioPath, track.CoverPath, track.Price, strings.ToLower(track.ArtistWallet), track.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	return nil
}

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	var artist, description, coverPath, artistWallet sql.NullString
	err := row.Scan(&track.ID, &track.Title, &artist, &description,
		&track.AudioPath, &coverPath, &track.Price, &artistWallet, &track.CreatedAt)
	if err != nil {
		return nil, err
	}
	track.Artist = artist.String
	track.Description = description.String
	track.CoverPath = coverPath.String
	track.ArtistWallet = artistWallet.String
	return track, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %s: %w", id, err)
	}
	return track, nil
}

// GetAllTracks retrieves all tracks, newest first.
func (r *mysqlTrackRepository) GetAllTracks() ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY created_at DESC`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

// GetTracksByArtistWallet retrieves all tracks uploaded by one artist wallet.
func (r *mysqlTrackRepository) GetTracksByArtistWallet(wallet string) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE artist_wallet = ? ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, strings.ToLower(wallet))
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for artist wallet %s: %w", wallet, err)
	}
	defer rows.Close()

	return collectTracks(rows)
}

func collectTracks(rows *sql.Rows) ([]*model.Track, error) {
	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during track rows iteration: %w", err)
	}
	return tracks, nil
}
