package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"X402FM/config"
	"X402FM/core/access"
	"X402FM/core/payment"
	"X402FM/model"
)

// Test mocks

type mockTrackRepo struct {
	tracks map[string]*model.Track
}

func newMockTrackRepo(tracks ...*model.Track) *mockTrackRepo {
	m := &mockTrackRepo{tracks: make(map[string]*model.Track)}
	for _, t := range tracks {
		m.tracks[t.ID] = t
	}
	return m
}

func (m *mockTrackRepo) CreateTrack(track *model.Track) error {
	m.tracks[track.ID] = track
	return nil
}

func (m *mockTrackRepo) GetTrackByID(id string) (*model.Track, error) {
	return m.tracks[id], nil
}

func (m *mockTrackRepo) GetAllTracks() ([]*model.Track, error) {
	out := make([]*model.Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockTrackRepo) GetTracksByArtistWallet(wallet string) ([]*model.Track, error) {
	out := make([]*model.Track, 0)
	for _, t := range m.tracks {
		if t.ArtistWallet == wallet {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockSessionRepo struct {
	sessions map[string]*model.StreamSession
	records  []*model.PaymentRecord
}

func newMockSessionRepo(sessions ...*model.StreamSession) *mockSessionRepo {
	m := &mockSessionRepo{sessions: make(map[string]*model.StreamSession)}
	for _, s := range sessions {
		m.sessions[s.StreamID] = s
	}
	return m
}

func (m *mockSessionRepo) CreateSessionWithPayment(session *model.StreamSession, record *model.PaymentRecord) error {
	m.sessions[session.StreamID] = session
	m.records = append(m.records, record)
	return nil
}

func (m *mockSessionRepo) GetSessionByID(streamID string) (*model.StreamSession, error) {
	return m.sessions[streamID], nil
}

// newTestHandler wires an APIHandler over mocks with a temp asset root.
// The returned track has a 1000-byte audio file on disk.
func newTestHandler(t *testing.T, sessions ...*model.StreamSession) (*APIHandler, *model.Track, *mockSessionRepo) {
	t.Helper()

	uploadDir := t.TempDir()
	track := &model.Track{
		ID:           "track-1",
		Title:        "Test Track",
		Artist:       "Tester",
		AudioPath:    "audio/track-1.mp3",
		CoverPath:    "/api/file/covers/track-1_cover.jpg",
		Price:        2.50,
		ArtistWallet: "0xartist",
		CreatedAt:    time.Now(),
	}

	audioDir := filepath.Join(uploadDir, "audio")
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(audioDir, "track-1.mp3"), make([]byte, 1000), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		UploadDir:        uploadDir,
		AudioUploadDir:   audioDir,
		CoverUploadDir:   filepath.Join(uploadDir, "covers"),
		StreamTTL:        600 * time.Second,
		AccessTokenBytes: 32,
		PaymentNetwork:   "arbitrum",
		AllowedOrigins:   []string{"x402music.live", "localhost:3000", "127.0.0.1:3000"},
	}

	trackRepo := newMockTrackRepo(track)
	sessionRepo := newMockSessionRepo(sessions...)

	handler := NewAPIHandler(
		trackRepo,
		sessionRepo,
		access.NewValidator(sessionRepo, trackRepo, cfg.AllowedOrigins),
		access.NewIssuer(sessionRepo, cfg.StreamTTL, cfg.AccessTokenBytes),
		payment.NewClient(&config.Config{FacilitatorURL: "http://facilitator.invalid", StreamTTL: cfg.StreamTTL}),
		cfg,
	)
	return handler, track, sessionRepo
}

func validSession() *model.StreamSession {
	now := time.Now()
	return &model.StreamSession{
		StreamID:    "stream-1",
		TrackID:     "track-1",
		AccessToken: "tok_0123456789abcdef0123456789abcdef",
		CreatedAt:   now,
		ExpiresAt:   now.Add(600 * time.Second),
	}
}
