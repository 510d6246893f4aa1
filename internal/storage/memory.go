package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

// MemoryStore keeps every record in maps guarded by one RWMutex. Callers
// always receive copies.
type MemoryStore struct {
	users     map[int64]*models.User
	schedules map[int64]*models.ScheduleImage
	events    map[int64]*models.ExtractedEvent
	nextID    int64
	mu        sync.RWMutex
	now       func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*models.User),
		schedules: make(map[int64]*models.ScheduleImage),
		events:    make(map[int64]*models.ExtractedEvent),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateUser(_ context.Context, username, password string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return nil, fmt.Errorf("%w: username %q already taken", common.ErrValidation, username)
		}
	}
	u := &models.User{ID: s.id(), Username: username, Password: password, CreatedAt: s.now()}
	s.users[u.ID] = u
	return copyUser(u), nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", common.ErrNotFound, id)
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", common.ErrNotFound, username)
}

func (s *MemoryStore) UpdateUserTokens(_ context.Context, id int64, accessToken string, refreshToken *string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", common.ErrNotFound, id)
	}
	u.GoogleAccessToken = &accessToken
	if refreshToken != nil {
		u.GoogleRefreshToken = cloneString(refreshToken)
	}
	return copyUser(u), nil
}

func (s *MemoryStore) CreateScheduleImage(_ context.Context, userID *int64, filename string) (*models.ScheduleImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := &models.ScheduleImage{
		ID:               s.id(),
		UserID:           cloneInt(userID),
		Filename:         filename,
		ProcessingStatus: models.StatusProcessing,
		CreatedAt:        s.now(),
	}
	s.schedules[img.ID] = img
	return copySchedule(img), nil
}

func (s *MemoryStore) GetScheduleImage(_ context.Context, id int64) (*models.ScheduleImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: schedule image %d", common.ErrNotFound, id)
	}
	return copySchedule(img), nil
}

func (s *MemoryStore) UpdateScheduleImageStatus(_ context.Context, id int64, status models.ProcessingStatus, text *string) (*models.ScheduleImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: schedule image %d", common.ErrNotFound, id)
	}
	img.ProcessingStatus = status
	if text != nil {
		img.OriginalText = cloneString(text)
	}
	return copySchedule(img), nil
}

func (s *MemoryStore) ListScheduleImagesByUser(_ context.Context, userID int64) ([]models.ScheduleImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []models.ScheduleImage{}
	for _, img := range s.schedules {
		if img.UserID != nil && *img.UserID == userID {
			result = append(result, *copySchedule(img))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) CreateExtractedEvents(_ context.Context, scheduleImageID int64, drafts []models.EventDraft) ([]models.ExtractedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[scheduleImageID]; !ok {
		return nil, fmt.Errorf("%w: schedule image %d", common.ErrNotFound, scheduleImageID)
	}
	created := make([]models.ExtractedEvent, 0, len(drafts))
	for _, d := range drafts {
		e := &models.ExtractedEvent{
			ID:              s.id(),
			ScheduleImageID: scheduleImageID,
			Title:           d.Title,
			Date:            d.Date,
			StartTime:       d.StartTime,
			EndTime:         cloneString(d.EndTime),
			Location:        cloneString(d.Location),
			Description:     cloneString(d.Description),
			CreatedAt:       s.now(),
		}
		s.events[e.ID] = e
		created = append(created, *copyEvent(e))
	}
	return created, nil
}

func (s *MemoryStore) GetExtractedEvent(_ context.Context, id int64) (*models.ExtractedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", common.ErrNotFound, id)
	}
	return copyEvent(e), nil
}

func (s *MemoryStore) ListExtractedEvents(_ context.Context, scheduleImageID int64) ([]models.ExtractedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []models.ExtractedEvent{}
	for _, e := range s.events {
		if e.ScheduleImageID == scheduleImageID {
			result = append(result, *copyEvent(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) UpdateExtractedEvent(_ context.Context, id int64, update models.EventUpdate) (*models.ExtractedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", common.ErrNotFound, id)
	}
	update.Apply(e)
	return copyEvent(e), nil
}

func (s *MemoryStore) DeleteExtractedEvent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: event %d", common.ErrNotFound, id)
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) SetGoogleEventID(_ context.Context, id int64, googleEventID string) (*models.ExtractedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %d", common.ErrNotFound, id)
	}
	e.GoogleEventID = &googleEventID
	return copyEvent(e), nil
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.GoogleAccessToken = cloneString(u.GoogleAccessToken)
	c.GoogleRefreshToken = cloneString(u.GoogleRefreshToken)
	return &c
}

func copySchedule(img *models.ScheduleImage) *models.ScheduleImage {
	c := *img
	c.UserID = cloneInt(img.UserID)
	c.OriginalText = cloneString(img.OriginalText)
	return &c
}

func copyEvent(e *models.ExtractedEvent) *models.ExtractedEvent {
	c := *e
	c.EndTime = cloneString(e.EndTime)
	c.Location = cloneString(e.Location)
	c.Description = cloneString(e.Description)
	c.GoogleEventID = cloneString(e.GoogleEventID)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
