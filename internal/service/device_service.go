package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/device"
	"github.com/bluebricks/rba-harness/internal/models"
	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/timefmt"
)

// ErrUserIDsRequired is returned when profiles are requested for no users.
var ErrUserIDsRequired = errors.New("userIds array required")

const deviceDetailsPath = "/api/device-details"

// DeviceService manages the stored device profiles.
type DeviceService struct {
	store     *device.Store
	gen       *device.Generator
	log       Recorder
	api       RiskAPI
	jwtUserID string
	now       func() time.Time
}

func NewDeviceService(store *device.Store, gen *device.Generator, log Recorder, api RiskAPI, jwtUserID string) *DeviceService {
	return &DeviceService{store: store, gen: gen, log: log, api: api, jwtUserID: jwtUserID, now: time.Now}
}

// Details returns the stored document. Failures are recorded in the
// exchange log before being returned.
func (s *DeviceService) Details() (json.RawMessage, error) {
	doc, err := s.store.Load()
	if err != nil && s.log != nil {
		s.log.Record(struct {
			URL string `json:"url"`
		}{URL: deviceDetailsPath}, errorBody{Message: err.Error()}, true)
	}
	return doc, err
}

// AddProfiles gives every user a fresh android, ios and web profile.
func (s *DeviceService) AddProfiles(userIDs []string) error {
	if len(userIDs) == 0 {
		return ErrUserIDsRequired
	}
	logger.Infof("[Devices] adding profiles for %d users", len(userIDs))
	return s.store.AddProfiles(userIDs)
}

// ProfileFor returns the stored profile for userID, creating the user's
// profiles first when the user has no entry. An existing entry that cannot
// serve dt is left untouched and a fresh profile is generated instead, as is
// one for a store that cannot be written.
func (s *DeviceService) ProfileFor(userID string, dt models.DeviceType) models.DeviceProfile {
	if p, ok := s.store.ProfileFor(userID, dt); ok {
		return p
	}
	if s.store.Has(userID) {
		logger.Warnf("[Devices] stored profiles for %s cannot serve %s, using a random device", userID, dt)
		return s.gen.Generate(dt)
	}
	if err := s.store.AddProfiles([]string{userID}); err != nil {
		logger.Warnf("[Devices] could not store profiles for %s: %v", userID, err)
		return s.gen.Generate(dt)
	}
	if p, ok := s.store.ProfileFor(userID, dt); ok {
		return p
	}
	return s.gen.Generate(dt)
}

// Random generates an unstored profile.
func (s *DeviceService) Random(dt models.DeviceType) models.DeviceProfile {
	return s.gen.Generate(dt)
}

// UserIDs lists users with stored profiles.
func (s *DeviceService) UserIDs() []string {
	return s.store.UserIDs()
}

// SeedFromUpstream replaces the store with fresh profiles for every user of
// the configured account and returns the number of users written.
func (s *DeviceService) SeedFromUpstream(ctx context.Context) (int, error) {
	if s.jwtUserID == "" {
		return 0, errors.New("seed devices: JWT user ID is not configured")
	}
	requestTime := timefmt.UTCRequestTime(s.now())
	token, err := s.api.GetJWTToken(ctx, client.JWTRequest{
		UserID:         s.jwtUserID,
		RequestTime:    requestTime,
		IncludeAccount: true,
	})
	if err != nil {
		return 0, fmt.Errorf("seed devices: token: %w", err)
	}
	users, err := s.api.GetAllUsers(ctx, token, requestTime)
	if err != nil {
		return 0, fmt.Errorf("seed devices: users: %w", err)
	}

	details := make(models.DeviceDetails, len(users))
	for _, id := range users {
		details[id] = s.gen.Profiles()
	}
	if err := s.store.ReplaceAll(details); err != nil {
		return 0, err
	}
	logger.Infof("[Devices] seeded %d users into %s", len(users), s.store.Path())
	return len(users), nil
}
