// Package video issues room tokens for paid appointments, through 100ms or
// Agora.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
)

const (
	Provider100ms = "100ms"
	ProviderAgora = "agora"

	roleHost  = "host"
	roleGuest = "guest"

	managementTokenTTL = 10 * time.Minute
)

type Config struct {
	// Provider is Provider100ms (default) or ProviderAgora.
	Provider       string
	AccessKey      string
	AppSecret      string
	BaseURL        string
	TemplateID     string
	AgoraAppID     string
	AgoraAppCert   string
	TokenTTL       time.Duration
	PaymentTimeout time.Duration
}

type Service struct {
	repo   repository.AppointmentRepository
	client *httpclient.Client
	cfg    Config
	now    func() time.Time
}

func NewService(repo repository.AppointmentRepository, client *httpclient.Client, cfg Config) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.100ms.live/v2"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 2 * time.Hour
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = model.DefaultPaymentTimeout
	}
	if cfg.Provider == "" {
		cfg.Provider = Provider100ms
	}
	return &Service{repo: repo, client: client, cfg: cfg, now: time.Now}
}

// Token returns an app token for the caller's seat in the appointment room,
// creating the room on first use.
func (s *Service) Token(ctx context.Context, p *model.Principal, appointmentID uuid.UUID) (*model.VideoToken, error) {
	if !s.configured() {
		return nil, apperrors.NewBadRequest("video calls are not configured", nil)
	}

	apt, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if !apt.HasParticipant(p.UserID) {
		return nil, apperrors.NewForbidden("not a participant of this appointment")
	}
	if status := apt.EffectiveStatus(s.now(), s.cfg.PaymentTimeout); status != model.BookingStatusPaid {
		return nil, apperrors.NewAppointmentError(apperrors.AppointmentInvalid,
			"video is available once the appointment is paid, it is %s", status)
	}

	role := roleGuest
	if p.UserID == apt.DoctorID {
		role = roleHost
	}
	if s.cfg.Provider == ProviderAgora {
		return s.agoraToken(apt, p.UserID, role)
	}

	roomID, err := s.room(ctx, apt)
	if err != nil {
		return nil, err
	}
	token, exp, err := s.appToken(roomID, p.UserID, role)
	if err != nil {
		return nil, err
	}
	return &model.VideoToken{Provider: Provider100ms, Token: token, RoomID: roomID, Role: role, ExpiresAt: exp}, nil
}

func (s *Service) configured() bool {
	if s.cfg.Provider == ProviderAgora {
		return s.cfg.AgoraAppID != "" && s.cfg.AgoraAppCert != ""
	}
	return s.cfg.AccessKey != "" && s.cfg.AppSecret != ""
}

func (s *Service) room(ctx context.Context, apt *model.Appointment) (string, error) {
	if apt.VideoRoomID != nil && *apt.VideoRoomID != "" {
		return *apt.VideoRoomID, nil
	}

	roomID, err := s.createRoom(ctx, apt.ID)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetVideoRoom(ctx, apt.ID, roomID); err != nil {
		return "", err
	}

	// a concurrent request may have stored its room first
	stored, err := s.repo.Get(ctx, apt.ID)
	if err != nil {
		return "", fmt.Errorf("failed to reload appointment: %w", err)
	}
	if stored.VideoRoomID != nil && *stored.VideoRoomID != "" {
		return *stored.VideoRoomID, nil
	}
	return roomID, nil
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TemplateID  string `json:"template_id,omitempty"`
}

type room struct {
	ID string `json:"id"`
}

func (s *Service) createRoom(ctx context.Context, appointmentID uuid.UUID) (string, error) {
	mgmt, err := s.managementToken()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(createRoomRequest{
		Name:        "appointment-" + appointmentID.String(),
		Description: "Telecare appointment",
		TemplateID:  s.cfg.TemplateID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal room request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build room request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+mgmt)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create video room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("video api status %d: %s", resp.StatusCode, string(msg))
	}

	var created room
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode room response: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("video api returned a room without id")
	}
	return created.ID, nil
}

func (s *Service) managementToken() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"access_key": s.cfg.AccessKey,
		"type":       "management",
		"version":    2,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"nbf":        now.Unix(),
		"exp":        now.Add(managementTokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AppSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign management token: %w", err)
	}
	return signed, nil
}

func (s *Service) appToken(roomID string, userID uuid.UUID, role string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.TokenTTL)
	claims := jwt.MapClaims{
		"access_key": s.cfg.AccessKey,
		"room_id":    roomID,
		"user_id":    userID.String(),
		"role":       role,
		"type":       "app",
		"version":    2,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"nbf":        now.Unix(),
		"exp":        exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AppSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign app token: %w", err)
	}
	return signed, exp, nil
}
