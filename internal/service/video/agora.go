package video

import (
	"fmt"

	rtctokenbuilder "github.com/AgoraIO-Community/go-tokenbuilder/rtctokenbuilder"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/model"
)

// channelName is the Agora channel of an appointment. Agora channels exist
// as soon as someone joins, so nothing is stored.
func channelName(appointmentID uuid.UUID) string {
	return "appointment-" + appointmentID.String()
}

// agoraToken signs an RTC token for the user account. Both participants
// publish audio and video.
func (s *Service) agoraToken(apt *model.Appointment, userID uuid.UUID, role string) (*model.VideoToken, error) {
	exp := s.now().Add(s.cfg.TokenTTL)
	channel := channelName(apt.ID)

	token, err := rtctokenbuilder.BuildTokenWithUserAccount(
		s.cfg.AgoraAppID,
		s.cfg.AgoraAppCert,
		channel,
		userID.String(),
		rtctokenbuilder.RolePublisher,
		uint32(exp.Unix()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build agora token: %w", err)
	}
	return &model.VideoToken{
		Provider:  ProviderAgora,
		Token:     token,
		RoomID:    channel,
		Role:      role,
		AppID:     s.cfg.AgoraAppID,
		UserID:    userID.String(),
		ExpiresAt: exp,
	}, nil
}
