// Package domain contains entities without transport logic, just meta-data
// and the small state rules that belong to them.
package domain

import (
	"unicode/utf8"
)

const (
	MaxParticipantIDLen = 64
	MaxNameLen          = 36
)

type (
	ParticipantID string
	RoomID        string
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant is a member of a room as seen by other members.
type Participant struct {
	ID    ParticipantID `json:"id"`
	Name  string        `json:"name,omitempty"`
	Role  Role          `json:"role"`
	Media MediaState    `json:"media"`
}

// NewParticipant keeps construction obvious for adapters and validates the display name.
func NewParticipant(id ParticipantID, name string) (*Participant, error) {
	if err := ValidateParticipantID(id); err != nil {
		return nil, err
	}
	p := &Participant{ID: id, Role: RoleGuest}
	if err := p.SetName(name); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Participant) SetName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return ErrNameTooLong
	}
	p.Name = name
	return nil
}

func ValidateParticipantID(id ParticipantID) error {
	if id == "" {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	return nil
}

func ValidateRoomID(id RoomID) error {
	if id == "" {
		return ErrRoomIDEmpty
	}
	return nil
}
