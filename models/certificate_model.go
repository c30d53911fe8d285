package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CertificateStatusDraft = "DRAFT"
	CertificateStatusReady = "READY"
)

type OwnershipKind string

const (
	OwnershipEventWinner  OwnershipKind = "EVENT_WINNER"
	OwnershipContingent   OwnershipKind = "CONTINGENT"
	OwnershipState        OwnershipKind = "STATE"
	OwnershipContestant   OwnershipKind = "CONTESTANT"
	OwnershipPregenerated OwnershipKind = "PREGENERATED"
)

// Ownership says which entity a certificate belongs to. It is a tagged
// union persisted as jsonb: only the fields for the given Kind are set,
// and Validate rejects anything else.
type Ownership struct {
	Kind OwnershipKind `json:"kind"`

	EventID      *uuid.UUID `json:"event_id,omitempty"`
	ContestID    *uuid.UUID `json:"contest_id,omitempty"`
	Rank         int        `json:"rank,omitempty"`
	StateID      *uuid.UUID `json:"state_id,omitempty"`
	MemberNumber int        `json:"member_number,omitempty"`

	ContingentID *uuid.UUID `json:"contingent_id,omitempty"`
	ContestantID *uuid.UUID `json:"contestant_id,omitempty"`
}

func EventWinnerOwnership(eventID, contestID uuid.UUID, rank, memberNumber int, stateID *uuid.UUID) Ownership {
	return Ownership{
		Kind:         OwnershipEventWinner,
		EventID:      &eventID,
		ContestID:    &contestID,
		Rank:         rank,
		MemberNumber: memberNumber,
		StateID:      stateID,
	}
}

func ContingentOwnership(contingentID uuid.UUID) Ownership {
	return Ownership{Kind: OwnershipContingent, ContingentID: &contingentID}
}

func StateOwnership(stateID uuid.UUID) Ownership {
	return Ownership{Kind: OwnershipState, StateID: &stateID}
}

func ContestantOwnership(contestantID uuid.UUID) Ownership {
	return Ownership{Kind: OwnershipContestant, ContestantID: &contestantID}
}

func PregeneratedOwnership() Ownership {
	return Ownership{Kind: OwnershipPregenerated}
}

func (o Ownership) Value() (driver.Value, error) {
	return json.Marshal(o)
}

func (o *Ownership) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	case nil:
		*o = Ownership{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Ownership", value)
	}
}

func (o Ownership) Validate() error {
	switch o.Kind {
	case OwnershipEventWinner:
		if o.EventID == nil || o.ContestID == nil {
			return errors.New("event winner ownership requires event and contest ids")
		}
		if o.Rank < 1 {
			return errors.New("event winner ownership requires a positive rank")
		}
		if o.MemberNumber < 1 {
			return errors.New("event winner ownership requires a positive member number")
		}
	case OwnershipContingent:
		if o.ContingentID == nil {
			return errors.New("contingent ownership requires a contingent id")
		}
	case OwnershipState:
		if o.StateID == nil {
			return errors.New("state ownership requires a state id")
		}
	case OwnershipContestant:
		if o.ContestantID == nil {
			return errors.New("contestant ownership requires a contestant id")
		}
	case OwnershipPregenerated:
	default:
		return fmt.Errorf("unknown ownership kind %q", o.Kind)
	}
	return nil
}

// BoundFields exposes ownership data to dynamic template elements.
func (o Ownership) BoundFields() map[string]string {
	fields := make(map[string]string)
	switch o.Kind {
	case OwnershipEventWinner:
		fields["rank"] = strconv.Itoa(o.Rank)
		fields["member_number"] = strconv.Itoa(o.MemberNumber)
		if o.ContestID != nil {
			fields["contest_id"] = o.ContestID.String()
		}
		if o.StateID != nil {
			fields["state_id"] = o.StateID.String()
		}
	case OwnershipContingent:
		if o.ContingentID != nil {
			fields["contingent_id"] = o.ContingentID.String()
		}
	case OwnershipState:
		if o.StateID != nil {
			fields["state_id"] = o.StateID.String()
		}
	case OwnershipContestant:
		if o.ContestantID != nil {
			fields["contestant_id"] = o.ContestantID.String()
		}
	}
	return fields
}

type CertificateRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TemplateID    uuid.UUID `gorm:"type:uuid;not null" json:"template_id"`
	RecipientName string    `gorm:"size:255;not null" json:"recipient_name"`
	RecipientType string    `gorm:"size:32;not null" json:"recipient_type"`
	Ownership     Ownership `gorm:"type:jsonb;not null" json:"ownership"`

	SerialNumber *string `gorm:"size:64;unique" json:"serial_number"`
	UniqueCode   string  `gorm:"size:16;unique" json:"unique_code"`
	FilePath     *string `gorm:"size:512" json:"file_path,omitempty"`
	PublicURL    *string `gorm:"size:512" json:"public_url,omitempty"`
	Status       string  `gorm:"size:10;not null;default:'DRAFT'" json:"status"`

	Template TemplateDefinition `gorm:"foreignkey:TemplateID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *CertificateRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
