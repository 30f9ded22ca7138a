package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Card-specific validation errors
var (
	// ErrCardIDEmpty is returned when a card ID is empty or nil.
	ErrCardIDEmpty = errors.New("card ID cannot be empty")

	// ErrCardNameEmpty is returned when a card's name is empty.
	ErrCardNameEmpty = errors.New("card name cannot be empty")
)

// Card represents a single catalog entry: the printed card itself plus the
// contextual fields handed to the generation backend when its guide is
// produced. Image URLs are stored as opaque references; the core never
// fetches them.
type Card struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	SetCode       string    `json:"set_code"`
	SetName       string    `json:"set_name"`
	Rarity        string    `json:"rarity"`
	TypeLine      string    `json:"type_line"`
	ManaCost      string    `json:"mana_cost"`
	OracleText    string    `json:"oracle_text"`
	FlavorText    string    `json:"flavor_text,omitempty"`
	Power         string    `json:"power,omitempty"`
	Toughness     string    `json:"toughness,omitempty"`
	Lang          string    `json:"lang"`
	ImageSmallURL string    `json:"image_small_url,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	ArtCropURL    string    `json:"art_crop_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewCard creates a new Card with the given identity and name, generating
// timestamps. Remaining fields are set by the caller before persisting.
// Returns an error if validation fails.
func NewCard(id uuid.UUID, name string) (*Card, error) {
	now := time.Now().UTC()
	card := &Card{
		ID:        id,
		Name:      name,
		Lang:      "en",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	return card, nil
}

// Validate checks if the Card has valid data.
// Returns an error if any field fails validation.
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return ErrCardIDEmpty
	}

	if c.Name == "" {
		return ErrCardNameEmpty
	}

	return nil
}
