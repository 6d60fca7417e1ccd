package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
)

type (
	// Frequency is the persisted schedule token of a recurrence definition.
	Frequency string

	// MovementTemplate is the movement blueprint carried by a recurrence
	// definition. The scheduler stamps the posting date at run time.
	MovementTemplate struct {
		Kind        MovementKind
		Amount      decimal.Decimal
		Description string
		CategoryID  string
		SourceID    string
		GoalID      string
	}

	// RecurrenceDefinition periodically spawns movements from its template.
	// NextDueDate is derived from Frequency and LastRunAt (StartDate when the
	// definition has never run); Active flips to false once the schedule
	// would pass EndDate.
	RecurrenceDefinition struct {
		ID          string
		OwnerID     string
		Template    MovementTemplate
		Frequency   Frequency
		StartDate   time.Time
		EndDate     *time.Time
		NextDueDate time.Time
		LastRunAt   *time.Time
		Active      bool
	}
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Yearly:
		return true
	}
	return false
}

// NewRecurrenceDefinition creates an active definition first due on its start
// date.
func NewRecurrenceDefinition(ownerID string, tpl MovementTemplate, freq Frequency, startDate time.Time) (RecurrenceDefinition, error) {
	def := RecurrenceDefinition{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Template:    tpl,
		Frequency:   freq,
		StartDate:   DateOnly(startDate),
		NextDueDate: DateOnly(startDate),
		Active:      true,
	}
	if err := def.Validate(); err != nil {
		return RecurrenceDefinition{}, err
	}
	return def, nil
}

func (tpl MovementTemplate) Validate() error {
	if !tpl.Kind.Valid() {
		return ErrInvalidKind
	}
	if !tpl.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(tpl.Description) == "" {
		return errors.New("empty template description")
	}
	if len(tpl.Description) > 200 {
		return errors.New("template description too long (max 200 characters)")
	}
	if tpl.GoalID != "" && tpl.Kind != Savings {
		return ErrGoalOnNonSavings
	}
	if tpl.SourceID != "" && tpl.Kind != Income {
		return ErrSourceOnNonIncome
	}
	return nil
}

func (d RecurrenceDefinition) Validate() error {
	if strings.TrimSpace(d.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if err := d.Template.Validate(); err != nil {
		return err
	}
	if !d.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if d.StartDate.IsZero() {
		return ErrInvalidDate
	}
	if d.EndDate != nil && d.EndDate.Before(d.StartDate) {
		return errors.New("end date before start date")
	}
	return nil
}

// NewMovementFromTemplate materializes the template into a concrete movement
// dated at postDate, tagged as automated. The ID is derived from the
// definition and the posting date, so re-posting the same occurrence after a
// partially applied run overwrites the earlier row instead of duplicating it.
func (d RecurrenceDefinition) NewMovementFromTemplate(postDate time.Time) Movement {
	m := NewMovement(d.OwnerID, d.Template.Kind, d.Template.Amount, DateOnly(postDate))
	m.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(d.ID+"|"+DateOnly(postDate).Format("2006-01-02"))).String()
	m.CategoryID = d.Template.CategoryID
	m.SourceID = d.Template.SourceID
	m.GoalID = d.Template.GoalID
	m.Automated = true
	m.Notes = "auto-generated from definition " + d.ID
	return m
}
