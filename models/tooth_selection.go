package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotationFDI is the two-digit quadrant+tooth numbering used by the odontogram
const NotationFDI = "FDI"

// Condition types recorded per tooth
const (
	ConditionCaries       = "caries"
	ConditionRestoration  = "restoration"
	ConditionCrown        = "crown"
	ConditionImplant      = "implant"
	ConditionProsthesis   = "prosthesis"
	ConditionMissing      = "missing"
	ConditionEndodontics  = "endodontics"
	ConditionOrthodontics = "orthodontics"
	ConditionSurgery      = "surgery"
)

// FDIUpperArch and FDILowerArch list the permanent teeth in chart order
var (
	FDIUpperArch = []string{"18", "17", "16", "15", "14", "13", "12", "11", "21", "22", "23", "24", "25", "26", "27", "28"}
	FDILowerArch = []string{"48", "47", "46", "45", "44", "43", "42", "41", "31", "32", "33", "34", "35", "36", "37", "38"}
)

var (
	fdiTeeth   = map[string]bool{}
	conditions = map[string]bool{
		ConditionCaries: true, ConditionRestoration: true, ConditionCrown: true,
		ConditionImplant: true, ConditionProsthesis: true, ConditionMissing: true,
		ConditionEndodontics: true, ConditionOrthodontics: true, ConditionSurgery: true,
	}
)

func init() {
	for _, t := range FDIUpperArch {
		fdiTeeth[t] = true
	}
	for _, t := range FDILowerArch {
		fdiTeeth[t] = true
	}
}

// IsValidFDITooth reports whether n is one of the 32 permanent FDI tooth codes
func IsValidFDITooth(n string) bool {
	return fdiTeeth[n]
}

// IsValidCondition reports whether c is a known condition type
func IsValidCondition(c string) bool {
	return conditions[c]
}

// ToothSelection is one odontogram entry attached to an order.
// It is created with its order and never edited.
type ToothSelection struct {
	ID            string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID       string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ToothNumber   string    `gorm:"type:varchar(2);not null" json:"tooth_number"`
	ToothNotation string    `gorm:"type:varchar(8);not null" json:"tooth_notation"`
	ConditionType string    `gorm:"type:varchar(32);not null" json:"condition_type"`
	Notes         *string   `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for the ToothSelection model
func (ToothSelection) TableName() string {
	return "odontogram_selections"
}

// BeforeCreate assigns a UUID when the caller did not
func (t *ToothSelection) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
