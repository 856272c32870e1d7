package models

import (
	"encoding/json"
	"errors"
)

type EntryType string

const (
	EntryTypeForecast    EntryType = "forecast"
	EntryTypeOpportunity EntryType = "opportunity"
	EntryTypeActual      EntryType = "actual"
)

func ParseEntryType(s string) (EntryType, error) {
	switch s {
	case "forecast":
		return EntryTypeForecast, nil
	case "opportunity", "opportunities":
		// the frontend historically sent both singular and plural
		return EntryTypeOpportunity, nil
	case "actual", "actuals":
		return EntryTypeActual, nil
	default:
		return "", errors.New("invalid entry type")
	}
}

func (t *EntryType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("entry type must be string")
	}
	parsed, err := ParseEntryType(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type OpportunityStatus string

const (
	OpportunityStatusInProgress OpportunityStatus = "In-progress"
	OpportunityStatusWon        OpportunityStatus = "Won"
	OpportunityStatusAbandoned  OpportunityStatus = "Abandoned"
)

// Frozen reports whether the opportunity has reached a terminal status.
// Terminal opportunities refuse further numeric edits.
func (s OpportunityStatus) Frozen() bool {
	return s == OpportunityStatusWon || s == OpportunityStatusAbandoned
}

// ParseOpportunityStatus keeps empty input empty: "" means "no status
// supplied", and only entry creation fills in the In-progress default.
func ParseOpportunityStatus(s string) (OpportunityStatus, error) {
	switch s {
	case "":
		return "", nil
	case "In-progress":
		return OpportunityStatusInProgress, nil
	case "Won":
		return OpportunityStatusWon, nil
	case "Abandoned":
		return OpportunityStatusAbandoned, nil
	default:
		return "", errors.New("invalid opportunity status")
	}
}

func (s *OpportunityStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("opportunity status must be string")
	}
	parsed, err := ParseOpportunityStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Probability bands an opportunity's likelihood A (highest) to E (lowest).
// Empty means unassessed.
type Probability string

func ParseProbability(s string) (Probability, error) {
	switch s {
	case "", "A", "B", "C", "D", "E":
		return Probability(s), nil
	default:
		return "", errors.New("invalid probability: must be A-E or empty")
	}
}

func (p *Probability) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("probability must be string")
	}
	parsed, err := ParseProbability(str)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
)

func ParseUserRole(s string) (UserRole, error) {
	switch s {
	case "admin":
		return UserRoleAdmin, nil
	case "manager":
		return UserRoleManager, nil
	default:
		return "", errors.New("invalid user role")
	}
}
