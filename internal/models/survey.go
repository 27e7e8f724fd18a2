package models

import "time"

// SurveyStatus is the lifecycle state of a survey
type SurveyStatus string

const (
	SurveyStatusDraft  SurveyStatus = "draft"
	SurveyStatusActive SurveyStatus = "active"
	SurveyStatusTest   SurveyStatus = "test"
	SurveyStatusClosed SurveyStatus = "closed"
)

// IsValid reports whether s is one of the known statuses
func (s SurveyStatus) IsValid() bool {
	switch s {
	case SurveyStatusDraft, SurveyStatusActive, SurveyStatusTest, SurveyStatusClosed:
		return true
	}
	return false
}

// IsActivatable reports whether a survey can be moved into s through activation
func (s SurveyStatus) IsActivatable() bool {
	return s == SurveyStatusDraft || s == SurveyStatusActive || s == SurveyStatusTest
}

// Input is an input-definition descriptor. Its shape belongs to the client.
type Input map[string]interface{}

// Survey is a collection instrument addressed on devices by Code
type Survey struct {
	ID         string       `json:"id"`
	Code       int          `json:"code"`
	Title      string       `json:"title"`
	Status     SurveyStatus `json:"status"`
	StartDate  *time.Time   `json:"start_date,omitempty"`
	CampaignID string       `json:"campaign_id,omitempty"`
	Inputs     []Input      `json:"inputs"`
	// Generation is bumped on every activation. Responses stamped with an
	// older generation are no longer part of the survey.
	Generation int64     `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsClosed reports whether the survey stopped accepting responses
func (s *Survey) IsClosed() bool {
	return s.Status == SurveyStatusClosed
}

// Clone returns a copy that shares no slices with s
func (s *Survey) Clone() *Survey {
	c := *s
	if s.StartDate != nil {
		d := *s.StartDate
		c.StartDate = &d
	}
	if s.Inputs != nil {
		c.Inputs = make([]Input, len(s.Inputs))
		copy(c.Inputs, s.Inputs)
	}
	return &c
}

// StartOfDay truncates t to UTC midnight
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
