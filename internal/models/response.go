package models

import "time"

// Answer is one answer slot of a response, keyed by the survey input id
type Answer struct {
	ID    int64       `json:"id"`
	Value AnswerValue `json:"value"`
}

// Response is one respondent's set of answers.
// (InstallationID, Timestamp) identifies a submission across client retries.
type Response struct {
	ID             string                 `json:"id"`
	SurveyID       string                 `json:"survey_id"`
	InstallationID int64                  `json:"installation_id"`
	Timestamp      int64                  `json:"timestamp"`
	Answers        []Answer               `json:"answers"`
	Locationstamp  map[string]interface{} `json:"locationstamp,omitempty"`
	Generation     int64                  `json:"generation"`
	CreatedAt      time.Time              `json:"created_at"`
}

// FindAnswer returns the index of the answer for inputID, or -1
func (r *Response) FindAnswer(inputID int64) int {
	for i := range r.Answers {
		if r.Answers[i].ID == inputID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the answers; locationstamp is shared
func (r *Response) Clone() *Response {
	c := *r
	if r.Answers != nil {
		c.Answers = make([]Answer, len(r.Answers))
		for i, a := range r.Answers {
			c.Answers[i] = Answer{ID: a.ID, Value: a.Value.Clone()}
		}
	}
	return &c
}

// Reading is a raw sensor sample
type Reading struct {
	ID             string    `json:"id"`
	SurveyID       string    `json:"survey_id"`
	InstallationID int64     `json:"installation_id"`
	SensorID       string    `json:"sensor_id"`
	Value          float64   `json:"value"`
	Timestamp      int64     `json:"timestamp"`
	CreatedAt      time.Time `json:"created_at"`
}

// Setting holds process-wide counters
type Setting struct {
	ID                 string `json:"id"`
	NextInstallationID int64  `json:"next_installation_id"`
}

// SettingsID is the id of the singleton Setting document
const SettingsID = "settings"
