package models

// SurveyPayload is the body of an activate/update request.
// Nil fields are left as they are on an existing survey.
type SurveyPayload struct {
	ID         string  `json:"id" validate:"required,max=128"`
	Code       *int    `json:"code,omitempty" validate:"omitempty,min=0"`
	Title      *string `json:"title,omitempty" validate:"omitempty,max=512"`
	CampaignID *string `json:"campaign_id,omitempty" validate:"omitempty,max=128"`
	Inputs     []Input `json:"inputs,omitempty"`
}

// SubmitResponseRequest is the body of a response submission.
// Server managed fields (id, status, generation) are not part of it.
// Timestamp is the device's value and is only compared for equality.
type SubmitResponseRequest struct {
	SurveyID       string                 `json:"survey_id" validate:"required"`
	InstallationID int64                  `json:"installation_id" validate:"required,min=1"`
	Timestamp      int64                  `json:"timestamp"`
	Answers        []Answer               `json:"answers"`
	Locationstamp  map[string]interface{} `json:"locationstamp,omitempty"`
}

// ReadingRequest is one entry of a readings batch
type ReadingRequest struct {
	SurveyID       string   `json:"survey_id" validate:"required"`
	InstallationID int64    `json:"installation_id" validate:"required,min=1"`
	SensorID       string   `json:"sensor_id" validate:"required,max=128"`
	Value          *float64 `json:"value" validate:"required"`
	// Timestamp in milliseconds; zero means server time
	Timestamp int64 `json:"timestamp,omitempty" validate:"min=0"`
}
