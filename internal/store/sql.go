package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type surveyRow struct {
	ID         string `gorm:"primaryKey;size:128"`
	Code       int    `gorm:"not null;index"`
	Title      string
	Status     string `gorm:"size:16;not null"`
	StartDate  *time.Time
	CampaignID string `gorm:"size:128"`
	Inputs     datatypes.JSON
	Generation int64 `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

func (surveyRow) TableName() string { return "surveys" }

type responseRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	SurveyID       string `gorm:"size:128;not null;index:idx_responses_survey"`
	InstallationID int64  `gorm:"not null;uniqueIndex:idx_responses_dedup"`
	Timestamp      int64  `gorm:"column:ts;not null;uniqueIndex:idx_responses_dedup"`
	Answers        datatypes.JSON
	Locationstamp  datatypes.JSON
	Generation     int64 `gorm:"not null;default:0;index:idx_responses_survey"`
	CreatedAt      time.Time
}

func (responseRow) TableName() string { return "responses" }

type readingRow struct {
	ID             string  `gorm:"primaryKey;size:64"`
	SurveyID       string  `gorm:"size:128;not null;index"`
	InstallationID int64   `gorm:"not null"`
	SensorID       string  `gorm:"size:128;not null"`
	Value          float64 `gorm:"not null"`
	Timestamp      int64   `gorm:"column:ts;not null;index"`
	CreatedAt      time.Time
}

func (readingRow) TableName() string { return "readings" }

type settingRow struct {
	ID                 string `gorm:"primaryKey;size:32"`
	NextInstallationID int64  `gorm:"not null;default:0"`
}

func (settingRow) TableName() string { return "settings" }

// openCodeIndex keeps at most one non-closed survey per code
const openCodeIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_surveys_open_code ON surveys (code) WHERE status <> 'closed'`

// SQLStore implements Store on top of gorm (postgres or sqlite)
type SQLStore struct {
	db     *gorm.DB
	logger *logging.Logger
}

// NewSQLStore opens the database, migrates the schema and seeds the settings row
func NewSQLStore(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch utils.StoreDriver(cfg.Driver) {
	case utils.StoreDriverPostgres:
		dialector = postgres.New(postgres.Config{DSN: cfg.URL, PreferSimpleProtocol: true})
	case utils.StoreDriverSQLite:
		dialector = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", cfg.Driver)
	}

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if cfg.Debug {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if utils.StoreDriver(cfg.Driver) == utils.StoreDriverSQLite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	s := &SQLStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("SQL store ready", "driver", cfg.Driver)
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&surveyRow{}, &responseRow{}, &readingRow{}, &settingRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := db.Exec(openCodeIndex).Error; err != nil {
		return fmt.Errorf("failed to create open code index: %w", err)
	}
	seed := settingRow{ID: models.SettingsID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *SQLStore) ListSurveys(ctx context.Context) ([]*models.Survey, error) {
	var rows []surveyRow
	if err := s.db.WithContext(ctx).Order("code ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return surveysFromRows(rows)
}

func (s *SQLStore) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	var row surveyRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toModel()
}

func (s *SQLStore) ListSurveysByCode(ctx context.Context, code int) ([]*models.Survey, error) {
	var rows []surveyRow
	if err := s.db.WithContext(ctx).Where("code = ?", code).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return surveysFromRows(rows)
}

func (s *SQLStore) SaveSurvey(ctx context.Context, sv *models.Survey) error {
	row, err := surveyToRow(sv)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	return translate(err)
}

func (s *SQLStore) ListAllResponses(ctx context.Context) ([]*models.Response, error) {
	return s.findResponses(s.db.WithContext(ctx))
}

func (s *SQLStore) ListResponses(ctx context.Context, surveyID string, generation int64) ([]*models.Response, error) {
	return s.findResponses(s.db.WithContext(ctx).
		Where("survey_id = ? AND generation = ?", surveyID, generation))
}

func (s *SQLStore) findResponses(q *gorm.DB) ([]*models.Response, error) {
	var rows []responseRow
	if err := q.Order("ts DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]*models.Response, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLStore) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	var row responseRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toModel()
}

func (s *SQLStore) FindResponseByKey(ctx context.Context, installationID, timestamp int64) (*models.Response, error) {
	var row responseRow
	err := s.db.WithContext(ctx).
		Where("installation_id = ? AND ts = ?", installationID, timestamp).
		First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return row.toModel()
}

func (s *SQLStore) CreateResponse(ctx context.Context, r *models.Response) error {
	row, err := responseToRow(r)
	if err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *SQLStore) SaveResponse(ctx context.Context, r *models.Response) error {
	row, err := responseToRow(r)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&responseRow{}).
		Where("id = ?", r.ID).
		Updates(map[string]interface{}{
			"survey_id":       row.SurveyID,
			"installation_id": row.InstallationID,
			"ts":              row.Timestamp,
			"answers":         row.Answers,
			"locationstamp":   row.Locationstamp,
			"generation":      row.Generation,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteResponses(ctx context.Context, surveyID string, generation int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("survey_id = ? AND generation < ?", surveyID, generation).
		Delete(&responseRow{})
	return result.RowsAffected, translate(result.Error)
}

func (s *SQLStore) ListReadings(ctx context.Context, surveyID string) ([]*models.Reading, error) {
	var rows []readingRow
	err := s.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("ts DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]*models.Reading, 0, len(rows))
	for _, row := range rows {
		out = append(out, &models.Reading{
			ID:             row.ID,
			SurveyID:       row.SurveyID,
			InstallationID: row.InstallationID,
			SensorID:       row.SensorID,
			Value:          row.Value,
			Timestamp:      row.Timestamp,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out, nil
}

func (s *SQLStore) CreateReadings(ctx context.Context, readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]readingRow, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, readingRow{
			ID:             r.ID,
			SurveyID:       r.SurveyID,
			InstallationID: r.InstallationID,
			SensorID:       r.SensorID,
			Value:          r.Value,
			Timestamp:      r.Timestamp,
			CreatedAt:      r.CreatedAt,
		})
	}
	return translate(s.db.WithContext(ctx).CreateInBatches(rows, 500).Error)
}

func (s *SQLStore) NextInstallationID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&settingRow{}).
			Where("id = ?", models.SettingsID).
			Update("next_installation_id", gorm.Expr("next_installation_id + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("settings row missing: %w", ErrNotFound)
		}
		var row settingRow
		if err := tx.Where("id = ?", models.SettingsID).First(&row).Error; err != nil {
			return err
		}
		next = row.NextInstallationID
		return nil
	})
	if err != nil {
		return 0, translate(err)
	}
	return next, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Row conversion

func surveyToRow(s *models.Survey) (surveyRow, error) {
	inputs, err := json.Marshal(s.Inputs)
	if err != nil {
		return surveyRow{}, fmt.Errorf("encode inputs: %w", err)
	}
	return surveyRow{
		ID:         s.ID,
		Code:       s.Code,
		Title:      s.Title,
		Status:     string(s.Status),
		StartDate:  s.StartDate,
		CampaignID: s.CampaignID,
		Inputs:     datatypes.JSON(inputs),
		Generation: s.Generation,
		UpdatedAt:  s.UpdatedAt,
	}, nil
}

func (row surveyRow) toModel() (*models.Survey, error) {
	s := &models.Survey{
		ID:         row.ID,
		Code:       row.Code,
		Title:      row.Title,
		Status:     models.SurveyStatus(row.Status),
		CampaignID: row.CampaignID,
		Generation: row.Generation,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.StartDate != nil {
		d := row.StartDate.UTC()
		s.StartDate = &d
	}
	if len(row.Inputs) > 0 {
		if err := json.Unmarshal(row.Inputs, &s.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs of survey %s: %w", row.ID, err)
		}
	}
	return s, nil
}

func surveysFromRows(rows []surveyRow) ([]*models.Survey, error) {
	out := make([]*models.Survey, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func responseToRow(r *models.Response) (responseRow, error) {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return responseRow{}, fmt.Errorf("encode answers: %w", err)
	}
	location, err := json.Marshal(r.Locationstamp)
	if err != nil {
		return responseRow{}, fmt.Errorf("encode locationstamp: %w", err)
	}
	return responseRow{
		ID:             r.ID,
		SurveyID:       r.SurveyID,
		InstallationID: r.InstallationID,
		Timestamp:      r.Timestamp,
		Answers:        datatypes.JSON(answers),
		Locationstamp:  datatypes.JSON(location),
		Generation:     r.Generation,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func (row responseRow) toModel() (*models.Response, error) {
	r := &models.Response{
		ID:             row.ID,
		SurveyID:       row.SurveyID,
		InstallationID: row.InstallationID,
		Timestamp:      row.Timestamp,
		Generation:     row.Generation,
		CreatedAt:      row.CreatedAt,
	}
	if len(row.Answers) > 0 {
		if err := json.Unmarshal(row.Answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of response %s: %w", row.ID, err)
		}
	}
	if len(row.Locationstamp) > 0 {
		if err := json.Unmarshal(row.Locationstamp, &r.Locationstamp); err != nil {
			return nil, fmt.Errorf("decode locationstamp of response %s: %w", row.ID, err)
		}
	}
	return r, nil
}
