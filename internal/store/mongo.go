package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/config"
	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	surveysCollection   = "surveys"
	responsesCollection = "responses"
	readingsCollection  = "readings"
	settingsCollection  = "settings"
)

type surveyDoc struct {
	ID         string                   `bson:"_id"`
	Code       int                      `bson:"code"`
	Title      string                   `bson:"title"`
	Status     string                   `bson:"status"`
	Open       bool                     `bson:"open"`
	StartDate  *time.Time               `bson:"start_date,omitempty"`
	CampaignID string                   `bson:"campaign_id,omitempty"`
	Inputs     []map[string]interface{} `bson:"inputs"`
	Generation int64                    `bson:"generation"`
	UpdatedAt  time.Time                `bson:"updated_at"`
}

type answerDoc struct {
	ID    int64       `bson:"id"`
	Value interface{} `bson:"value"`
}

type responseDoc struct {
	ID             string                 `bson:"_id"`
	SurveyID       string                 `bson:"survey_id"`
	InstallationID int64                  `bson:"installation_id"`
	Timestamp      int64                  `bson:"timestamp"`
	Answers        []answerDoc            `bson:"answers"`
	Locationstamp  map[string]interface{} `bson:"locationstamp,omitempty"`
	Generation     int64                  `bson:"generation"`
	CreatedAt      time.Time              `bson:"created_at"`
}

type readingDoc struct {
	ID             string    `bson:"_id"`
	SurveyID       string    `bson:"survey_id"`
	InstallationID int64     `bson:"installation_id"`
	SensorID       string    `bson:"sensor_id"`
	Value          float64   `bson:"value"`
	Timestamp      int64     `bson:"timestamp"`
	CreatedAt      time.Time `bson:"created_at"`
}

// MongoStore implements Store on MongoDB
type MongoStore struct {
	client    *mongo.Client
	surveys   *mongo.Collection
	responses *mongo.Collection
	readings  *mongo.Collection
	settings  *mongo.Collection
	logger    *logging.Logger
}

// NewMongoStore connects, ensures indexes and seeds the settings document
func NewMongoStore(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (*MongoStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:    client,
		surveys:   db.Collection(surveysCollection),
		responses: db.Collection(responsesCollection),
		readings:  db.Collection(readingsCollection),
		settings:  db.Collection(settingsCollection),
		logger:    logger,
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Mongo store ready", "database", cfg.Database)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.surveys.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}},
		Options: options.Index().
			SetName("open_code").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"open": true}),
	})
	if err != nil {
		return fmt.Errorf("failed to create survey code index: %w", err)
	}

	_, err = s.responses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "installation_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("dedup_key").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "survey_id", Value: 1}, {Key: "generation", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("survey_generation"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create response indexes: %w", err)
	}

	_, err = s.readings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "survey_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create reading index: %w", err)
	}

	_, err = s.settings.UpdateOne(ctx,
		bson.M{"_id": models.SettingsID},
		bson.M{"$setOnInsert": bson.M{"next_installation_id": int64(0)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

func translateMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *MongoStore) findSurveys(ctx context.Context, filter bson.M) ([]*models.Survey, error) {
	cursor, err := s.surveys.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "code", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, translateMongo(err)
	}
	var docs []surveyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Survey, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel())
	}
	return out, nil
}

func (s *MongoStore) ListSurveys(ctx context.Context) ([]*models.Survey, error) {
	return s.findSurveys(ctx, bson.M{})
}

func (s *MongoStore) GetSurvey(ctx context.Context, id string) (*models.Survey, error) {
	var doc surveyDoc
	if err := s.surveys.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListSurveysByCode(ctx context.Context, code int) ([]*models.Survey, error) {
	return s.findSurveys(ctx, bson.M{"code": code})
}

func (s *MongoStore) SaveSurvey(ctx context.Context, sv *models.Survey) error {
	doc := surveyToDoc(sv)
	_, err := s.surveys.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return translateMongo(err)
}

func (s *MongoStore) findResponses(ctx context.Context, filter bson.M) ([]*models.Response, error) {
	cursor, err := s.responses.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, translateMongo(err)
	}
	var docs []responseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Response, 0, len(docs))
	for i := range docs {
		r, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MongoStore) ListAllResponses(ctx context.Context) ([]*models.Response, error) {
	return s.findResponses(ctx, bson.M{})
}

func (s *MongoStore) ListResponses(ctx context.Context, surveyID string, generation int64) ([]*models.Response, error) {
	return s.findResponses(ctx, bson.M{"survey_id": surveyID, "generation": generation})
}

func (s *MongoStore) findResponse(ctx context.Context, filter bson.M) (*models.Response, error) {
	var doc responseDoc
	if err := s.responses.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateMongo(err)
	}
	return doc.toModel()
}

func (s *MongoStore) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	return s.findResponse(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindResponseByKey(ctx context.Context, installationID, timestamp int64) (*models.Response, error) {
	return s.findResponse(ctx, bson.M{"installation_id": installationID, "timestamp": timestamp})
}

func (s *MongoStore) CreateResponse(ctx context.Context, r *models.Response) error {
	_, err := s.responses.InsertOne(ctx, responseToDoc(r))
	return translateMongo(err)
}

func (s *MongoStore) SaveResponse(ctx context.Context, r *models.Response) error {
	result, err := s.responses.ReplaceOne(ctx, bson.M{"_id": r.ID}, responseToDoc(r))
	if err != nil {
		return translateMongo(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteResponses(ctx context.Context, surveyID string, generation int64) (int64, error) {
	result, err := s.responses.DeleteMany(ctx, bson.M{
		"survey_id":  surveyID,
		"generation": bson.M{"$lt": generation},
	})
	if err != nil {
		return 0, translateMongo(err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) ListReadings(ctx context.Context, surveyID string) ([]*models.Reading, error) {
	cursor, err := s.readings.Find(ctx, bson.M{"survey_id": surveyID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, translateMongo(err)
	}
	var docs []readingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*models.Reading, 0, len(docs))
	for _, d := range docs {
		out = append(out, &models.Reading{
			ID:             d.ID,
			SurveyID:       d.SurveyID,
			InstallationID: d.InstallationID,
			SensorID:       d.SensorID,
			Value:          d.Value,
			Timestamp:      d.Timestamp,
			CreatedAt:      d.CreatedAt,
		})
	}
	return out, nil
}

func (s *MongoStore) CreateReadings(ctx context.Context, readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(readings))
	for _, r := range readings {
		docs = append(docs, readingDoc{
			ID:             r.ID,
			SurveyID:       r.SurveyID,
			InstallationID: r.InstallationID,
			SensorID:       r.SensorID,
			Value:          r.Value,
			Timestamp:      r.Timestamp,
			CreatedAt:      r.CreatedAt,
		})
	}
	_, err := s.readings.InsertMany(ctx, docs)
	return translateMongo(err)
}

func (s *MongoStore) NextInstallationID(ctx context.Context) (int64, error) {
	var doc struct {
		Next int64 `bson:"next_installation_id"`
	}
	err := s.settings.FindOneAndUpdate(ctx,
		bson.M{"_id": models.SettingsID},
		bson.M{"$inc": bson.M{"next_installation_id": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, translateMongo(err)
	}
	return doc.Next, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Document conversion

func surveyToDoc(s *models.Survey) surveyDoc {
	inputs := make([]map[string]interface{}, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		inputs = append(inputs, map[string]interface{}(in))
	}
	return surveyDoc{
		ID:         s.ID,
		Code:       s.Code,
		Title:      s.Title,
		Status:     string(s.Status),
		Open:       !s.IsClosed(),
		StartDate:  s.StartDate,
		CampaignID: s.CampaignID,
		Inputs:     inputs,
		Generation: s.Generation,
		UpdatedAt:  s.UpdatedAt,
	}
}

func (d *surveyDoc) toModel() *models.Survey {
	s := &models.Survey{
		ID:         d.ID,
		Code:       d.Code,
		Title:      d.Title,
		Status:     models.SurveyStatus(d.Status),
		CampaignID: d.CampaignID,
		Generation: d.Generation,
		UpdatedAt:  d.UpdatedAt.UTC(),
		Inputs:     make([]models.Input, 0, len(d.Inputs)),
	}
	if d.StartDate != nil {
		t := d.StartDate.UTC()
		s.StartDate = &t
	}
	for _, in := range d.Inputs {
		s.Inputs = append(s.Inputs, models.Input(in))
	}
	return s
}

func responseToDoc(r *models.Response) responseDoc {
	answers := make([]answerDoc, 0, len(r.Answers))
	for _, a := range r.Answers {
		answers = append(answers, answerDoc{ID: a.ID, Value: a.Value.Interface()})
	}
	return responseDoc{
		ID:             r.ID,
		SurveyID:       r.SurveyID,
		InstallationID: r.InstallationID,
		Timestamp:      r.Timestamp,
		Answers:        answers,
		Locationstamp:  r.Locationstamp,
		Generation:     r.Generation,
		CreatedAt:      r.CreatedAt,
	}
}

func (d *responseDoc) toModel() (*models.Response, error) {
	r := &models.Response{
		ID:             d.ID,
		SurveyID:       d.SurveyID,
		InstallationID: d.InstallationID,
		Timestamp:      d.Timestamp,
		Locationstamp:  d.Locationstamp,
		Generation:     d.Generation,
		CreatedAt:      d.CreatedAt.UTC(),
		Answers:        make([]models.Answer, 0, len(d.Answers)),
	}
	for _, a := range d.Answers {
		v, err := models.AnswerValueFrom(a.Value)
		if err != nil {
			return nil, fmt.Errorf("decode answer %d of response %s: %w", a.ID, d.ID, err)
		}
		r.Answers = append(r.Answers, models.Answer{ID: a.ID, Value: v})
	}
	return r, nil
}
