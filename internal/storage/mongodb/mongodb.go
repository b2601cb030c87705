package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"resumehub/internal/domain/models"
	"resumehub/internal/storage"
)

type Storage struct {
	client    *mongo.Client
	database  *mongo.Database
	users     *mongo.Collection
	infos     *mongo.Collection
	tokens    *mongo.Collection
	resumes   *mongo.Collection
	histories *mongo.Collection
	counters  *mongo.Collection
}

type userDoc struct {
	ID        int64     `bson:"_id"`
	Email     *string   `bson:"email,omitempty"`
	PassHash  []byte    `bson:"pass_hash,omitempty"`
	ClientID  *string   `bson:"client_id,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type infoDoc struct {
	UserID int64  `bson:"_id"`
	Name   string `bson:"name"`
	Age    int    `bson:"age"`
	Gender string `bson:"gender"`
}

type tokenDoc struct {
	UserID    int64     `bson:"_id"`
	Token     string    `bson:"refresh_token"`
	IP        string    `bson:"ip"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type resumeDoc struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type historyDoc struct {
	UserID       int64     `bson:"user_id"`
	ChangedField string    `bson:"changed_field"`
	OldValue     string    `bson:"old_value"`
	NewValue     string    `bson:"new_value"`
	CreatedAt    time.Time `bson:"created_at"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New creates a new MongoDB storage instance and sets up indexes.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:    client,
		database:  db,
		users:     db.Collection("users"),
		infos:     db.Collection("user_infos"),
		tokens:    db.Collection("token_storage"),
		resumes:   db.Collection("resumes"),
		histories: db.Collection("user_histories"),
		counters:  db.Collection("counters"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	// users.email unique, sparse because client-id accounts have no email
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return fmt.Errorf("users.email index: %w", err)
	}

	// users.client_id unique, sparse for the same reason
	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return fmt.Errorf("users.client_id index: %w", err)
	}

	// resumes.user_id for list/ownership lookups
	_, err = s.resumes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("resumes.user_id index: %w", err)
	}

	// user_histories.user_id
	_, err = s.histories.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("user_histories.user_id index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// SaveUser saves a new account with its profile and returns the user ID.
// If the profile insert fails the account doc is removed again, so a
// half-created user is never left visible to sign-in.
func (s *Storage) SaveUser(ctx context.Context, email string, passHash []byte, clientID string, info models.UserInfo) (int64, error) {
	const op = "storage.mongodb.SaveUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	now := time.Now()
	doc := userDoc{
		ID:        id,
		PassHash:  passHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email != "" {
		doc.Email = &email
	}
	if clientID != "" {
		doc.ClientID = &clientID
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	infoIns := infoDoc{
		UserID: id,
		Name:   info.Name,
		Age:    info.Age,
		Gender: info.Gender,
	}
	if _, err := s.infos.InsertOne(ctx, infoIns); err != nil {
		_, _ = s.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongodb.UserByEmail"
	return s.findUser(ctx, op, bson.D{{Key: "email", Value: email}})
}

func (s *Storage) UserByClientID(ctx context.Context, clientID string) (*models.User, error) {
	const op = "storage.mongodb.UserByClientID"
	return s.findUser(ctx, op, bson.D{{Key: "client_id", Value: clientID}})
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.mongodb.UserByID"
	return s.findUser(ctx, op, bson.D{{Key: "_id", Value: userID}})
}

func (s *Storage) findUser(ctx context.Context, op string, filter bson.D) (*models.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:        doc.ID,
		PassHash:  doc.PassHash,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.Email != nil {
		user.Email = *doc.Email
	}
	if doc.ClientID != nil {
		user.ClientID = *doc.ClientID
	}
	return user, nil
}

func (s *Storage) UserInfo(ctx context.Context, userID int64) (*models.UserInfo, error) {
	const op = "storage.mongodb.UserInfo"

	var doc infoDoc
	err := s.infos.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserInfoNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.UserInfo{
		UserID: doc.UserID,
		Name:   doc.Name,
		Age:    doc.Age,
		Gender: doc.Gender,
	}, nil
}

// UpdateUserInfo replaces the profile and appends one history doc per
// changed field.
func (s *Storage) UpdateUserInfo(ctx context.Context, info models.UserInfo, histories []models.UserHistory) error {
	const op = "storage.mongodb.UpdateUserInfo"

	result, err := s.infos.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: info.UserID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: info.Name},
			{Key: "age", Value: info.Age},
			{Key: "gender", Value: info.Gender},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserInfoNotFound)
	}

	if len(histories) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(histories))
	now := time.Now()
	for _, h := range histories {
		docs = append(docs, historyDoc{
			UserID:       h.UserID,
			ChangedField: h.ChangedField,
			OldValue:     h.OldValue,
			NewValue:     h.NewValue,
			CreatedAt:    now,
		})
	}
	if _, err := s.histories.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("%s: history: %w", op, err)
	}
	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, userID int64) (*models.RefreshToken, error) {
	const op = "storage.mongodb.RefreshToken"

	var doc tokenDoc
	err := s.tokens.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokenModel(doc), nil
}

// SaveRefreshToken inserts the per-user record; the _id is the user ID, so
// racing creators collide on the duplicate key and only one insert wins.
func (s *Storage) SaveRefreshToken(ctx context.Context, userID int64, token string, ip string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.SaveRefreshToken"

	now := time.Now()
	doc := tokenDoc{
		UserID:    userID,
		Token:     token,
		IP:        ip,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.tokens.InsertOne(ctx, doc); err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokenModel(doc), nil
}

// RotateRefreshToken swaps the token in place with a single update,
// preserving ip and created_at.
func (s *Storage) RotateRefreshToken(ctx context.Context, userID int64, token string) (*models.RefreshToken, error) {
	const op = "storage.mongodb.RotateRefreshToken"

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc tokenDoc
	err := s.tokens.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refresh_token", Value: token},
			{Key: "updated_at", Value: time.Now()},
		}}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokenModel(doc), nil
}

func (s *Storage) SaveResume(ctx context.Context, userID int64, title, content string) (int64, error) {
	const op = "storage.mongodb.SaveResume"

	id, err := s.nextID(ctx, "resumes")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	now := time.Now()
	doc := resumeDoc{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Content:   content,
		Status:    models.StatusApply,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.resumes.InsertOne(ctx, doc); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (s *Storage) Resumes(ctx context.Context, orderDesc bool) ([]models.Resume, error) {
	const op = "storage.mongodb.Resumes"

	order := 1
	if orderDesc {
		order = -1
	}
	cursor, err := s.resumes.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: order}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var docs []resumeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	names, err := s.authorNames(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resumes := make([]models.Resume, 0, len(docs))
	for _, doc := range docs {
		resumes = append(resumes, resumeModel(doc, names[doc.UserID]))
	}
	return resumes, nil
}

func (s *Storage) Resume(ctx context.Context, resumeID int64) (*models.Resume, error) {
	const op = "storage.mongodb.Resume"

	var doc resumeDoc
	err := s.resumes.FindOne(ctx, bson.D{{Key: "_id", Value: resumeID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrResumeNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	names, err := s.authorNames(ctx, []resumeDoc{doc})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resume := resumeModel(doc, names[doc.UserID])
	return &resume, nil
}

func (s *Storage) UpdateResume(ctx context.Context, resumeID int64, title, content, status string) error {
	const op = "storage.mongodb.UpdateResume"

	result, err := s.resumes.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: resumeID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "title", Value: title},
			{Key: "content", Value: content},
			{Key: "status", Value: status},
			{Key: "updated_at", Value: time.Now()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrResumeNotFound)
	}
	return nil
}

func (s *Storage) DeleteResume(ctx context.Context, resumeID int64) error {
	const op = "storage.mongodb.DeleteResume"

	result, err := s.resumes.DeleteOne(ctx, bson.D{{Key: "_id", Value: resumeID}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrResumeNotFound)
	}
	return nil
}

// authorNames resolves user IDs to profile names for resume listings.
func (s *Storage) authorNames(ctx context.Context, docs []resumeDoc) (map[int64]string, error) {
	ids := make([]int64, 0, len(docs))
	seen := make(map[int64]struct{}, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.UserID]; ok {
			continue
		}
		seen[doc.UserID] = struct{}{}
		ids = append(ids, doc.UserID)
	}
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	cursor, err := s.infos.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, err
	}
	var infos []infoDoc
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(infos))
	for _, info := range infos {
		names[info.UserID] = info.Name
	}
	return names, nil
}

func tokenModel(doc tokenDoc) *models.RefreshToken {
	return &models.RefreshToken{
		UserID:    doc.UserID,
		Token:     doc.Token,
		IP:        doc.IP,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func resumeModel(doc resumeDoc, authorName string) models.Resume {
	return models.Resume{
		ID:         doc.ID,
		UserID:     doc.UserID,
		AuthorName: authorName,
		Title:      doc.Title,
		Content:    doc.Content,
		Status:     doc.Status,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
