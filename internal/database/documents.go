package database

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/models"
	"github.com/thereayou/cipherchat/internal/services"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// createdAt хранится отдельной колонкой, остальные поля в jsonb
const createdAtField = "createdAt"

type jsonFields map[string]any

func (f jsonFields) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *jsonFields) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = jsonFields{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonFields: unsupported type %T", src)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

type documentRecord struct {
	ID         string     `gorm:"type:varchar(36);primaryKey"`
	Collection string     `gorm:"type:varchar(64);not null;index:idx_documents_collection_created,priority:1"`
	Fields     jsonFields `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time  `gorm:"not null;index:idx_documents_collection_created,priority:2"`
}

func (documentRecord) TableName() string {
	return "documents"
}

func (r documentRecord) toDocument() models.Document {
	fields := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[createdAtField] = r.CreatedAt
	return models.Document{ID: r.ID, Fields: fields}
}

func withoutCreatedAt(fields map[string]any) jsonFields {
	out := make(jsonFields, len(fields))
	for k, v := range fields {
		if k == createdAtField {
			continue
		}
		out[k] = v
	}
	return out
}

func (d *Database) Create(ctx context.Context, collection string, fields map[string]any) (models.Document, error) {
	rec := documentRecord{
		ID:         uuid.NewString(),
		Collection: collection,
		Fields:     withoutCreatedAt(fields),
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.Document{}, err
	}

	d.notify(ctx, services.WriteTopics(collection, rec.Fields))
	return rec.toDocument(), nil
}

func (d *Database) Get(ctx context.Context, collection, id string) (models.Document, error) {
	var rec documentRecord
	err := d.db.WithContext(ctx).
		Where("id = ? AND collection = ?", id, collection).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Document{}, services.ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, err
	}
	return rec.toDocument(), nil
}

// Update сливает поля с уже сохраненными. createdAt не меняется.
func (d *Database) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := withoutCreatedAt(fields).Value()
	if err != nil {
		return err
	}

	topics := d.topicsOf(ctx, collection, id)
	res := d.db.WithContext(ctx).
		Model(&documentRecord{}).
		Where("id = ? AND collection = ?", id, collection).
		Update("fields", gorm.Expr("fields || ?::jsonb", patch))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrDocumentNotFound
	}

	d.notify(ctx, topics)
	return nil
}

func (d *Database) Delete(ctx context.Context, collection, id string) error {
	topics := d.topicsOf(ctx, collection, id)
	res := d.db.WithContext(ctx).
		Where("id = ? AND collection = ?", id, collection).
		Delete(&documentRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrDocumentNotFound
	}

	d.notify(ctx, topics)
	return nil
}

// Query выполняет запрос с фильтрами на равенство, сортировкой и лимитом
func (d *Database) Query(ctx context.Context, q services.Query) ([]models.Document, error) {
	tx := d.db.WithContext(ctx).Where("collection = ?", q.Collection)

	for _, f := range q.Where {
		tx = tx.Where("fields ->> ? = ?", f.Field, fmt.Sprint(f.Value))
	}

	switch q.OrderBy {
	case "":
	case createdAtField:
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: q.Descending})
	default:
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		tx = tx.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "fields ->> ? " + dir,
			Vars: []interface{}{q.OrderBy},
		}})
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var records []documentRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec.toDocument())
	}
	return docs, nil
}

// Subscribe перезапускает запрос на каждое изменение в его теме
func (d *Database) Subscribe(ctx context.Context, q services.Query) (services.Subscription, error) {
	sub, err := d.hub.Subscribe(ctx, services.Topic(q), func(ctx context.Context) ([]models.Document, error) {
		return d.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Объединение двух массивов делается одним UPDATE, поэтому
// параллельные вызовы не теряют значения друг друга.
const arrayUnionSQL = `UPDATE documents SET fields = jsonb_set(fields, ARRAY[@field]::text[], (
	SELECT COALESCE(jsonb_agg(v), '[]'::jsonb) FROM (
		SELECT jsonb_array_elements(CASE WHEN jsonb_typeof(fields -> @field) = 'array' THEN fields -> @field ELSE '[]'::jsonb END) AS v
		UNION
		SELECT jsonb_array_elements(@values::jsonb)
	) merged
), true)
WHERE id = @id AND collection = @collection`

func (d *Database) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}

	topics := d.topicsOf(ctx, collection, id)
	res := d.db.WithContext(ctx).Exec(arrayUnionSQL, map[string]interface{}{
		"field":      field,
		"values":     string(encoded),
		"id":         id,
		"collection": collection,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrDocumentNotFound
	}

	d.notify(ctx, topics)
	return nil
}

// topicsOf темы для записи в существующий документ. Комната сообщения
// не меняется, поэтому ее читают до записи.
func (d *Database) topicsOf(ctx context.Context, collection, id string) []string {
	if collection != services.CollectionMessages {
		return []string{collection}
	}
	var rec documentRecord
	err := d.db.WithContext(ctx).
		Select("fields").
		Where("id = ? AND collection = ?", id, collection).
		Take(&rec).Error
	if err != nil {
		return []string{collection}
	}
	return services.WriteTopics(collection, rec.Fields)
}

func (d *Database) notify(ctx context.Context, topics []string) {
	for _, topic := range topics {
		if err := d.notifier.Notify(ctx, topic); err != nil {
			logNotifyError(err, topic)
		}
	}
}

// Запись уже сохранена, поэтому ошибка уведомления только логируется
func logNotifyError(err error, topic string) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"component": "database",
		"topic":     topic,
	}).Warn("Failed to notify subscribers")
}
