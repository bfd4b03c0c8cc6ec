package db

import (
	"encoding/json"
	"time"
)

// MonitoredResource maps drift.monitored_resources. One row per tracked
// URL; the stored fingerprint/embedding is the baseline for the next
// change-detection pass. Rows are soft-deactivated, never deleted.
type MonitoredResource struct {
	ResourceID          int64           `gorm:"column:resource_id;primaryKey;autoIncrement"`
	ResourceUUID        string          `gorm:"column:resource_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	CompanyID           string          `gorm:"column:company_id;type:text;not null;default:''"`
	Source              string          `gorm:"column:source;type:text;not null;default:web"`
	URL                 string          `gorm:"column:url;type:text;not null"`
	URLHash             []byte          `gorm:"column:url_hash;type:bytea;not null;unique"`
	Kind                string          `gorm:"column:kind;type:text;not null;default:article"`
	ExactHash           *string         `gorm:"column:exact_hash;type:text"`
	Simhash             *int64          `gorm:"column:simhash;type:bigint"`
	LastEmbedding       *string         `gorm:"column:last_embedding;type:vector(1024)"`
	SeenItemTitles      json.RawMessage `gorm:"column:seen_item_titles;type:jsonb"`
	LastCheckedAt       *time.Time      `gorm:"column:last_checked_at;type:timestamptz"`
	LastChangedAt       *time.Time      `gorm:"column:last_changed_at;type:timestamptz"`
	ConsecutiveFailures int             `gorm:"column:consecutive_failures;type:integer;not null;default:0"`
	Status              string          `gorm:"column:status;type:text;not null;default:active"`
	DeletedAt           *time.Time      `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt           time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (MonitoredResource) TableName() string { return "drift.monitored_resources" }

// ContextUnit maps drift.context_units: the enriched, persisted artifact.
// Immutable once created except for backfill of a missing embedding.
type ContextUnit struct {
	UnitID           int64           `gorm:"column:unit_id;primaryKey;autoIncrement"`
	UnitUUID         string          `gorm:"column:unit_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	CompanyID        string          `gorm:"column:company_id;type:text;not null;default:''"`
	SourceType       string          `gorm:"column:source_type;type:text;not null"`
	Source           string          `gorm:"column:source;type:text;not null"`
	ResourceID       *int64          `gorm:"column:resource_id;type:bigint"`
	Title            string          `gorm:"column:title;type:text;not null"`
	Summary          string          `gorm:"column:summary;type:text;not null;default:''"`
	Tags             json.RawMessage `gorm:"column:tags;type:jsonb"`
	Category         string          `gorm:"column:category;type:text;not null;default:general"`
	AtomicStatements json.RawMessage `gorm:"column:atomic_statements;type:jsonb"`
	Language         string          `gorm:"column:language;type:text;not null;default:und"`
	MessageID        *string         `gorm:"column:message_id;type:text"`
	SourceMetadata   json.RawMessage `gorm:"column:source_metadata;type:jsonb"`
	RawText          string          `gorm:"column:raw_text;type:text;not null;default:''"`
	Embedding        *string         `gorm:"column:embedding;type:vector(1024)"`
	EmbeddingModel   *string         `gorm:"column:embedding_model;type:text"`
	DeletedAt        *time.Time      `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ContextUnit) TableName() string { return "drift.context_units" }

// CheckEvent maps drift.check_events: one audit row per change
// classification for a monitored resource.
type CheckEvent struct {
	CheckEventID       int64     `gorm:"column:check_event_id;primaryKey;autoIncrement"`
	CheckEventUUID     string    `gorm:"column:check_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ResourceID         int64     `gorm:"column:resource_id;type:bigint;not null"`
	ChangeType         string    `gorm:"column:change_type;type:text;not null"`
	DetectionTier      int       `gorm:"column:detection_tier;type:integer;not null"`
	SimilarityScore    *float64  `gorm:"column:similarity_score;type:double precision"`
	RequiresProcessing bool      `gorm:"column:requires_processing;type:boolean;not null"`
	UnitID             *int64    `gorm:"column:unit_id;type:bigint"`
	Outcome            string    `gorm:"column:outcome;type:text;not null;default:''"`
	CreatedAt          time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (CheckEvent) TableName() string { return "drift.check_events" }

func autoMigrateModels() []any {
	return []any{
		&MonitoredResource{},
		&ContextUnit{},
		&CheckEvent{},
	}
}
