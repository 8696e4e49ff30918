package db

import (
	"time"

	"gorm.io/datatypes"
)

// Company maps companies. Industry feeds the industry trend scope.
type Company struct {
	CompanyID int64     `gorm:"column:company_id;primaryKey;autoIncrement:false" json:"company_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Industry  *string   `gorm:"column:industry;index" json:"industry,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

// Signal maps signals. Hash is the exact-duplicate fingerprint.
type Signal struct {
	SignalID          int64          `gorm:"column:signal_id;primaryKey;autoIncrement" json:"signal_id"`
	SignalUUID        string         `gorm:"column:signal_uuid;size:36;not null;uniqueIndex" json:"signal_uuid"`
	CompanyID         int64          `gorm:"column:company_id;not null;index:idx_signals_company_gathered,priority:1" json:"company_id"`
	Title             string         `gorm:"column:title;not null" json:"title"`
	SourceURL         *string        `gorm:"column:source_url" json:"source_url,omitempty"`
	CanonicalURL      *string        `gorm:"column:canonical_url" json:"canonical_url,omitempty"`
	Citations         datatypes.JSON `gorm:"column:citations" json:"citations"`
	Hash              string         `gorm:"column:hash;size:64;not null;uniqueIndex" json:"hash"`
	Type              string         `gorm:"column:type;not null;default:other" json:"type"`
	Sentiment         *string        `gorm:"column:sentiment" json:"sentiment,omitempty"`
	RelevanceScore    *float64       `gorm:"column:relevance_score" json:"relevance_score,omitempty"`
	NoveltyScore      int            `gorm:"column:novelty_score;not null" json:"novelty_score"`
	PriorityScore     int            `gorm:"column:priority_score;not null" json:"priority_score"`
	PriorityLabel     string         `gorm:"column:priority_label;not null" json:"priority_label"`
	PriorityReason    string         `gorm:"column:priority_reason;not null" json:"priority_reason"`
	RecommendedFormat string         `gorm:"column:recommended_format;not null" json:"recommended_format"`
	FormatReason      string         `gorm:"column:format_reason;not null" json:"format_reason"`
	Themes            datatypes.JSON `gorm:"column:themes" json:"themes"`
	Language          string         `gorm:"column:language;not null;default:und" json:"language"`
	PublishedAt       *time.Time     `gorm:"column:published_at;index" json:"published_at,omitempty"`
	GatheredAt        time.Time      `gorm:"column:gathered_at;not null;index:idx_signals_company_gathered,priority:2" json:"gathered_at"`
	NeedsDateReview   bool           `gorm:"column:needs_date_review;not null;default:false" json:"needs_date_review"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (Signal) TableName() string { return "signals" }

// SignalDedupEvent maps signal_dedup_events, one audit row per evaluated candidate.
type SignalDedupEvent struct {
	EventID         int64     `gorm:"column:event_id;primaryKey;autoIncrement" json:"event_id"`
	RunUUID         string    `gorm:"column:run_uuid;size:36;not null;index" json:"run_uuid"`
	CompanyID       int64     `gorm:"column:company_id;not null;index" json:"company_id"`
	Hash            string    `gorm:"column:hash;size:64;not null" json:"hash"`
	Title           string    `gorm:"column:title;not null" json:"title"`
	Decision        string    `gorm:"column:decision;not null" json:"decision"`
	Method          string    `gorm:"column:method;not null" json:"method"`
	MatchedSignalID *int64    `gorm:"column:matched_signal_id" json:"matched_signal_id,omitempty"`
	SignalID        *int64    `gorm:"column:signal_id" json:"signal_id,omitempty"`
	Similarity      *float64  `gorm:"column:similarity" json:"similarity,omitempty"`
	NoveltyScore    *int      `gorm:"column:novelty_score" json:"novelty_score,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (SignalDedupEvent) TableName() string { return "signal_dedup_events" }

// Entity maps entities. CanonicalKey is "{type}:{normalized name}".
type Entity struct {
	EntityID     int64         `gorm:"column:entity_id;primaryKey;autoIncrement" json:"entity_id"`
	EntityUUID   string        `gorm:"column:entity_uuid;size:36;not null;uniqueIndex" json:"entity_uuid"`
	Name         string        `gorm:"column:name;not null" json:"name"`
	Type         string        `gorm:"column:type;not null" json:"type"`
	CanonicalKey string        `gorm:"column:canonical_key;not null;uniqueIndex" json:"canonical_key"`
	CreatedAt    time.Time     `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"column:updated_at;not null" json:"updated_at"`
	Aliases      []EntityAlias `gorm:"foreignKey:EntityID;references:EntityID" json:"aliases,omitempty"`
}

func (Entity) TableName() string { return "entities" }

// EntityAlias maps entity_aliases. AliasKey is unique across all entities.
type EntityAlias struct {
	AliasID   int64     `gorm:"column:alias_id;primaryKey;autoIncrement" json:"alias_id"`
	EntityID  int64     `gorm:"column:entity_id;not null;index" json:"entity_id"`
	Alias     string    `gorm:"column:alias;not null" json:"alias"`
	AliasKey  string    `gorm:"column:alias_key;not null;uniqueIndex" json:"alias_key"`
	Source    string    `gorm:"column:source;not null;default:''" json:"source"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (EntityAlias) TableName() string { return "entity_aliases" }

// SignalEntity maps signal_entities mention links.
type SignalEntity struct {
	SignalID  int64     `gorm:"column:signal_id;primaryKey;autoIncrement:false" json:"signal_id"`
	EntityID  int64     `gorm:"column:entity_id;primaryKey;autoIncrement:false;index" json:"entity_id"`
	Mention   string    `gorm:"column:mention;not null;default:''" json:"mention"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (SignalEntity) TableName() string { return "signal_entities" }

// MetricSnapshot maps metric_snapshots. Rows are append-only.
type MetricSnapshot struct {
	SnapshotID   int64          `gorm:"column:snapshot_id;primaryKey;autoIncrement" json:"snapshot_id"`
	RunUUID      string         `gorm:"column:run_uuid;size:36;not null;index" json:"run_uuid"`
	ScopeType    string         `gorm:"column:scope_type;not null;index:idx_metric_snapshots_scope,priority:1" json:"scope_type"`
	ScopeID      string         `gorm:"column:scope_id;not null;index:idx_metric_snapshots_scope,priority:2" json:"scope_id"`
	Period       string         `gorm:"column:period;not null" json:"period"`
	CurrentCount int            `gorm:"column:current_count;not null" json:"current_count"`
	PrevCount    *int           `gorm:"column:prev_count" json:"prev_count"`
	DeltaPercent *float64       `gorm:"column:delta_percent" json:"delta_percent"`
	Distribution datatypes.JSON `gorm:"column:distribution" json:"distribution"`
	CapturedAt   time.Time      `gorm:"column:captured_at;not null;index" json:"captured_at"`
}

func (MetricSnapshot) TableName() string { return "metric_snapshots" }

// Trend maps trends. Magnitude is NULL for emerging scopes.
type Trend struct {
	TrendID      int64          `gorm:"column:trend_id;primaryKey;autoIncrement" json:"trend_id"`
	TrendUUID    string         `gorm:"column:trend_uuid;size:36;not null;uniqueIndex" json:"trend_uuid"`
	RunUUID      string         `gorm:"column:run_uuid;size:36;not null;index" json:"run_uuid"`
	ScopeType    string         `gorm:"column:scope_type;not null;index:idx_trends_scope,priority:1" json:"scope_type"`
	ScopeID      string         `gorm:"column:scope_id;not null;index:idx_trends_scope,priority:2" json:"scope_id"`
	Themes       datatypes.JSON `gorm:"column:themes" json:"themes"`
	SignalTypes  datatypes.JSON `gorm:"column:signal_types" json:"signal_types"`
	TimeWindow   string         `gorm:"column:time_window;not null;default:30d" json:"time_window"`
	Direction    string         `gorm:"column:direction;not null" json:"direction"`
	Magnitude    *float64       `gorm:"column:magnitude" json:"magnitude"`
	Confidence   int            `gorm:"column:confidence;not null" json:"confidence"`
	Explanation  string         `gorm:"column:explanation;not null" json:"explanation"`
	CurrentCount int            `gorm:"column:current_count;not null" json:"current_count"`
	PrevCount    int            `gorm:"column:prev_count;not null" json:"prev_count"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Trend) TableName() string { return "trends" }

func autoMigrateModels() []any {
	return []any{
		&Company{},
		&Signal{},
		&SignalDedupEvent{},
		&Entity{},
		&EntityAlias{},
		&SignalEntity{},
		&MetricSnapshot{},
		&Trend{},
	}
}
