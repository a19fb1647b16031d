package model

// Link maps one short code to its redirect target. Code is the primary key;
// URL and CreatedAt are written once at creation. VisitCount only ever moves
// through an atomic increment issued by the click accounting pipeline.
type Link struct {
	Code       string `json:"short_code" db:"code" gorm:"primaryKey;size:32"`
	URL        string `json:"original_url" db:"url" gorm:"type:text;not null"`
	CreatedAt  int64  `json:"created_at" db:"created_at" gorm:"not null;index"`
	VisitCount int64  `json:"visit_count" db:"visit_count" gorm:"not null;index"`
}

// Field names a counter column that KeyStore implementations may increment.
type Field string

// FieldVisitCount is the only incrementable field.
const FieldVisitCount Field = "visit_count"

// Summary aggregates totals across every stored link.
type Summary struct {
	TotalLinks  int64 `json:"total_links"`
	TotalVisits int64 `json:"total_visits"`
}

// HourlyCounts holds the number of links created in each UTC hour of the
// day, index 0 being 00:00-00:59.
type HourlyCounts [24]int64
