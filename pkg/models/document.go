// Package models defines the canonical document produced by normalization
// and the per-table field mappings that steer it.
package models

import (
	"time"
)

// EntityType classifies what a table's rows represent
type EntityType string

// Entity types
const (
	EntityUser        EntityType = "user"
	EntityProduct     EntityType = "product"
	EntityOrder       EntityType = "order"
	EntityCustomer    EntityType = "customer"
	EntityTransaction EntityType = "transaction"
	EntityInvoice     EntityType = "invoice"
	EntityPayment     EntityType = "payment"
	EntityTicket      EntityType = "ticket"
	EntityArticle     EntityType = "article"
	EntityMessage     EntityType = "message"
	EntityLog         EntityType = "log"
	EntityUnknown     EntityType = "unknown"
)

var entityTypes = []EntityType{
	EntityUser, EntityProduct, EntityOrder, EntityCustomer, EntityTransaction,
	EntityInvoice, EntityPayment, EntityTicket, EntityArticle, EntityMessage,
	EntityLog, EntityUnknown,
}

// EntityTypes returns every entity type in declaration order
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// IsValid reports whether e belongs to the closed set
func (e EntityType) IsValid() bool {
	for _, t := range entityTypes {
		if t == e {
			return true
		}
	}
	return false
}

// Metadata keys added to NormalizedDocument.Metadata
const (
	MetadataNormalizedAt = "_normalized_at"
	MetadataEntityType   = "_entity_type"
)

// Length limits, counted in runes
const (
	MaxTitleLength          = 200
	MaxDescriptionLength    = 1000
	MaxSearchableTextLength = 10000
)

// NormalizedDocument is the canonical searchable form of one source row
type NormalizedDocument struct {
	ID             string                 `json:"id"`
	SystemID       string                 `json:"system_id"`
	TableName      string                 `json:"table_name"`
	EntityType     EntityType             `json:"entity_type"`
	Title          string                 `json:"title"`
	Description    *string                `json:"description,omitempty"`
	SearchableText string                 `json:"searchable_text"`
	Metadata       map[string]interface{} `json:"metadata"`
	Tags           []string               `json:"tags"`
	Timestamp      *time.Time             `json:"timestamp,omitempty"`
	Author         *string                `json:"author,omitempty"`
}

// FieldMapping overrides normalization heuristics for one system table.
// Empty fields fall back to heuristics.
type FieldMapping struct {
	SystemID          string     `yaml:"system_id" json:"system_id"`
	TableName         string     `yaml:"table_name" json:"table_name"`
	EntityType        EntityType `yaml:"entity_type,omitempty" json:"entity_type,omitempty"`
	TitleFields       []string   `yaml:"title_fields,omitempty" json:"title_fields,omitempty"`
	DescriptionFields []string   `yaml:"description_fields,omitempty" json:"description_fields,omitempty"`
	SearchableFields  []string   `yaml:"searchable_fields,omitempty" json:"searchable_fields,omitempty"`
	TimestampField    string     `yaml:"timestamp_field,omitempty" json:"timestamp_field,omitempty"`
	AuthorField       string     `yaml:"author_field,omitempty" json:"author_field,omitempty"`
	StatusField       string     `yaml:"status_field,omitempty" json:"status_field,omitempty"`
	TagsField         string     `yaml:"tags_field,omitempty" json:"tags_field,omitempty"`
}

// Key returns the cache key of the mapping
func (m FieldMapping) Key() string {
	return MappingKey(m.SystemID, m.TableName)
}

// MappingKey builds the "systemId:tableName" lookup key
func MappingKey(systemID, tableName string) string {
	return systemID + ":" + tableName
}
