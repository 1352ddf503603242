// Package normalizer turns raw source rows into NormalizedDocuments.
//
// Normalization is heuristic: the table name decides the entity type, well
// known column names supply titles, descriptions and timestamps, and text-like
// columns feed the searchable text. Explicit field mappings, keyed by
// "systemId:tableName", override each heuristic.
package normalizer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/config"
	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/ajitpratap0/nebula-hub/pkg/models"
	hubstrings "github.com/ajitpratap0/nebula-hub/pkg/strings"
)

// Normalizer converts rows to documents. It is safe for concurrent use;
// mapping changes are visible to subsequent calls immediately.
type Normalizer struct {
	mu       sync.RWMutex
	mappings map[string]models.FieldMapping
	now      func() time.Time
}

// New creates a normalizer with no field mappings
func New() *Normalizer {
	return &Normalizer{
		mappings: make(map[string]models.FieldMapping),
		now:      time.Now,
	}
}

// AddMapping stores or replaces the mapping for its system table
func (n *Normalizer) AddMapping(m models.FieldMapping) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mappings[m.Key()] = m
}

// RemoveMapping deletes the mapping for a system table
func (n *Normalizer) RemoveMapping(systemID, tableName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.mappings, models.MappingKey(systemID, tableName))
}

// GetMapping returns the mapping for a system table
func (n *Normalizer) GetMapping(systemID, tableName string) (models.FieldMapping, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.mappings[models.MappingKey(systemID, tableName)]
	return m, ok
}

// Mappings returns every mapping ordered by key
func (n *Normalizer) Mappings() []models.FieldMapping {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]models.FieldMapping, 0, len(n.mappings))
	for _, m := range n.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// LoadMappingsFile adds every mapping from a YAML list
func (n *Normalizer) LoadMappingsFile(path string) (int, error) {
	var mappings []models.FieldMapping
	if err := config.LoadFile(path, &mappings); err != nil {
		return 0, err
	}
	for i, m := range mappings {
		if m.SystemID == "" || m.TableName == "" {
			return 0, errors.Newf(errors.ErrorTypeConfig, "mapping %d needs system_id and table_name", i)
		}
		if m.EntityType != "" && !m.EntityType.IsValid() {
			return 0, errors.Newf(errors.ErrorTypeConfig, "mapping %s has unknown entity type %q", m.Key(), m.EntityType)
		}
	}
	for _, m := range mappings {
		n.AddMapping(m)
	}
	return len(mappings), nil
}

// Normalize converts one row. schema may be nil.
func (n *Normalizer) Normalize(systemID, tableName string, row core.Row, schema *core.TableSchema) *models.NormalizedDocument {
	var mapping *models.FieldMapping
	if m, ok := n.GetMapping(systemID, tableName); ok {
		mapping = &m
	}

	entity := DetectEntityType(tableName)
	if mapping != nil && mapping.EntityType != "" {
		entity = mapping.EntityType
	}

	fields := fieldOrder(row, schema)
	pk, hasPK := primaryKeyValue(row, schema)

	doc := &models.NormalizedDocument{
		ID:             documentID(systemID, tableName, pk, hasPK),
		SystemID:       systemID,
		TableName:      tableName,
		EntityType:     entity,
		Title:          extractTitle(row, fields, tableName, pk, hasPK, mapping),
		Description:    ExtractDescription(row, mapping),
		SearchableText: buildSearchableText(row, fields, mapping),
		Tags:           GenerateTags(systemID, tableName, entity, row, mapping),
		Timestamp:      extractTimestamp(row, mapping),
		Author:         extractAuthor(row, mapping),
	}

	metadata := make(map[string]interface{}, len(row)+2)
	for k, v := range row {
		metadata[k] = v
	}
	metadata[models.MetadataNormalizedAt] = n.now().UTC().Format(time.RFC3339Nano)
	metadata[models.MetadataEntityType] = string(entity)
	doc.Metadata = metadata

	return doc
}

// NormalizeMany converts rows preserving their order
func (n *Normalizer) NormalizeMany(systemID, tableName string, rows []core.Row, schema *core.TableSchema) []*models.NormalizedDocument {
	docs := make([]*models.NormalizedDocument, len(rows))
	for i, row := range rows {
		docs[i] = n.Normalize(systemID, tableName, row, schema)
	}
	return docs
}

// ExtractTitle picks the document title for row
func ExtractTitle(row core.Row, tableName string, schema *core.TableSchema, mapping *models.FieldMapping) string {
	pk, hasPK := primaryKeyValue(row, schema)
	return extractTitle(row, fieldOrder(row, schema), tableName, pk, hasPK, mapping)
}

func extractTitle(row core.Row, fields []string, tableName, pk string, hasPK bool, mapping *models.FieldMapping) string {
	if mapping != nil {
		if s, ok := firstNonEmpty(row, mapping.TitleFields); ok {
			return hubstrings.Truncate(s, models.MaxTitleLength)
		}
	}
	if s, ok := firstNonEmpty(row, titleFields); ok {
		return hubstrings.Truncate(s, models.MaxTitleLength)
	}
	if hasPK {
		return hubstrings.Truncate(tableName+" #"+pk, models.MaxTitleLength)
	}
	for _, f := range fields {
		if s, ok := row[f].(string); ok && strings.TrimSpace(s) != "" {
			return hubstrings.Truncate(s, models.MaxTitleLength)
		}
	}
	return "Untitled"
}

// ExtractDescription picks the optional document description
func ExtractDescription(row core.Row, mapping *models.FieldMapping) *string {
	if mapping != nil {
		if s, ok := firstNonEmpty(row, mapping.DescriptionFields); ok {
			d := hubstrings.Truncate(s, models.MaxDescriptionLength)
			return &d
		}
	}
	if s, ok := firstNonEmpty(row, descriptionFields); ok {
		d := hubstrings.Truncate(s, models.MaxDescriptionLength)
		return &d
	}
	return nil
}

// BuildSearchableText concatenates the searchable values of row
func BuildSearchableText(row core.Row, schema *core.TableSchema, mapping *models.FieldMapping) string {
	return buildSearchableText(row, fieldOrder(row, schema), mapping)
}

func buildSearchableText(row core.Row, fields []string, mapping *models.FieldMapping) string {
	candidates := fields
	whitelisted := mapping != nil && len(mapping.SearchableFields) > 0
	if whitelisted {
		candidates = mapping.SearchableFields
	}

	parts := make([]string, 0, len(candidates))
	for _, f := range candidates {
		if !whitelisted && !IsSearchableField(f) {
			continue
		}
		v, ok := row[f]
		if !ok {
			continue
		}
		if s, ok := Stringify(v); ok {
			parts = append(parts, s)
		}
	}
	return hubstrings.JoinLimited(parts, " ", models.MaxSearchableTextLength)
}

// IsSearchableField reports whether a column name looks like human text
// and not like a credential
func IsSearchableField(name string) bool {
	lower := strings.ToLower(name)
	if hubstrings.ContainsAny(lower, sensitiveFragments) {
		return false
	}
	return hubstrings.ContainsAny(lower, textFragments)
}

// GenerateTags emits system, table, type, status and custom tags in that order
func GenerateTags(systemID, tableName string, entity models.EntityType, row core.Row, mapping *models.FieldMapping) []string {
	tags := []string{"system:" + systemID, "table:" + tableName}
	if entity != models.EntityUnknown {
		tags = append(tags, "type:"+string(entity))
	}
	if mapping == nil {
		return tags
	}

	if mapping.StatusField != "" {
		if s, ok := nonEmpty(row[mapping.StatusField]); ok {
			tags = append(tags, "status:"+s)
		}
	}

	if mapping.TagsField != "" {
		switch v := row[mapping.TagsField].(type) {
		case nil:
		case string:
			tags = append(tags, hubstrings.SplitAny(v, tagSeparators)...)
		case []string:
			tags = append(tags, v...)
		case []interface{}:
			for _, item := range v {
				if s, ok := Stringify(item); ok {
					tags = append(tags, s)
				}
			}
		default:
			if s, ok := Stringify(v); ok {
				tags = append(tags, s)
			}
		}
	}
	return tags
}

func extractTimestamp(row core.Row, mapping *models.FieldMapping) *time.Time {
	candidates := timestampFields
	if mapping != nil && mapping.TimestampField != "" {
		candidates = append([]string{mapping.TimestampField}, timestampFields...)
	}
	for _, f := range candidates {
		v, ok := row[f]
		if !ok || v == nil {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			return &t
		}
	}
	return nil
}

func extractAuthor(row core.Row, mapping *models.FieldMapping) *string {
	if mapping == nil || mapping.AuthorField == "" {
		return nil
	}
	if s, ok := nonEmpty(row[mapping.AuthorField]); ok {
		return &s
	}
	return nil
}

func firstNonEmpty(row core.Row, fields []string) (string, bool) {
	for _, f := range fields {
		if s, ok := nonEmpty(row[f]); ok {
			return s, true
		}
	}
	return "", false
}

// fieldOrder lists schema columns present in row, then the remaining keys sorted
func fieldOrder(row core.Row, schema *core.TableSchema) []string {
	order := make([]string, 0, len(row))
	seen := make(map[string]bool, len(row))
	if schema != nil {
		for _, col := range schema.Columns {
			if _, ok := row[col.Name]; ok && !seen[col.Name] {
				order = append(order, col.Name)
				seen[col.Name] = true
			}
		}
	}
	rest := make([]string, 0, len(row)-len(order))
	for k := range row {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// primaryKeyValue reads the first declared primary key, or "id" without one
func primaryKeyValue(row core.Row, schema *core.TableSchema) (string, bool) {
	field := "id"
	if pk := schema.PrimaryKey(); pk != "" {
		field = pk
	}
	return nonEmpty(row[field])
}

func documentID(systemID, tableName, pk string, hasPK bool) string {
	if !hasPK {
		pk = "unknown"
	}
	return systemID + ":" + tableName + ":" + pk
}
