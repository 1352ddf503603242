package sqlquery

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
)

// builder accumulates SQL text and bound arguments
type builder struct {
	d    Dialect
	sb   strings.Builder
	args []interface{}
}

func (b *builder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (b *builder) watermark(col string, since time.Time) string {
	if b.d.Watermark == nil {
		return col + " > " + b.bind(since)
	}
	// reserve the placeholder index before the dialect picks the bound value
	b.args = append(b.args, nil)
	idx := len(b.args)
	cond, v := b.d.Watermark(col, b.d.Placeholder(idx), since)
	b.args[idx-1] = v
	return cond
}

// BuildSelect renders a parameterized SELECT for opts.
// Where keys are emitted in sorted order so the statement is deterministic.
func BuildSelect(d Dialect, opts core.FetchOptions) (string, []interface{}, error) {
	if strings.TrimSpace(opts.Table) == "" {
		return "", nil, errors.New(errors.ErrorTypeValidation, "table name is required")
	}
	if opts.Limit != nil && *opts.Limit < 0 {
		return "", nil, errors.New(errors.ErrorTypeValidation, "limit must not be negative")
	}
	if opts.Offset != nil && *opts.Offset < 0 {
		return "", nil, errors.New(errors.ErrorTypeValidation, "offset must not be negative")
	}

	b := &builder{d: d}

	b.sb.WriteString("SELECT ")
	if len(opts.Columns) == 0 {
		b.sb.WriteString("*")
	} else {
		b.sb.WriteString(d.ColumnList(opts.Columns))
	}
	b.sb.WriteString(" FROM ")
	b.sb.WriteString(d.QualifiedName(opts.Table))

	conditions := buildConditions(b, opts)
	if len(conditions) > 0 {
		b.sb.WriteString(" WHERE ")
		b.sb.WriteString(strings.Join(conditions, " AND "))
	}

	if err := writeOrderBy(b, opts); err != nil {
		return "", nil, err
	}
	writePagination(b, opts)

	return b.sb.String(), b.args, nil
}

func buildConditions(b *builder, opts core.FetchOptions) []string {
	keys := make([]string, 0, len(opts.Where))
	for k := range opts.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		col := b.d.Column(k)
		v := opts.Where[k]

		if v == nil {
			conditions = append(conditions, col+" IS NULL")
			continue
		}
		if items, ok := listValues(v); ok {
			if len(items) == 0 {
				conditions = append(conditions, "1=0")
				continue
			}
			placeholders := make([]string, len(items))
			for i, item := range items {
				placeholders[i] = b.bind(item)
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
			continue
		}
		conditions = append(conditions, col+" = "+b.bind(v))
	}

	if opts.Incremental() {
		conditions = append(conditions, b.watermark(b.d.Column(opts.SinceColumn), *opts.Since))
	}
	return conditions
}

// listValues expands slice and array values for IN conditions. []byte is a scalar.
func listValues(v interface{}) ([]interface{}, bool) {
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func writeOrderBy(b *builder, opts core.FetchOptions) error {
	if len(opts.OrderBy) == 0 {
		// OFFSET ... FETCH requires an ORDER BY clause
		if b.d.Pagination == OffsetFetch && (opts.Limit != nil || opts.Offset != nil) {
			b.sb.WriteString(" ORDER BY (SELECT NULL)")
		}
		return nil
	}

	terms := make([]string, len(opts.OrderBy))
	for i, o := range opts.OrderBy {
		if strings.TrimSpace(o.Column) == "" {
			return errors.New(errors.ErrorTypeValidation, "order by column is required")
		}
		dir := o.Direction.Normalize()
		if dir == "" {
			return errors.Newf(errors.ErrorTypeValidation, "invalid sort direction %q", o.Direction)
		}
		terms[i] = b.d.Column(o.Column) + " " + string(dir)
	}
	b.sb.WriteString(" ORDER BY ")
	b.sb.WriteString(strings.Join(terms, ", "))
	return nil
}

func writePagination(b *builder, opts core.FetchOptions) {
	if opts.Limit == nil && opts.Offset == nil {
		return
	}

	if b.d.Pagination == OffsetFetch {
		offset := 0
		if opts.Offset != nil {
			offset = *opts.Offset
		}
		b.sb.WriteString(" OFFSET " + b.bind(offset) + " ROWS")
		if opts.Limit != nil {
			b.sb.WriteString(" FETCH NEXT " + b.bind(*opts.Limit) + " ROWS ONLY")
		}
		return
	}

	if opts.Limit != nil {
		b.sb.WriteString(" LIMIT " + b.bind(*opts.Limit))
	} else {
		b.sb.WriteString(" LIMIT " + b.d.UnboundedLimit)
	}
	if opts.Offset != nil {
		b.sb.WriteString(" OFFSET " + b.bind(*opts.Offset))
	}
}
