package docstore

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Общая семантика записи и выборки для обеих реализаций. Postgres применяет
// операции здесь же, внутри транзакции с блокировкой строки, а не в SQL:
// одна реализация семантики вместо двух.

// normalizeValue приводит значение к JSON-типам через кодек, чтобы сравнение
// значений не зависело от того, пришли они из структуры или из jsonb.
func normalizeValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v, nil
	case time.Time:
		t := v.(time.Time)
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	m, err := DataFrom(struct {
		V any `json:"v"`
	}{V: v})
	if err != nil {
		return nil, err
	}
	return m["v"], nil
}

// Normalize приводит тело документа к JSON-типам и разрешает ServerTimestamp
// значением now. Вызывается на каждой записи.
func Normalize(data map[string]any, now time.Time) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch v.(type) {
		case serverTimestampOp:
			out[k] = now.UTC().Format(time.RFC3339Nano)
			continue
		case incrementOp, arrayUnionOp, arrayRemoveOp, deleteFieldOp:
			return nil, fmt.Errorf("docstore: atomic op not allowed in full document body (field %q)", k)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("docstore: field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// ApplyUpdates применяет карту обновлений (значения и атомарные операции,
// ключи с точкой адресуют вложенные поля) к телу документа.
func ApplyUpdates(data map[string]any, fields map[string]any, now time.Time) error {
	for path, v := range fields {
		parent, leaf, err := walkPath(data, path)
		if err != nil {
			return err
		}
		switch op := v.(type) {
		case deleteFieldOp:
			delete(parent, leaf)
		case serverTimestampOp:
			parent[leaf] = now.UTC().Format(time.RFC3339Nano)
		case incrementOp:
			cur, _ := parent[leaf].(float64)
			parent[leaf] = cur + float64(op.by)
		case arrayUnionOp:
			arr, _ := parent[leaf].([]any)
			for _, raw := range op.values {
				nv, err := normalizeValue(raw)
				if err != nil {
					return fmt.Errorf("docstore: field %q: %w", path, err)
				}
				if !containsValue(arr, nv) {
					arr = append(arr, nv)
				}
			}
			parent[leaf] = arr
		case arrayRemoveOp:
			arr, _ := parent[leaf].([]any)
			kept := arr[:0]
			for _, el := range arr {
				removed := false
				for _, raw := range op.values {
					nv, err := normalizeValue(raw)
					if err != nil {
						return fmt.Errorf("docstore: field %q: %w", path, err)
					}
					if valuesEqual(el, nv) {
						removed = true
						break
					}
				}
				if !removed {
					kept = append(kept, el)
				}
			}
			parent[leaf] = append([]any{}, kept...)
		default:
			nv, err := normalizeValue(v)
			if err != nil {
				return fmt.Errorf("docstore: field %q: %w", path, err)
			}
			parent[leaf] = nv
		}
	}
	return nil
}

// walkPath спускается по точечному пути, создавая промежуточные объекты.
func walkPath(data map[string]any, path string) (parent map[string]any, leaf string, err error) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("docstore: path %q crosses non-object field %q", path, p)
		}
		cur = m
	}
	return cur, parts[len(parts)-1], nil
}

func lookupPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func containsValue(arr []any, v any) bool {
	for _, el := range arr {
		if valuesEqual(el, v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if af, ok := a.(float64); ok {
		if bf, ok := b.(float64); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// Matches проверяет документ против всех фильтров запроса (AND).
func Matches(data map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false, fmt.Errorf("docstore: filter %q: %w", f.Field, err)
		}
		got, ok := lookupPath(data, f.Field)
		switch f.Op {
		case OpEqual:
			if !ok || !valuesEqual(got, want) {
				return false, nil
			}
		case OpArrayContains:
			arr, _ := got.([]any)
			if !containsValue(arr, want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unsupported filter op %q", f.Op)
		}
	}
	return true, nil
}

// SortAndLimit упорядочивает результат и применяет лимит. Строки в формате
// RFC3339 сравниваются как время: лексикографический порядок RFC3339Nano
// ломается на отброшенных нулях в наносекундах.
func SortAndLimit(docs []Document, q Query) []Document {
	if q.OrderField != "" {
		sortDocs(docs, q.OrderField, q.Desc)
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

func sortDocs(docs []Document, field string, desc bool) {
	less := func(i, j int) bool {
		a, _ := lookupPath(docs[i].Data, field)
		b, _ := lookupPath(docs[j].Data, field)
		c := compareValues(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	}
	// insertion sort keeps equal keys in stable id order after the pre-sort
	// done by callers; collections here are small.
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
		}
	}
}

func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case !av && bv:
				return -1
			case av && !bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
				if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
					switch {
					case at.Before(bt):
						return -1
					case at.After(bt):
						return 1
					}
					return 0
				}
			}
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
