package builder

import (
	"encoding/json"

	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/value"
)

// Hydrate decodes rows into T through their JSON form. Field mapping
// follows encoding/json struct tags.
func Hydrate[T any](rows []value.Document) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		data, err := value.Encode(row)
		if err != nil {
			return nil, err
		}
		var m T
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, dberr.Wrap(dberr.CodeSerialization, err, "hydrate row %d", i)
		}
		out = append(out, m)
	}
	return out, nil
}
