package engine

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/oneprompteu/oneprompt/internal/dataframe"
)

// Result previews are bounded: tabular values show a head slice, arrays a
// short JSON prefix, everything else a capped textual rendering.
const (
	previewRows     = 10
	maxArrayPreview = 1000
	maxResultChars  = 5000
)

// resultKind is the closed set of result categories. Each kind has one
// formatter; there is no open-ended runtime type inspection beyond this
// classification.
type resultKind int

const (
	kindScalar resultKind = iota
	kindText
	kindArray
	kindTabular
	kindOther
)

func classifyResult(v any) resultKind {
	switch v.(type) {
	case *dataframe.DataFrame:
		return kindTabular
	case []any:
		return kindArray
	case string:
		return kindText
	case bool, int, int64, float64:
		return kindScalar
	default:
		return kindOther
	}
}

// formatResult renders a trailing-expression value for display, or nil when
// the program produced no displayable value.
func formatResult(v goja.Value) *string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	exported := v.Export()
	var out string
	switch classifyResult(exported) {
	case kindTabular:
		d := exported.(*dataframe.DataFrame)
		out = fmt.Sprintf("DataFrame(%d rows, %d columns):\n%s",
			d.NumRows(), d.NumColumns(), d.Head(previewRows).String())
	case kindArray:
		items := exported.([]any)
		out = fmt.Sprintf("Array(%d items):\n%s", len(items), clip(jsonPreview(items), maxArrayPreview))
	case kindText:
		out = clip(exported.(string), maxResultChars)
	case kindScalar:
		out = fmt.Sprint(exported)
	default:
		out = clip(jsonPreview(exported), maxResultChars)
	}
	return &out
}

func jsonPreview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
