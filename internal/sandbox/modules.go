package sandbox

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/oneprompteu/oneprompt/internal/dataframe"
)

// Core module loaders. Each builds a plain object of host functions; goja
// converts arguments via reflection and throws the error return as a JS
// exception.

func dataframeModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("fromCSV", func(text string) (*dataframe.DataFrame, error) {
		return dataframe.FromCSV([]byte(text))
	})
	obj.Set("fromRecords", func(records []map[string]any) (*dataframe.DataFrame, error) {
		return dataframe.FromRecords(records)
	})
	obj.Set("create", func(cols []string, rows [][]any) (*dataframe.DataFrame, error) {
		return dataframe.New(cols, rows)
	})
	return obj, nil
}

func csvModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("parse", func(text string) ([]map[string]any, error) {
		d, err := dataframe.FromCSV([]byte(text))
		if err != nil {
			return nil, err
		}
		return d.Records(), nil
	})
	obj.Set("stringify", func(records []map[string]any) (string, error) {
		d, err := dataframe.FromRecords(records)
		if err != nil {
			return "", err
		}
		return d.ToCSV()
	})
	return obj, nil
}

func statsModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("sum", func(xs []float64) float64 { return sum(xs) })
	obj.Set("mean", mean)
	obj.Set("median", func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, errors.New("stats: empty input")
		}
		s := append([]float64(nil), xs...)
		sort.Float64s(s)
		mid := len(s) / 2
		if len(s)%2 == 0 {
			return (s[mid-1] + s[mid]) / 2, nil
		}
		return s[mid], nil
	})
	obj.Set("variance", variance)
	obj.Set("stdev", func(xs []float64) (float64, error) {
		v, err := variance(xs)
		if err != nil {
			return 0, err
		}
		return math.Sqrt(v), nil
	})
	obj.Set("min", func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, errors.New("stats: empty input")
		}
		m := xs[0]
		for _, x := range xs[1:] {
			m = math.Min(m, x)
		}
		return m, nil
	})
	obj.Set("max", func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, errors.New("stats: empty input")
		}
		m := xs[0]
		for _, x := range xs[1:] {
			m = math.Max(m, x)
		}
		return m, nil
	})
	obj.Set("percentile", func(xs []float64, p float64) (float64, error) {
		if len(xs) == 0 {
			return 0, errors.New("stats: empty input")
		}
		if p < 0 || p > 100 {
			return 0, errors.New("stats: percentile must be in [0, 100]")
		}
		s := append([]float64(nil), xs...)
		sort.Float64s(s)
		rank := p / 100 * float64(len(s)-1)
		lo := int(math.Floor(rank))
		hi := int(math.Ceil(rank))
		if lo == hi {
			return s[lo], nil
		}
		frac := rank - float64(lo)
		return s[lo]*(1-frac) + s[hi]*frac, nil
	})
	return obj, nil
}

func stringsModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("title", func(s string) string {
		words := strings.Fields(s)
		for i, w := range words {
			// Decode the first rune rather than slicing a byte so words
			// starting with a multi-byte rune capitalize correctly.
			r, size := utf8.DecodeRuneInString(w)
			words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
		}
		return strings.Join(words, " ")
	})
	obj.Set("lines", func(s string) []string {
		return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	})
	obj.Set("wrap", func(s string, width int) (string, error) {
		if width <= 0 {
			return "", errors.New("strings: wrap width must be positive")
		}
		var b strings.Builder
		line := 0
		for _, w := range strings.Fields(s) {
			if line > 0 && line+1+len(w) > width {
				b.WriteByte('\n')
				line = 0
			} else if line > 0 {
				b.WriteByte(' ')
				line++
			}
			b.WriteString(w)
			line += len(w)
		}
		return b.String(), nil
	})
	obj.Set("join", func(parts []string, sep string) string {
		return strings.Join(parts, sep)
	})
	return obj, nil
}

func uuidModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("v4", func() string { return uuid.NewString() })
	obj.Set("isValid", func(s string) bool {
		_, err := uuid.Parse(s)
		return err == nil
	})
	return obj, nil
}

func hashModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("md5", func(s string) string {
		sum := md5.Sum([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	obj.Set("sha256", func(s string) string {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	obj.Set("sha512", func(s string) string {
		sum := sha512.Sum512([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	obj.Set("sha3_256", func(s string) string {
		sum := sha3.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	obj.Set("blake2b", func(s string) string {
		sum := blake2b.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	})
	return obj, nil
}

func base64Module(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("encode", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	})
	obj.Set("decode", func(s string) (string, error) {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", fmt.Errorf("base64: %w", err)
		}
		return string(b), nil
	})
	return obj, nil
}

func randomModule(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()
	obj.Set("float", func() float64 { return rand.Float64() })
	obj.Set("int", func(n int) (int, error) {
		if n <= 0 {
			return 0, errors.New("random: int bound must be positive")
		}
		return rand.IntN(n), nil
	})
	obj.Set("choice", func(items []any) (any, error) {
		if len(items) == 0 {
			return nil, errors.New("random: choice of empty list")
		}
		return items[rand.IntN(len(items))], nil
	})
	obj.Set("shuffle", func(items []any) []any {
		out := append([]any(nil), items...)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	})
	return obj, nil
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}

func mean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, errors.New("stats: empty input")
	}
	return sum(xs) / float64(len(xs)), nil
}

func variance(xs []float64) (float64, error) {
	if len(xs) < 2 {
		return 0, errors.New("stats: variance needs at least two values")
	}
	m, _ := mean(xs)
	var acc float64
	for _, x := range xs {
		d := x - m
		acc += d * d
	}
	return acc / float64(len(xs)-1), nil
}
