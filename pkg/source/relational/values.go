package relational

import (
	"fmt"
	"math/big"
	"net/netip"
	"strconv"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ajitpratap0/edgesql/pkg/schema"
	"github.com/ajitpratap0/edgesql/pkg/source"
	"github.com/ajitpratap0/edgesql/pkg/vector"
)

// pgValue converts the values pgx decodes into row values.
func pgValue(v any) any {
	switch val := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return val
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case netip.Prefix:
		return val.String()
	case netip.Addr:
		return val.String()
	case *big.Int:
		return val.String()
	case []any:
		if vals, err := vector.Parse(val); err == nil {
			return vals
		}
	case fmt.Stringer:
		return val.String()
	}
	return jsonText(v)
}

// sqlValue converts a database/sql scanned value. Drivers using the text
// protocol hand back []byte for most columns, so the declared kind decides
// how it is read.
func sqlValue(v any, ct schema.ColumnType, known bool) any {
	switch val := v.(type) {
	case nil, int64, float64, bool, time.Time:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		if val > 1<<63-1 {
			return strconv.FormatUint(val, 10)
		}
		return int64(val)
	case float32:
		return float64(val)
	case string:
		return fromText(val, ct, known)
	case []byte:
		if known && ct.Kind == schema.KindBlob {
			return val
		}
		if known && ct.Kind == schema.KindVector && !utf8.Valid(val) {
			if vals, err := vector.Decode(ct.Format, val); err == nil {
				return vals
			}
			return val
		}
		if !utf8.Valid(val) {
			return val
		}
		return fromText(string(val), ct, known)
	}
	return jsonText(v)
}

func fromText(s string, ct schema.ColumnType, known bool) any {
	if !known {
		return source.CoerceText(s)
	}
	switch ct.Kind {
	case schema.KindInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case schema.KindReal:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func jsonText(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
