package nfse

import (
	"strconv"
	"strings"
	"time"
)

// TXTSeparator delimits fields in the delimited-text export
const TXTSeparator = ";"

const filenameStamp = "20060102_1504"

// TXTFilename names the delimited-text artifact exported at t
func TXTFilename(t time.Time) string {
	return "servicos_tomados_" + t.Format(filenameStamp) + ".txt"
}

// XLSXFilename names the tabular report exported at t
func XLSXFilename(t time.Time) string {
	return "servicos_tomados_relatorio_tributos_" + t.Format(filenameStamp) + ".xlsx"
}

// BuildTXT renders one line per record with the schema's fields in order
func BuildTXT(records []*Record, schema Schema, locale DecimalLocale) string {
	lines := make([]string, 0, len(records))
	cols := make([]string, len(schema))
	for _, r := range records {
		for i, name := range schema {
			cols[i] = renderTXTField(r, name, locale)
		}
		lines = append(lines, strings.Join(cols, TXTSeparator))
	}
	return strings.Join(lines, "\n")
}

func renderTXTField(r *Record, name string, locale DecimalLocale) string {
	f, ok := FieldByName(name)
	if !ok {
		return ""
	}
	switch v := f.Value(r).(type) {
	case nil:
		return ""
	case float64:
		return FormatMoney(v, locale)
	case bool:
		return strconv.FormatBool(v)
	case string:
		if f.Kind == KindCNPJ {
			return MaskCNPJ(v)
		}
		return v
	}
	return ""
}
