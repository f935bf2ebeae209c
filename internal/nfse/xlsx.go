package nfse

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
)

// ReportSheet is the worksheet holding the withholding-tax report
const ReportSheet = "Tributos"

// ReportHeaders are the fixed columns of the tabular report
var ReportHeaders = []string{
	"Nota",
	"Prestador",
	"Municipio",
	"ISS",
	"IRRF",
	"INSS",
	"PIS",
	"COFINS",
	"CSLL",
	"BaseCalculo",
	"ValorBruto",
	"ValorLiquido",
	"ISSRetido",
}

var columnWidths = []struct {
	from, to string
	width    float64
}{
	{"A", "A", 12}, // nota
	{"B", "B", 40}, // prestador
	{"C", "C", 24}, // municipio
	{"D", "L", 14}, // amounts
}

// BuildXLSX renders the audit report. Its columns do not follow the user schema.
func BuildXLSX(records []*Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(ReportHeaders))
	for i, h := range ReportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, r := range records {
		row := []any{
			textCell(r.NumeroNota),
			textCell(r.RazaoSocialPrestador),
			textCell(r.MunicipioPrestador),
			moneyCell(r.ValorISS),
			moneyCell(r.ValorIRRF),
			moneyCell(r.INSS),
			moneyCell(r.ValorPIS),
			moneyCell(r.ValorCOFINS),
			moneyCell(r.ValorCSLL),
			moneyCell(r.BaseCalculo),
			moneyCell(r.ValorBruto),
			moneyCell(r.ValorLiquido),
			RetidoLabel(r.ISSRetidoFlag),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ReportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	for _, w := range columnWidths {
		if err := f.SetColWidth(ReportSheet, w.from, w.to, w.width); err != nil {
			return nil, fmt.Errorf("sizing columns %s:%s: %w", w.from, w.to, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// RetidoLabel renders the withholding flag for humans
func RetidoLabel(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "SIM"
	default:
		return "NÃO"
	}
}

func textCell(v *string) any {
	if v == nil {
		return ""
	}
	return *v
}

func moneyCell(v *float64) any {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return ""
	}
	return RoundHalfEven(*v, 2)
}
