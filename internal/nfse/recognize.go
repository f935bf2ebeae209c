package nfse

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Window sizes, in runes, around a label match
const (
	moneyLookBehind = 80
	moneyWindow     = 220
	dateWindow      = 120
	cnpjWindow      = 120
	numberWindow    = 60
	codeWindow      = 80
)

// pageSeparator joins page texts before recognition
const pageSeparator = "\n\n"

var (
	reMoney     = regexp.MustCompile(`(?:R\$\s*)?\d{1,3}(?:\.\d{3})*,\d{2}`)
	reDate      = regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}\b`)
	reCNPJ      = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)
	reNumber    = regexp.MustCompile(`\b\d{1,15}\b`)
	reCode      = regexp.MustCompile(`\b\d{1,2}(?:\.\d{1,2}){1,3}\b`)
	reISSRetido = regexp.MustCompile(`(?i)iss\s*retido|retido\s*pelo\s*tomador`)
)

// labels are tried in order; the first pattern with any match anchors the search
var (
	labelEmissao      = patterns(`data\s*de\s*emiss[aã]o`, `emiss[aã]o`)
	labelCompetencia  = patterns(`compet[eê]ncia`)
	labelValorServico = patterns(`valor\s*(?:do\s*)?servi[cç]o?s?`, `total\s*do\s*servi[cç]o`)
	labelDeducoes     = patterns(`dedu[cç][oõ]es`)
	labelBase         = patterns(`base\s*de\s*c[aá]lculo`)
	labelAliquota     = patterns(`al[ií]quota\s*iss`, `iss\s*\(%\)`, `aliquota\s*issqn`)
	// RE2 has no look-ahead: "valor iss" not followed by "p"
	labelValorISS      = patterns(`valor\s*iss(?:[^p]|$)`, `iss\s*\(r\$\)`, `issqn\s*valor`)
	labelPIS           = patterns(`pis(?:/pasep)?`)
	labelCOFINS        = patterns(`cofins`)
	labelCSLL          = patterns(`csll`)
	labelIRRF          = patterns(`irrf|ir\s*rf|imposto\s*de\s*renda\s*retido`)
	labelINSS          = patterns(`inss`)
	labelValorLiquido  = patterns(`valor\s*l[ií]quido`)
	labelDescontos     = patterns(`desconto`)
	labelCNPJ          = patterns(`cnpj`)
	labelNumeroNota    = patterns(`n[uú]mero\s*da\s*(?:nota|nfs-?e)`, `n[º°o]\.?\s*da\s*(?:nota|nfs-?e)`, `nota\s*fiscal\s*n[º°o]\.?`)
	labelCodigoServico = patterns(`c[oó]digo\s*d[oe]\s*servi[cç]o`, `item\s*da\s*lista`)
)

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Recognizer turns the text of a document into records by searching for
// values near known labels. Missing labels or values leave fields nil.
type Recognizer struct {
	newID func() string
}

// NewRecognizer creates a Recognizer that assigns random UUIDs to records
func NewRecognizer() *Recognizer {
	return &Recognizer{newID: uuid.NewString}
}

// NewRecognizerWithIDs creates a Recognizer with a custom ID source for testing
func NewRecognizerWithIDs(newID func() string) *Recognizer {
	return &Recognizer{newID: newID}
}

// Recognize joins the page texts and extracts one record from them
func (r *Recognizer) Recognize(pages []string, origin Origin, fileID string) []*Record {
	text := strings.Join(pages, pageSeparator)

	rec := &Record{
		ID:     r.newID(),
		FileID: fileID,
		Origin: origin,
	}

	rec.ValorBruto = findMoney(text, labelValorServico)
	rec.Deducoes = findMoney(text, labelDeducoes)
	rec.BaseCalculo = findMoney(text, labelBase)
	rec.AliquotaISSPercent = findMoney(text, labelAliquota)
	rec.ValorISS = findMoney(text, labelValorISS)
	rec.ValorPIS = findMoney(text, labelPIS)
	rec.ValorCOFINS = findMoney(text, labelCOFINS)
	rec.ValorCSLL = findMoney(text, labelCSLL)
	rec.ValorIRRF = findMoney(text, labelIRRF)
	rec.INSS = findMoney(text, labelINSS)
	rec.ValorLiquido = findMoney(text, labelValorLiquido)
	rec.Descontos = findMoney(text, labelDescontos)

	rec.DataEmissao = findAfter(text, labelEmissao, reDate, dateWindow)
	rec.DataCompetencia = findAfter(text, labelCompetencia, reDate, dateWindow)

	rec.CNPJPrestador = findAfter(text, labelCNPJ, reCNPJ, cnpjWindow)
	rec.NumeroNota = findAfter(text, labelNumeroNota, reNumber, numberWindow)
	rec.CodigoServico = findAfter(text, labelCodigoServico, reCode, codeWindow)

	// never inferred false: absence of the phrase leaves the flag unknown
	if reISSRetido.MatchString(text) {
		retido := true
		rec.ISSRetidoFlag = &retido
	}

	return []*Record{rec}
}

// findLabel returns the byte offset of the first match of the first pattern that matches
func findLabel(text string, labels []*regexp.Regexp) (int, bool) {
	for _, re := range labels {
		if loc := re.FindStringIndex(text); loc != nil {
			return loc[0], true
		}
	}
	return 0, false
}

// findMoney searches a window around the label, starting before it, for a currency value
func findMoney(text string, labels []*regexp.Regexp) *float64 {
	at, ok := findLabel(text, labels)
	if !ok {
		return nil
	}
	m := reMoney.FindString(runeWindow(text, at, moneyLookBehind, moneyWindow))
	if m == "" {
		return nil
	}
	return ParseMoney(m)
}

// findAfter searches the size runes starting at the label for value
func findAfter(text string, labels []*regexp.Regexp, value *regexp.Regexp, size int) *string {
	at, ok := findLabel(text, labels)
	if !ok {
		return nil
	}
	m := value.FindString(runeWindow(text, at, 0, size))
	if m == "" {
		return nil
	}
	return &m
}

// runeWindow returns up to length runes of text starting before runes ahead of byte offset at
func runeWindow(text string, at, before, length int) string {
	start := at
	for i := 0; i < before && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := start
	for i := 0; i < length && end < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return text[start:end]
}
