package nfse

// Kind determines how a field is validated and rendered
type Kind int

const (
	KindText Kind = iota
	KindCNPJ
	KindUF
	KindDate
	KindMoney
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindCNPJ:
		return "cnpj"
	case KindUF:
		return "uf"
	case KindDate:
		return "date"
	case KindMoney:
		return "money"
	case KindBool:
		return "bool"
	default:
		return "text"
	}
}

// Field is one entry of the canonical field set
type Field struct {
	Name string
	Kind Kind

	str  func(*Record) *string
	num  func(*Record) *float64
	flag func(*Record) *bool
}

// Value returns the field's value on r as string, float64 or bool, or nil when absent
func (f Field) Value(r *Record) any {
	switch {
	case f.str != nil:
		if v := f.str(r); v != nil {
			return *v
		}
	case f.num != nil:
		if v := f.num(r); v != nil {
			return *v
		}
	case f.flag != nil:
		if v := f.flag(r); v != nil {
			return *v
		}
	}
	return nil
}

func textField(name string, kind Kind, get func(*Record) *string) Field {
	return Field{Name: name, Kind: kind, str: get}
}

func moneyField(name string, get func(*Record) *float64) Field {
	return Field{Name: name, Kind: KindMoney, num: get}
}

func boolField(name string, get func(*Record) *bool) Field {
	return Field{Name: name, Kind: KindBool, flag: get}
}

// canonicalFields is the canonical field set in default export order
var canonicalFields = []Field{
	textField("cnpj_prestador", KindCNPJ, func(r *Record) *string { return r.CNPJPrestador }),
	textField("razao_social_prestador", KindText, func(r *Record) *string { return r.RazaoSocialPrestador }),
	textField("uf_prestador", KindUF, func(r *Record) *string { return r.UFPrestador }),
	textField("municipio_prestador", KindText, func(r *Record) *string { return r.MunicipioPrestador }),
	textField("endereco_prestador", KindText, func(r *Record) *string { return r.EnderecoPrestador }),
	textField("numero_nota", KindText, func(r *Record) *string { return r.NumeroNota }),
	textField("serie", KindText, func(r *Record) *string { return r.Serie }),
	textField("data_emissao", KindDate, func(r *Record) *string { return r.DataEmissao }),
	textField("data_competencia", KindDate, func(r *Record) *string { return r.DataCompetencia }),
	moneyField("deducoes", func(r *Record) *float64 { return r.Deducoes }),
	textField("flag_personalizado_1", KindText, func(r *Record) *string { return r.FlagPersonalizado1 }),
	textField("codigo_interno_personalizado", KindText, func(r *Record) *string { return r.CodigoInternoPersonalizado }),
	moneyField("valor_bruto", func(r *Record) *float64 { return r.ValorBruto }),
	moneyField("descontos", func(r *Record) *float64 { return r.Descontos }),
	moneyField("base_calculo", func(r *Record) *float64 { return r.BaseCalculo }),
	moneyField("valor_iss", func(r *Record) *float64 { return r.ValorISS }),
	moneyField("aliquota_iss_percent", func(r *Record) *float64 { return r.AliquotaISSPercent }),
	moneyField("valor_liquido", func(r *Record) *float64 { return r.ValorLiquido }),
	moneyField("inss", func(r *Record) *float64 { return r.INSS }),
	boolField("iss_retido_flag", func(r *Record) *bool { return r.ISSRetidoFlag }),
	moneyField("valor_pis", func(r *Record) *float64 { return r.ValorPIS }),
	moneyField("valor_cofins", func(r *Record) *float64 { return r.ValorCOFINS }),
	moneyField("valor_csll", func(r *Record) *float64 { return r.ValorCSLL }),
	moneyField("valor_irrf", func(r *Record) *float64 { return r.ValorIRRF }),
	moneyField("outros", func(r *Record) *float64 { return r.Outros }),
	textField("codigo_servico", KindText, func(r *Record) *string { return r.CodigoServico }),
	textField("campo_reservado1", KindText, func(r *Record) *string { return r.CampoReservado1 }),
	textField("campo_reservado2", KindText, func(r *Record) *string { return r.CampoReservado2 }),
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(canonicalFields))
	for _, f := range canonicalFields {
		m[f.Name] = f
	}
	return m
}()

// Fields returns the canonical field set in default order
func Fields() []Field {
	out := make([]Field, len(canonicalFields))
	copy(out, canonicalFields)
	return out
}

// FieldByName looks up a canonical field
func FieldByName(name string) (Field, bool) {
	f, ok := fieldsByName[name]
	return f, ok
}
