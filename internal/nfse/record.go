package nfse

// Origin describes where a record was read from
type Origin struct {
	File string `json:"file"`
	Page *int   `json:"page,omitempty"`
}

// Record is one recognized NFS-e tax entry. Every canonical field is optional;
// nil means the recognizer found no value. Errors and Warnings are filled by
// validation and extraction and never remove a value.
type Record struct {
	ID     string `json:"id"`
	FileID string `json:"file_id"`
	Origin Origin `json:"origin"`

	CNPJPrestador              *string  `json:"cnpj_prestador,omitempty"`
	RazaoSocialPrestador       *string  `json:"razao_social_prestador,omitempty"`
	UFPrestador                *string  `json:"uf_prestador,omitempty"`
	MunicipioPrestador         *string  `json:"municipio_prestador,omitempty"`
	EnderecoPrestador          *string  `json:"endereco_prestador,omitempty"`
	NumeroNota                 *string  `json:"numero_nota,omitempty"`
	Serie                      *string  `json:"serie,omitempty"`
	DataEmissao                *string  `json:"data_emissao,omitempty"`
	DataCompetencia            *string  `json:"data_competencia,omitempty"`
	Deducoes                   *float64 `json:"deducoes,omitempty"`
	FlagPersonalizado1         *string  `json:"flag_personalizado_1,omitempty"`
	CodigoInternoPersonalizado *string  `json:"codigo_interno_personalizado,omitempty"`
	ValorBruto                 *float64 `json:"valor_bruto,omitempty"`
	Descontos                  *float64 `json:"descontos,omitempty"`
	BaseCalculo                *float64 `json:"base_calculo,omitempty"`
	ValorISS                   *float64 `json:"valor_iss,omitempty"`
	AliquotaISSPercent         *float64 `json:"aliquota_iss_percent,omitempty"`
	ValorLiquido               *float64 `json:"valor_liquido,omitempty"`
	INSS                       *float64 `json:"inss,omitempty"`
	ISSRetidoFlag              *bool    `json:"iss_retido_flag,omitempty"`
	ValorPIS                   *float64 `json:"valor_pis,omitempty"`
	ValorCOFINS                *float64 `json:"valor_cofins,omitempty"`
	ValorCSLL                  *float64 `json:"valor_csll,omitempty"`
	ValorIRRF                  *float64 `json:"valor_irrf,omitempty"`
	Outros                     *float64 `json:"outros,omitempty"`
	CodigoServico              *string  `json:"codigo_servico,omitempty"`
	CampoReservado1            *string  `json:"campo_reservado1,omitempty"`
	CampoReservado2            *string  `json:"campo_reservado2,omitempty"`

	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
