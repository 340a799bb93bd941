package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/teranos/quotesearch/search"
)

// Bounds applied by Normalize
const (
	MinStrictness = 0
	MaxStrictness = 5
)

// ExtraURL is an explicit site to search instead of the supplier directory
type ExtraURL struct {
	URL         string             `json:"url"`
	MarketScale search.MarketScale `json:"market_scale"`
}

// UnmarshalJSON accepts a bare URL string or an object using either
// market_scale or the frontend's escala_mercado label.
func (u *ExtraURL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = ExtraURL{URL: s, MarketScale: search.MarketLocal}
		return nil
	}

	var wire struct {
		URL           string `json:"url"`
		MarketScale   string `json:"market_scale"`
		EscalaMercado string `json:"escala_mercado"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	scale := wire.MarketScale
	if scale == "" {
		scale = wire.EscalaMercado
	}
	*u = ExtraURL{URL: wire.URL, MarketScale: search.ParseMarketScale(scale)}
	return nil
}

// Params describes one search job
type Params struct {
	Term              string                 `json:"term"`
	ResultsPerSite    int                    `json:"results_per_site,omitempty"` // 0 = system default
	SupplierIDs       []int64                `json:"supplier_ids,omitempty"`
	ActorID           int64                  `json:"actor_id"`
	Quantity          int                    `json:"quantity"`
	CostBenefit       map[string]interface{} `json:"cost_benefit,omitempty"`
	Strictness        int                    `json:"strictness"`
	ExternalWeight    float64                `json:"external_weight"`
	Refine            bool                   `json:"refine"`
	Persist           bool                   `json:"persist"`
	MissingItemID     string                 `json:"missing_item_id,omitempty"`
	ExtraURLs         []ExtraURL             `json:"extra_urls,omitempty"`
	MaxDiscoveryDepth int                    `json:"max_discovery_depth,omitempty"` // 0 = configured default
}

// paramsWire accepts the canonical names and the quotation frontend's aliases
type paramsWire struct {
	Term              *string                `json:"term"`
	Termo             *string                `json:"termo"`
	ResultsPerSite    *int                   `json:"results_per_site"`
	NumResultados     *int                   `json:"numResultados"`
	SupplierIDs       []int64                `json:"supplier_ids"`
	Fornecedores      []int64                `json:"fornecedores"`
	ActorID           *int64                 `json:"actor_id"`
	UsuarioID         *int64                 `json:"usuarioId"`
	Quantity          *int                   `json:"quantity"`
	Quantidade        *int                   `json:"quantidade"`
	CostBenefit       map[string]interface{} `json:"cost_benefit"`
	CustoBeneficio    map[string]interface{} `json:"custo_beneficio"`
	Strictness        *float64               `json:"strictness"`
	Rigor             *float64               `json:"rigor"`
	ExternalWeight    *float64               `json:"external_weight"`
	PonderacaoWebLLM  *float64               `json:"ponderacao_web_llm"`
	Refine            *bool                  `json:"refine"`
	Refinamento       *bool                  `json:"refinamento"`
	Persist           *bool                  `json:"persist"`
	Salvamento        *bool                  `json:"salvamento"`
	MissingItemID     json.RawMessage        `json:"missing_item_id"`
	FaltanteID        json.RawMessage        `json:"faltante_id"`
	ExtraURLs         []ExtraURL             `json:"extra_urls"`
	URLsAdd           []ExtraURL             `json:"urls_add"`
	MaxDiscoveryDepth *int                   `json:"max_discovery_depth"`
}

// UnmarshalJSON decodes params, preferring canonical names over aliases
func (p *Params) UnmarshalJSON(data []byte) error {
	var w paramsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Params{
		Term:           pick(w.Term, w.Termo, ""),
		ResultsPerSite: pick(w.ResultsPerSite, w.NumResultados, 0),
		SupplierIDs:    w.SupplierIDs,
		ActorID:        pick(w.ActorID, w.UsuarioID, 0),
		Quantity:       pick(w.Quantity, w.Quantidade, 0),
		CostBenefit:    w.CostBenefit,
		ExternalWeight: pick(w.ExternalWeight, w.PonderacaoWebLLM, 0),
		Refine:         pick(w.Refine, w.Refinamento, false),
		Persist:        pick(w.Persist, w.Salvamento, false),
		ExtraURLs:      w.ExtraURLs,
	}
	if out.SupplierIDs == nil {
		out.SupplierIDs = w.Fornecedores
	}
	if out.CostBenefit == nil {
		out.CostBenefit = w.CustoBeneficio
	}
	if out.ExtraURLs == nil {
		out.ExtraURLs = w.URLsAdd
	}
	if s := pick(w.Strictness, w.Rigor, 0); s != 0 {
		out.Strictness = int(math.Round(s))
	}
	if w.MaxDiscoveryDepth != nil {
		out.MaxDiscoveryDepth = *w.MaxDiscoveryDepth
	}
	id := w.MissingItemID
	if len(id) == 0 || string(id) == "null" {
		id = w.FaltanteID
	}
	out.MissingItemID = rawID(id)

	*p = out
	return nil
}

// Normalize applies defaults and clamps
func (p *Params) Normalize() {
	p.Term = strings.TrimSpace(p.Term)
	if p.Quantity < 1 {
		p.Quantity = 1
	}
	if p.ActorID <= 0 {
		p.ActorID = 1
	}
	if p.ResultsPerSite < 0 {
		p.ResultsPerSite = 0
	}
	if p.MaxDiscoveryDepth < 0 {
		p.MaxDiscoveryDepth = 0
	}
	if p.Strictness < MinStrictness {
		p.Strictness = MinStrictness
	}
	if p.Strictness > MaxStrictness {
		p.Strictness = MaxStrictness
	}
	if math.IsNaN(p.ExternalWeight) || p.ExternalWeight < 0 {
		p.ExternalWeight = 0
	}
	if p.ExternalWeight > 1 {
		p.ExternalWeight = 1
	}

	urls := make([]ExtraURL, 0, len(p.ExtraURLs))
	for _, u := range p.ExtraURLs {
		u.URL = strings.TrimSpace(u.URL)
		if u.URL == "" {
			continue
		}
		if u.MarketScale == "" {
			u.MarketScale = search.MarketLocal
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		urls = nil
	}
	p.ExtraURLs = urls
}

// Clone returns a copy sharing no slices or maps with p
func (p Params) Clone() Params {
	p.SupplierIDs = slices.Clone(p.SupplierIDs)
	p.ExtraURLs = slices.Clone(p.ExtraURLs)
	if p.CostBenefit != nil {
		p.CostBenefit = cloneValue(p.CostBenefit).(map[string]interface{})
	}
	return p
}

// cloneValue copies decoded JSON containers recursively
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func pick[T any](primary, alias *T, def T) T {
	if primary != nil {
		return *primary
	}
	if alias != nil {
		return *alias
	}
	return def
}

// rawID renders a JSON string or number as a plain string
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
