package arbiter

import (
	"math"
	"strings"
)

// weightRule maps name keywords to an external-market weight
type weightRule struct {
	keywords []string
	weight   float64
}

// Checked in order; the first rule with a matching keyword wins.
var weightRules = []weightRule{
	{[]string{"serviço", "servico", "service", "instalação", "instalacao", "installation", "manutenção", "manutencao", "maintenance"}, 0.1},
	{[]string{"software", "licença", "licenca", "license"}, 0.7},
	{[]string{"cabo", "cable", "mouse", "rato", "teclado", "keyboard"}, 0.2},
	{[]string{"especializado", "specialized", "médico", "medico", "medical", "industrial"}, 0.9},
}

const defaultExternalWeight = 0.5

// HeuristicWeight estimates how reasonable it is to source an item abroad.
// Local services score low, portable software high.
func HeuristicWeight(text string) float64 {
	lower := strings.ToLower(text)
	for _, rule := range weightRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return round2(rule.weight)
			}
		}
	}
	return defaultExternalWeight
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
