// Package topics tags user input against the fixed taxonomy of learning
// paths using fuzzy keyword matching.
package topics

import "github.com/docent-ai/docent/pkg/textnorm"

// Path identifies one learning path in the closed taxonomy.
type Path int

const (
	CalculoIncentivo Path = iota
	LancamentosIncentivo
	ControlesSuplementares

	numPaths
)

var pathNames = [numPaths]string{
	CalculoIncentivo:       "Cálculo do Incentivo",
	LancamentosIncentivo:   "Lançamentos do Incentivo",
	ControlesSuplementares: "Controles Suplementares",
}

// String returns the display name of the learning path.
func (p Path) String() string {
	if p < 0 || p >= numPaths {
		return "unknown"
	}
	return pathNames[p]
}

// rawKeywords binds each path to its ordered keyword phrases. Order matters:
// the matcher stops at the first keyword that clears the word threshold.
var rawKeywords = [numPaths][]string{
	CalculoIncentivo: {
		"calculo", "saldo", "apuracao", "saldo devedor",
	},
	LancamentosIncentivo: {
		"lancamento", "deducao", "codigo proprio", "taxa de administracao",
		"taxa de adm", "taxa do feef", "feef",
	},
	ControlesSuplementares: {
		"icms", "imposto sobre operacoes relativas a circulacao de mercadorias",
		"identificacao e correcao", "calculo", "diferenca", "recolhimento",
	},
}

// pathKeywords holds the normalized keyword table, built once at load time.
var pathKeywords [numPaths][]string

func init() {
	for p, kws := range rawKeywords {
		normalized := make([]string, 0, len(kws))
		for _, kw := range kws {
			normalized = append(normalized, textnorm.Normalize(kw))
		}
		pathKeywords[p] = normalized
	}
}

// All returns every path in taxonomy declaration order.
func All() []Path {
	paths := make([]Path, 0, numPaths)
	for p := Path(0); p < numPaths; p++ {
		paths = append(paths, p)
	}
	return paths
}

// Keywords returns the normalized keyword phrases bound to the path, in
// their defined order.
func (p Path) Keywords() []string {
	if p < 0 || p >= numPaths {
		return nil
	}
	return pathKeywords[p]
}
