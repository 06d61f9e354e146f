package capability

import "strings"

// Basis — на чём основан вывод о модальности.
type Basis int

const (
	// BasisHeuristic — догадка по имени модели.
	BasisHeuristic Basis = iota
	// BasisDeclared — теги модели из каталога.
	BasisDeclared
)

func (b Basis) String() string {
	if b == BasisDeclared {
		return "declared"
	}
	return "heuristic"
}

// Assessment — принимает ли модель аудио и откуда это известно.
type Assessment struct {
	Audio bool
	Basis Basis
}

// TagSource отдаёт заявленные теги модальностей модели (image, audio, video, any).
type TagSource interface {
	Lookup(modelID string) ([]string, bool)
}

// Assess решает, показывать ли для модели подпись аудио.
// Если каталог знает модель, верим тегам; иначе best-effort эвристика: в имени есть "omni".
func Assess(modelID string, declared TagSource) Assessment {
	if declared != nil {
		if tags, ok := declared.Lookup(modelID); ok {
			for _, t := range tags {
				switch strings.ToLower(strings.TrimSpace(t)) {
				case "audio", "any":
					return Assessment{Audio: true, Basis: BasisDeclared}
				}
			}
			return Assessment{Audio: false, Basis: BasisDeclared}
		}
	}
	return Assessment{Audio: strings.Contains(strings.ToLower(modelID), "omni"), Basis: BasisHeuristic}
}
