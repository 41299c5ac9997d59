package models

// Effectiveness vocabulary recorded on responses
const (
	EffectivenessResolved = "resolved"
	EffectivenessImproved = "improved"
	EffectivenessNoChange = "no_change"
	EffectivenessWorse    = "worse"
)

// Coarse codes carried by notification action buttons
const (
	QuickCodeEffective    = "effective"
	QuickCodeSomewhat     = "somewhat"
	QuickCodeNotEffective = "not-effective"
)

// IsValidEffectiveness reports whether v belongs to the vocabulary
func IsValidEffectiveness(v string) bool {
	switch v {
	case EffectivenessResolved, EffectivenessImproved, EffectivenessNoChange, EffectivenessWorse:
		return true
	}
	return false
}

// EffectivenessForQuickCode maps an action code to the vocabulary
func EffectivenessForQuickCode(code string) (string, bool) {
	switch code {
	case QuickCodeEffective:
		return EffectivenessResolved, true
	case QuickCodeSomewhat:
		return EffectivenessImproved, true
	case QuickCodeNotEffective:
		return EffectivenessNoChange, true
	}
	return "", false
}
