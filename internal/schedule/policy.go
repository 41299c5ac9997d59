package schedule

import "wisefido-followup/internal/models"

// band severity band of a policy
type band struct {
	phrase  string
	offsets []int // minutes from now, strictly increasing
}

// policy per incident type: severe >= 7, moderate 4-6, mild 1-3
type policy struct {
	severe   band
	moderate band
	mild     band
}

func (p policy) bandFor(severity int) band {
	switch {
	case severity >= 7:
		return p.severe
	case severity >= 4:
		return p.moderate
	default:
		return p.mild
	}
}

var policies = map[string]policy{
	models.IncidentTypeBehavioral: {
		severe:   band{"severe behavioral episode", []int{15, 60, 180}},
		moderate: band{"behavioral episode", []int{30, 120}},
		mild:     band{"minor behavioral incident", []int{60}},
	},
	models.IncidentTypePainMedical: {
		severe:   band{"severe pain", []int{30, 120, 360}},
		moderate: band{"moderate pain", []int{60, 240}},
		mild:     band{"mild pain", []int{120}},
	},
	models.IncidentTypeMood: {
		severe:   band{"significant mood change", []int{30, 120, 480}},
		moderate: band{"low mood", []int{60, 240}},
		mild:     band{"mood dip", []int{120}},
	},
	models.IncidentTypeEating: {
		severe:   band{"refusing food", []int{60, 180, 360}},
		moderate: band{"eating difficulty", []int{120, 360}},
		mild:     band{"minor eating concern", []int{240}},
	},
	models.IncidentTypeSensory: {
		severe:   band{"sensory overload", []int{15, 60, 180}},
		moderate: band{"sensory sensitivity", []int{30, 120}},
		mild:     band{"mild sensory discomfort", []int{60}},
	},
	models.IncidentTypeOther: {
		severe:   band{"serious incident", []int{30, 120, 360}},
		moderate: band{"incident", []int{60, 240}},
		mild:     band{"minor incident", []int{120}},
	},
}

// sleep branches on time of day; night offsets are longer so a sleeping
// caregiver is not woken for a routine check.
var (
	sleepNight = policy{
		severe:   band{"severe sleep disruption", []int{120, 360}},
		moderate: band{"sleep disruption", []int{240}},
		mild:     band{"restless sleep", []int{480}},
	}
	sleepDay = policy{
		severe:   band{"severe sleep disruption", []int{30, 120}},
		moderate: band{"sleep disruption", []int{60, 180}},
		mild:     band{"restless sleep", []int{120}},
	}
)

// sleep hours are 19:00-06:00
func isSleepHour(hour int) bool {
	return hour >= 19 || hour < 6
}

func policyFor(incidentType string, hour int) policy {
	if incidentType == models.IncidentTypeSleep {
		if isSleepHour(hour) {
			return sleepNight
		}
		return sleepDay
	}
	if p, ok := policies[incidentType]; ok {
		return p
	}
	return policies[models.IncidentTypeOther]
}
