package engine

import "github.com/SMohammed-suhail/ClinicCare/internal/models"

// Status only moves forward; completed is terminal. consulting is a valid
// intermediate with no driving operation in the role views.
var transitionMap = map[string][]string{
	models.StatusWaiting:    {models.StatusConsulting, models.StatusCompleted},
	models.StatusConsulting: {models.StatusCompleted},
	models.StatusCompleted:  {},
}

func ValidTransition(fromStatus, toStatus string) bool {
	allowed, ok := transitionMap[fromStatus]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == toStatus {
			return true
		}
	}
	return false
}
