package lifecycle

import (
	"context"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
)

// DetermineCallType classifies a call as First Call or Follow Up by
// counting the prospect's prior conversational calls within the tenant.
// Unknown prospects are always First Call. Store errors fall back to
// First Call so a degraded warehouse read never blocks ingestion.
func DetermineCallType(ctx context.Context, calls CallStore, tenantID, prospectEmail string) (models.CallType, error) {
	email := models.NormalizeEmail(prospectEmail)
	if email == "" || email == models.UnknownProspectEmail {
		return models.CallTypeFirstCall, nil
	}
	prior, err := calls.CountByProspectStates(ctx, tenantID, email, config.ConversationalPriorStates)
	if err != nil {
		return models.CallTypeFirstCall, err
	}
	if prior > 0 {
		return models.CallTypeFollowUp, nil
	}
	return models.CallTypeFirstCall, nil
}
