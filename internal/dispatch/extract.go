package dispatch

import (
	"github.com/fieldworks/dispatchboard/internal/remote"
	"github.com/fieldworks/dispatchboard/internal/utils"
)

// ExtractTechnicianID resolves the technician referenced by a remote
// dispatch. The backend has produced three encodings over time: a list
// of ref objects, a bare id list, and a free-text "dispatched by" field
// holding a numeric id somewhere inside. Each is tried in that order.
func ExtractTechnicianID(rd remote.RemoteDispatch) (string, bool) {
	for _, ref := range rd.Technicians {
		if ref.ID != "" {
			return ref.ID, true
		}
	}
	for _, id := range rd.TechnicianIDs {
		if id != "" {
			return id, true
		}
	}
	if n := utils.NumericPart(rd.DispatchedBy); n != "" {
		return n, true
	}
	return "", false
}

// MatchesTechnician reports whether the dispatch belongs to the given
// technician, tolerating the numeric-substring id mismatch between
// directory ids and dispatch records.
func MatchesTechnician(rd remote.RemoteDispatch, technicianID string) bool {
	id, ok := ExtractTechnicianID(rd)
	return ok && utils.IDsMatch(id, technicianID)
}
