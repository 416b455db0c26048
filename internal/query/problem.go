package query

import (
	"encoding/json"
	"net/http"

	"github.com/p13marc/netimpaird/internal/xerrors"
)

// Problem is an RFC 7807 problem-details response body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const contentTypeProblemJSON = "application/problem+json"

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", contentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return false
	}
	return true
}

// writeXerror maps a xerrors.Code to an HTTP status and writes an RFC 7807
// problem response, the query-handler boundary's one place where typed
// backend errors become operator-visible responses (spec.md §7).
func writeXerror(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status, title := statusFor(code)
	writeProblem(w, status, title, err.Error())
}

func statusFor(code xerrors.Code) (int, string) {
	switch code {
	case xerrors.PermissionDenied:
		return http.StatusForbidden, "Permission Denied"
	case xerrors.UnknownInterface, xerrors.NotFound:
		return http.StatusNotFound, "Not Found"
	case xerrors.InterfaceGone:
		return http.StatusGone, "Interface Gone"
	case xerrors.InvalidScenario:
		return http.StatusUnprocessableEntity, "Invalid Scenario"
	case xerrors.AlreadyRunning:
		return http.StatusConflict, "Already Running"
	case xerrors.BusyOrConflict:
		return http.StatusConflict, "Busy Or Conflict"
	case xerrors.ProtocolError, xerrors.IoError:
		return http.StatusBadGateway, "Transport Error"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
