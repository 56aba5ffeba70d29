package httputil

import (
	"errors"
	"net/http"

	apierrors "modelgate/internal/errors"
	"modelgate/internal/provider"
)

// SafeStatus clamps an upstream status to something expressible;
// anything outside the valid range maps to Bad Gateway.
func SafeStatus(code int) int {
	if code < 100 || code > 599 {
		return http.StatusBadGateway
	}
	return code
}

// WriteUpstreamError maps an upstream call failure onto the synchronous
// error envelope. Build failures keep their auth/config wording so they
// are distinguishable from transport failures.
func WriteUpstreamError(w http.ResponseWriter, err error) {
	var be *provider.BuildError
	if errors.As(err, &be) {
		apierrors.WriteJSONError(w, http.StatusBadGateway, be.Error())
		return
	}
	apierrors.WriteJSONError(w, http.StatusBadGateway, "upstream error: "+err.Error())
}
