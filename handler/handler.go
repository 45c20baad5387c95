package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/logger"
	"github.com/mstgnz/dukapi/infra/middle"
	"github.com/mstgnz/dukapi/infra/response"
	"github.com/mstgnz/dukapi/infra/validate"
	"github.com/mstgnz/dukapi/service"
)

// decode reads a JSON body into v and validates it. It writes the 400 itself
// and reports false when the request cannot be used.
func decode(w http.ResponseWriter, r *http.Request, v any, vd *validator.Validate) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if vd == nil {
		return true
	}
	if err := vd.Struct(v); err != nil {
		if fields := validate.Messages(err); fields != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.Response{
				Code:    http.StatusBadRequest,
				Success: false,
				Message: "Validation error",
				Data:    fields,
			})
			return false
		}
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter, answering 400 otherwise
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// maxPage bounds page numbers so offsets stay within range
const maxPage = 10000

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// queryIDs parses "1,2,3" and skips anything that is not a positive integer
func queryIDs(r *http.Request, name string) []int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n > 0 {
			ids = append(ids, n)
		}
	}
	return ids
}

// currentUser returns the authenticated claims. Routes using it sit behind JWTAuth.
func currentUser(w http.ResponseWriter, r *http.Request) (*auth.JWTClaims, bool) {
	claims, ok := middle.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Not authenticated", nil)
		return nil, false
	}
	return claims, true
}

func actorOf(claims *auth.JWTClaims) service.Actor {
	return service.Actor{ID: claims.ID, Role: claims.Role}
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, service.ErrCategoryNotFound),
		errors.Is(err, service.ErrSubcategoryNotFound),
		errors.Is(err, service.ErrSpecificationNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrImageNotFound),
		errors.Is(err, service.ErrAddressNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrTransactionNotFound),
		errors.Is(err, service.ErrFavoriteNotFound),
		errors.Is(err, service.ErrReviewNotFound),
		errors.Is(err, service.ErrBannerNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, auth.ErrCannotDeleteSuperadmin),
		errors.Is(err, auth.ErrSuperadminExists):
		return http.StatusForbidden

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrEmailNotVerified),
		errors.Is(err, service.ErrCallbackUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrGatewayRejected),
		errors.Is(err, service.ErrGatewayUnavailable):
		return http.StatusBadGateway

	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, auth.ErrUserAlreadyExists),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrAlreadyVerified),
		errors.Is(err, auth.ErrInvalidOrExpiredToken),
		errors.Is(err, auth.ErrCannotDeleteSelf),
		errors.Is(err, auth.ErrUserInUse),
		errors.Is(err, service.ErrDuplicateName),
		errors.Is(err, service.ErrInUse),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrTransactionUnavailable),
		errors.Is(err, service.ErrInsufficientAmount),
		errors.Is(err, service.ErrOrderAlreadyPaid),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrAlreadyFavorite),
		errors.Is(err, service.ErrAlreadyReviewed),
		errors.Is(err, service.ErrReviewNotAllowed),
		errors.Is(err, service.ErrAlreadySubscribed),
		errors.Is(err, service.ErrInvalidFile),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCallback),
		errors.Is(err, validate.ErrInvalidPhone):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Unmapped errors are logged and
// answered with msg only.
func fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		ctx := logger.LogContext{RequestID: middleware.GetReqID(r.Context())}
		if claims, ok := middle.ClaimsFromContext(r.Context()); ok {
			ctx.UserID = strconv.Itoa(claims.ID)
		}
		logger.Error(msg, err, ctx)
		response.Error(w, status, msg, nil)
		return
	}
	response.Error(w, status, msg, err)
}
