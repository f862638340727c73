// Package api — RFC 7807 Problem Detail error responses for the trustmesh
// façade. HTTP routing lives with the embedding service; this package only
// translates domain errors into wire-stable problem documents.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses must use this format.
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// Code is the stable machine-readable error identifier.
	Code string `json:"code,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// statusFor maps domain sentinels to HTTP statuses. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrReceiptNotFound),
		errors.Is(err, contracts.ErrVoteNotFound),
		errors.Is(err, contracts.ErrScoreNotFound):
		return http.StatusNotFound
	case errors.Is(err, contracts.ErrReceiptAlreadyUsed),
		errors.Is(err, contracts.ErrEndorsementLimit):
		return http.StatusConflict
	case errors.Is(err, contracts.ErrUnauthorizedCreator),
		errors.Is(err, contracts.ErrUnauthorizedVoter),
		errors.Is(err, contracts.ErrSelfTransaction),
		errors.Is(err, contracts.ErrSelfEndorsement):
		return http.StatusForbidden
	case errors.Is(err, contracts.ErrVotingWindowExpired):
		return http.StatusGone
	case errors.Is(err, contracts.ErrMalformedTransaction),
		errors.Is(err, contracts.ErrUnresolvableAccounts),
		errors.Is(err, contracts.ErrNoTransferInstruction),
		errors.Is(err, contracts.ErrInvalidQualityScore),
		errors.Is(err, contracts.ErrInvalidAttestation),
		errors.Is(err, contracts.ErrInvalidStakePosition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes the RFC 7807 response for a domain error,
// including its stable error code. Internal errors are logged but never
// echoed to the client.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("internal server error", "error", err, "path", r.URL.Path)
		detail = "An unexpected error occurred. Please try again later."
	}
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://trustmesh.dev/errors/%s", contracts.ErrorCode(err)),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     contracts.ErrorCode(err),
	}
	writeProblem(w, problem)
}

// WriteError writes a plain RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   fmt.Sprintf("https://trustmesh.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but NEVER exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

func writeProblem(w http.ResponseWriter, problem *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}
