package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

func problemFor(t *testing.T, err error) (*ProblemDetail, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/votes", nil)
	WriteDomainError(w, r, err)

	var p ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return &p, w
}

func TestWriteDomainError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{contracts.ErrReceiptNotFound, http.StatusNotFound, "ReceiptNotFound"},
		{contracts.ErrScoreNotFound, http.StatusNotFound, "ScoreNotFound"},
		{contracts.ErrVoteNotFound, http.StatusNotFound, "VoteNotFound"},
		{contracts.ErrReceiptAlreadyUsed, http.StatusConflict, "ReceiptAlreadyUsed"},
		{contracts.ErrUnauthorizedVoter, http.StatusForbidden, "UnauthorizedVoter"},
		{contracts.ErrSelfTransaction, http.StatusForbidden, "SelfTransaction"},
		{contracts.ErrVotingWindowExpired, http.StatusGone, "VotingWindowExpired"},
		{contracts.ErrMalformedTransaction, http.StatusUnprocessableEntity, "MalformedTransaction"},
		{contracts.ErrInvalidQualityScore, http.StatusUnprocessableEntity, "InvalidQualityScore"},
	}
	for _, tc := range cases {
		p, w := problemFor(t, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.code)
		assert.Equal(t, tc.status, p.Status, tc.code)
		assert.Equal(t, tc.code, p.Code, tc.code)
		assert.Equal(t, "/v1/votes", p.Instance)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	}
}

func TestWriteDomainError_WrappedSentinel(t *testing.T) {
	p, w := problemFor(t, fmt.Errorf("cast vote: %w", contracts.ErrUnauthorizedVoter))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UnauthorizedVoter", p.Code)
}

func TestWriteDomainError_InternalHidesDetail(t *testing.T) {
	p, w := problemFor(t, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal", p.Code)
	assert.NotContains(t, p.Detail, "pq:", "internal errors must not leak")
}

func TestWriteError_PlainProblem(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "missing receipt_id")

	var p ProblemDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "Bad Request", p.Title)
	assert.Equal(t, "missing receipt_id", p.Detail)
}
