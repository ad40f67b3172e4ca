package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/legisearch/internal/model"
)

func validRequest() Request {
	return Request{Query: "climate policy", Limit: 20, Threshold: 0.3}
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, validRequest().Validate())
}

func TestRequestValidate_EmptyQuery(t *testing.T) {
	r := validRequest()
	r.Query = ""
	err := r.Validate()
	require.Error(t, err)

	re, ok := AsRetrievalError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonMalformedQuery, re.Reason)
}

func TestRequestValidate_LimitBounds(t *testing.T) {
	for _, limit := range []int{0, -1, MaxLimit + 1} {
		r := validRequest()
		r.Limit = limit
		err := r.Validate()
		require.Error(t, err, "limit %d", limit)

		re, ok := AsRetrievalError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonBadThreshold, re.Reason)
	}

	r := validRequest()
	r.Limit = MinLimit
	assert.NoError(t, r.Validate())
	r.Limit = MaxLimit
	assert.NoError(t, r.Validate())
}

func TestRequestValidate_ThresholdBounds(t *testing.T) {
	for _, th := range []float64{-0.01, 1.01} {
		r := validRequest()
		r.Threshold = th
		assert.Error(t, r.Validate(), "threshold %f", th)
	}
	r := validRequest()
	r.Threshold = 1.0
	assert.NoError(t, r.Validate())
}

func TestRequestValidate_UnknownKind(t *testing.T) {
	r := validRequest()
	r.Kinds = []model.ContentKind{model.KindBill, model.ContentKind("treaty")}
	err := r.Validate()
	require.Error(t, err)

	re, _ := AsRetrievalError(err)
	assert.Equal(t, ReasonMalformedQuery, re.Reason)
}

func TestRetrievalError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &RetrievalError{Reason: ReasonUnavailable, Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), ReasonUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsRetrievalError_NotOne(t *testing.T) {
	_, ok := AsRetrievalError(errors.New("plain"))
	assert.False(t, ok)
}
