package anthropic

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPollBatchEnded(t *testing.T) {
	client := new(MockClient)
	client.On("GetBatch", mock.Anything, "batch_1").
		Return(&BatchResponse{ID: "batch_1", ProcessingStatus: "in_progress"}, nil).Once()
	client.On("GetBatch", mock.Anything, "batch_1").
		Return(&BatchResponse{ID: "batch_1", ProcessingStatus: "ended"}, nil).Once()

	batch, err := PollBatch(context.Background(), client, "batch_1",
		WithPollInterval(time.Millisecond), WithPollCap(2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "ended", batch.ProcessingStatus)
	client.AssertExpectations(t)
}

func TestPollBatchExpired(t *testing.T) {
	client := new(MockClient)
	client.On("GetBatch", mock.Anything, "batch_2").
		Return(&BatchResponse{ID: "batch_2", ProcessingStatus: "expired"}, nil)

	_, err := PollBatch(context.Background(), client, "batch_2",
		WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestPollBatchTimeout(t *testing.T) {
	client := new(MockClient)
	client.On("GetBatch", mock.Anything, "batch_3").
		Return(&BatchResponse{ID: "batch_3", ProcessingStatus: "in_progress"}, nil)

	_, err := PollBatch(context.Background(), client, "batch_3",
		WithPollInterval(50*time.Millisecond), WithPollTimeout(10*time.Millisecond))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPollTimeout))
}

func TestCollectBatchResultsDetailed(t *testing.T) {
	iter := &sliceIterator{items: []BatchResultItem{
		{CustomID: "cat_strategy", Type: "succeeded", Message: &MessageResponse{ID: "msg_1"}},
		{CustomID: "cat_finance", Type: "errored"},
		{CustomID: "cat_sales", Type: "succeeded", Message: &MessageResponse{ID: "msg_2"}},
		{CustomID: "cat_risk", Type: "expired"},
	}}

	result, err := CollectBatchResultsDetailed(iter)
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Equal(t, "msg_1", result.Succeeded["cat_strategy"].ID)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "cat_finance", result.Failures[0].CustomID)
	assert.Equal(t, "errored", result.Failures[0].Type)
	assert.Equal(t, "expired", result.Failures[1].Type)
}

func TestCollectBatchResultsIterError(t *testing.T) {
	iter := &sliceIterator{err: eris.New("stream broken")}
	_, err := CollectBatchResultsDetailed(iter)
	require.Error(t, err)
}
