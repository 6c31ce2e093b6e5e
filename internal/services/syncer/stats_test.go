package syncer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/ledgerd/internal/models"
)

func TestMergeStatsAssignsPerKey(t *testing.T) {
	sync := &models.Sync{}

	CollectAccountStats(sync, 5, 3)
	CollectTransactionStats(sync, 10, 2, 1)

	assert.Equal(t, 5, sync.Stats[models.StatTotalAccounts])
	assert.Equal(t, 3, sync.Stats[models.StatLinkedAccounts])
	assert.Equal(t, 10, sync.Stats[models.StatTxImported])

	// Re-collecting replaces per key without disturbing other phases.
	CollectTransactionStats(sync, 12, 2, 1)
	assert.Equal(t, 12, sync.Stats[models.StatTxImported])
	assert.Equal(t, 5, sync.Stats[models.StatTotalAccounts])
}

func TestIncrementStat(t *testing.T) {
	sync := &models.Sync{}

	RecordRateLimited(sync)
	RecordRateLimited(sync)
	RecordDataWarning(sync)

	assert.Equal(t, 2, sync.Stats[models.StatRateLimited])
	assert.Equal(t, 1, sync.Stats[models.StatDataWarnings])
}

func TestCollectErrorStatsBoundsDetails(t *testing.T) {
	sync := &models.Sync{}

	var errs []RecordError
	for i := 0; i < 15; i++ {
		errs = append(errs, RecordError{ExternalID: fmt.Sprintf("tx_%d", i), Reason: "bad date"})
	}
	CollectErrorStats(sync, errs)

	assert.Equal(t, 15, sync.Stats[models.StatTotalErrors])
	details := sync.Stats[models.StatErrorDetails].([]string)
	assert.Len(t, details, 10, "detail sample is bounded")
	assert.Equal(t, "tx_0: bad date", details[0])

	// A second batch keeps accumulating the total but not the sample.
	CollectErrorStats(sync, errs[:2])
	assert.Equal(t, 17, sync.Stats[models.StatTotalErrors])
	assert.Len(t, sync.Stats[models.StatErrorDetails].([]string), 10)
}

func TestCollectErrorStatsNoopOnEmpty(t *testing.T) {
	sync := &models.Sync{}
	CollectErrorStats(sync, nil)
	assert.Nil(t, sync.Stats)
}

func TestFoldResults(t *testing.T) {
	results := []RecordResult{
		{ExternalID: "a", Outcome: OutcomeImported},
		{ExternalID: "b", Outcome: OutcomeImported},
		{ExternalID: "c", Outcome: OutcomeUpdated},
		{ExternalID: "d", Outcome: OutcomeSkipped},
		{ExternalID: "e", Outcome: OutcomeFailed, Err: errors.New("bad currency")},
		{ExternalID: "f", Outcome: OutcomeFailed},
	}

	s := FoldResults(results)
	assert.Equal(t, 2, s.Imported)
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, RecordError{ExternalID: "e", Reason: "bad currency"}, s.Errors[0])
	assert.Equal(t, "unknown error", s.Errors[1].Reason)
}
