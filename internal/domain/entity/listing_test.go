package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListingStatusEdges(t *testing.T) {
	all := []ListingStatus{ListingPending, ListingActive, ListingRejected, ListingSold}
	allowed := map[[2]ListingStatus]bool{
		{ListingPending, ListingActive}:   true,
		{ListingPending, ListingRejected}: true,
		{ListingActive, ListingSold}:      true,
		{ListingSold, ListingActive}:      true,
		{ListingRejected, ListingPending}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]ListingStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.False(t, ListingStatus("archived").CanTransitionTo(ListingActive))
}

func TestCanonicalPairIsOrderIndependent(t *testing.T) {
	a1, b1 := CanonicalPair("u-seller", "u-buyer")
	a2, b2 := CanonicalPair("u-buyer", "u-seller")

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, "u-buyer", a1)

	conv := &Conversation{ParticipantA: a1, ParticipantB: b1}
	assert.Equal(t, "u-seller", conv.Counterpart("u-buyer"))
	assert.Equal(t, "", conv.Counterpart("u-stranger"))
	assert.False(t, conv.HasParticipant(""))
}

func TestTransactionStatusOpenness(t *testing.T) {
	assert.True(t, TransactionPending.IsOpen())
	assert.True(t, TransactionInProgress.IsOpen())
	assert.True(t, TransactionDisputed.IsOpen())
	assert.False(t, TransactionCompleted.IsOpen())
	assert.True(t, TransactionCancelled.IsTerminal())
	assert.False(t, TransactionDisputed.IsTerminal())
}

func TestAuditEventRecipientsDeduplicates(t *testing.T) {
	ev := &AuditEvent{Payload: map[string]interface{}{
		"buyer_id":    "u-1",
		"seller_id":   "u-2",
		"receiver_id": "u-2",
		"amount":      int64(5),
	}}

	assert.Equal(t, []string{"u-1", "u-2"}, ev.Recipients())
}
