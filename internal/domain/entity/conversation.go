package entity

import "time"

// Conversation is a listing-scoped thread between exactly two users.
// ParticipantA is always the lexically smaller user id.
type Conversation struct {
	ID           string    `json:"id" firestore:"id"`
	ListingID    string    `json:"listing_id" firestore:"listingId"`
	ParticipantA string    `json:"participant_a" firestore:"participantA"`
	ParticipantB string    `json:"participant_b" firestore:"participantB"`
	LastSeq      int64     `json:"last_seq" firestore:"lastSeq"`
	LastSentAt   time.Time `json:"last_sent_at,omitempty" firestore:"lastSentAt"`
	CreatedAt    time.Time `json:"created_at" firestore:"createdAt"`
}

// CanonicalPair orders two user ids so that each unordered pair has a single representation.
func CanonicalPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// Counterpart returns the other participant, or "" if userID is not in the conversation.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}
