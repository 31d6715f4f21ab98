package event

// Suggestion is another user's pending event offered to someone nearby,
// annotated with how far away it is and how many places remain.
type Suggestion struct {
	PendingEvent

	Distance            float64   `json:"distance"` // miles, 1 decimal
	OptimalTime         *TimeSlot `json:"optimalTime"`
	CurrentParticipants int       `json:"currentParticipants"`
	SpotsLeft           int       `json:"spotsLeft"`
}
