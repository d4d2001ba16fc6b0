package housing

// diffDimensions compares before- and after-snapshots of one housing record
// along its independent dimensions and returns one queued event per
// dimension that actually changed. Dimensions never bleed into each other:
// a status-only change yields no occupancy event, and identical snapshots
// yield nothing at all.
func diffDimensions(before, after HousingRecord) []pendingEvent {
	var events []pendingEvent

	if statusDimensionChanged(before, after) {
		oldPayload := statusPayloadOf(before)
		newPayload := statusPayloadOf(after)
		events = append(events, pendingEvent{
			Type: EventTypeStatusUpdated,
			Old:  oldPayload,
			New:  newPayload,
		})
	}

	if occupancyDimensionChanged(before, after) {
		oldPayload := occupancyPayloadOf(before)
		newPayload := occupancyPayloadOf(after)
		events = append(events, pendingEvent{
			Type: EventTypeOccupancyUpdated,
			Old:  oldPayload,
			New:  newPayload,
		})
	}

	return events
}

func statusDimensionChanged(before, after HousingRecord) bool {
	if before.Status != after.Status {
		return true
	}
	return !equalOptionalString(before.SubStatus, after.SubStatus)
}

func occupancyDimensionChanged(before, after HousingRecord) bool {
	if before.Occupancy != after.Occupancy {
		return true
	}
	return !equalOptionalOccupancy(before.OccupancyIntended, after.OccupancyIntended)
}

func equalOptionalString(left, right *string) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}

func equalOptionalOccupancy(left, right *Occupancy) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}
