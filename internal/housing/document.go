package housing

// documentPlan is the outcome of reconciling a requested document list
// against the links currently held by one housing record.
type documentPlan struct {
	ToCreate []string
	Events   []pendingEvent
}

// reconcileDocuments computes idempotent document-link additions. Documents
// already linked are skipped without error or duplicate rows; an empty
// request is a no-op.
func reconcileDocuments(current []HousingDocumentLink, requested []string) documentPlan {
	plan := documentPlan{}
	if len(requested) == 0 {
		return plan
	}

	linked := make(map[string]bool, len(current))
	for _, link := range current {
		linked[link.DocumentID] = true
	}

	for _, id := range requested {
		if linked[id] {
			continue
		}
		linked[id] = true
		plan.ToCreate = append(plan.ToCreate, id)
		plan.Events = append(plan.Events, pendingEvent{
			Type: EventTypeDocumentAttached,
			New:  DocumentPayload{DocumentID: id},
		})
	}

	return plan
}
