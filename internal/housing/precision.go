package housing

// precisionPlan is the outcome of reconciling a requested precision list
// against the links currently held by one housing record.
type precisionPlan struct {
	// ToCreate holds precisions that gain a fresh link.
	ToCreate []Precision
	// ToDelete holds precision identifiers whose links are superseded by a
	// different member of the same exclusive subcategory.
	ToDelete []string
	// Events carries exactly one attachment event per created link.
	Events []pendingEvent
}

// reconcilePrecisions computes add-only, idempotent, subcategory-exclusive
// link changes. Subcategories absent from the request keep their existing
// links untouched, and an empty request is a complete no-op: the operation
// is additive or corrective, never subtractive.
func reconcilePrecisions(catalog *Catalog, current []HousingPrecisionLink, requested []string) (precisionPlan, error) {
	plan := precisionPlan{}
	if len(requested) == 0 {
		return plan, nil
	}

	// Index current links by subcategory. Links whose precision has left the
	// catalog cannot conflict with a request and are left alone.
	currentBySubcategory := make(map[string]Precision, len(current))
	for _, link := range current {
		entry, err := catalog.Lookup(link.PrecisionID)
		if err != nil {
			continue
		}
		currentBySubcategory[entry.Subcategory()] = entry
	}

	// Partition the request by subcategory. When one request names two
	// members of the same exclusive subcategory, the last mention wins.
	requestedBySubcategory := make(map[string]Precision, len(requested))
	order := make([]string, 0, len(requested))
	for _, id := range requested {
		entry, err := catalog.Lookup(id)
		if err != nil {
			return precisionPlan{}, err
		}
		subcategory := entry.Subcategory()
		if _, seen := requestedBySubcategory[subcategory]; !seen {
			order = append(order, subcategory)
		}
		requestedBySubcategory[subcategory] = entry
	}

	for _, subcategory := range order {
		entry := requestedBySubcategory[subcategory]
		existing, linked := currentBySubcategory[subcategory]
		if linked && existing.ID == entry.ID {
			// Already linked: re-submitting the same precision is a no-op.
			continue
		}
		if linked {
			plan.ToDelete = append(plan.ToDelete, existing.ID)
		}
		plan.ToCreate = append(plan.ToCreate, entry)
		created := entry
		plan.Events = append(plan.Events, pendingEvent{
			Type:      EventTypePrecisionAttached,
			New:       PrecisionPayload{Category: string(entry.Category), Label: entry.Label},
			Precision: &created,
		})
	}

	return plan, nil
}
