package housing

import (
	"errors"
	"fmt"
)

// ErrUnknownPrecision indicates a precision identifier absent from the catalog.
var ErrUnknownPrecision = errors.New("housing: unknown precision")

// PrecisionCategory groups catalog entries by the kind of follow-up
// information they carry.
type PrecisionCategory string

const (
	CategoryDispositifsIncitatifs PrecisionCategory = "dispositifs-incitatifs"
	CategoryDispositifsCoercitifs PrecisionCategory = "dispositifs-coercitifs"
	CategoryHorsDispositifPublic  PrecisionCategory = "hors-dispositif-public"
	CategoryBlocageInvolontaire   PrecisionCategory = "blocage-involontaire"
	CategoryBlocageVolontaire     PrecisionCategory = "blocage-volontaire"
	CategoryEvolutionTravaux      PrecisionCategory = "travaux"
	CategoryEvolutionOccupation   PrecisionCategory = "occupation"
	CategoryEvolutionMutation     PrecisionCategory = "mutation"
)

// exclusiveCategories lists categories whose members are mutually exclusive
// for a single housing record: linking a new member supersedes the old one.
// Members of the remaining categories coexist freely, so each forms its own
// one-element subcategory.
var exclusiveCategories = map[PrecisionCategory]bool{
	CategoryEvolutionTravaux:    true,
	CategoryEvolutionOccupation: true,
	CategoryEvolutionMutation:   true,
}

// Precision is an immutable catalog entry (id, category, label).
type Precision struct {
	ID       string            `gorm:"column:id;primaryKey;size:190;not null"`
	Category PrecisionCategory `gorm:"column:category;size:64;not null"`
	Label    string            `gorm:"column:label;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Precision) TableName() string {
	return "precisions"
}

// Subcategory returns the exclusivity bucket of the precision. Two
// precisions sharing a subcategory may not both be linked to one housing
// record.
func (p Precision) Subcategory() string {
	if exclusiveCategories[p.Category] {
		return string(p.Category)
	}
	return string(p.Category) + ":" + p.ID
}

// Catalog is the static precision catalog, loaded once at startup and never
// mutated afterwards; it is safe to share across concurrent requests.
type Catalog struct {
	byID map[string]Precision
}

// NewCatalog builds a catalog from its entries, rejecting duplicates.
func NewCatalog(entries []Precision) (*Catalog, error) {
	byID := make(map[string]Precision, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrUnknownPrecision)
		}
		if _, exists := byID[entry.ID]; exists {
			return nil, fmt.Errorf("housing: duplicate precision %q", entry.ID)
		}
		byID[entry.ID] = entry
	}
	return &Catalog{byID: byID}, nil
}

// Lookup resolves a precision identifier against the catalog.
func (c *Catalog) Lookup(id string) (Precision, error) {
	entry, ok := c.byID[id]
	if !ok {
		return Precision{}, fmt.Errorf("%w: %q", ErrUnknownPrecision, id)
	}
	return entry, nil
}

// Entries returns a copy of the catalog contents, for seeding the precisions
// table.
func (c *Catalog) Entries() []Precision {
	entries := make([]Precision, 0, len(c.byID))
	for _, entry := range c.byID {
		entries = append(entries, entry)
	}
	return entries
}

// DefaultCatalog returns the fixed precision taxonomy shipped with the
// application.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(defaultPrecisions)
	if err != nil {
		panic(err)
	}
	return catalog
}

var defaultPrecisions = []Precision{
	{ID: "dispositif-incitatif-conventionnement-anah", Category: CategoryDispositifsIncitatifs, Label: "Conventionnement avec travaux"},
	{ID: "dispositif-incitatif-aides-locales-travaux", Category: CategoryDispositifsIncitatifs, Label: "Aides locales travaux"},
	{ID: "dispositif-incitatif-prime-sortie-vacance", Category: CategoryDispositifsIncitatifs, Label: "Prime locale sortie de vacance"},
	{ID: "dispositif-incitatif-intermediation-locative", Category: CategoryDispositifsIncitatifs, Label: "Intermédiation locative"},
	{ID: "dispositif-coercitif-thlv-tlv", Category: CategoryDispositifsCoercitifs, Label: "THLV / TLV"},
	{ID: "dispositif-coercitif-rhi-thirori", Category: CategoryDispositifsCoercitifs, Label: "RHI / THIRORI"},
	{ID: "dispositif-coercitif-bien-sans-maitre", Category: CategoryDispositifsCoercitifs, Label: "Procédure bien sans maître"},
	{ID: "hors-dispositif-accompagne-proprietaire", Category: CategoryHorsDispositifPublic, Label: "Accompagné par un professionnel"},
	{ID: "blocage-involontaire-succession-difficile", Category: CategoryBlocageInvolontaire, Label: "Succession difficile"},
	{ID: "blocage-involontaire-defaut-entretien", Category: CategoryBlocageInvolontaire, Label: "Défaut d'entretien"},
	{ID: "blocage-volontaire-refus-de-vendre", Category: CategoryBlocageVolontaire, Label: "Refus de vendre ou louer"},
	{ID: "blocage-volontaire-usage-personnel", Category: CategoryBlocageVolontaire, Label: "Réservé pour un usage personnel"},
	{ID: "travaux-a-prevoir", Category: CategoryEvolutionTravaux, Label: "À prévoir"},
	{ID: "travaux-en-cours", Category: CategoryEvolutionTravaux, Label: "En cours"},
	{ID: "travaux-termines", Category: CategoryEvolutionTravaux, Label: "Terminés"},
	{ID: "occupation-en-recherche-de-locataire", Category: CategoryEvolutionOccupation, Label: "En recherche de locataire"},
	{ID: "occupation-nouvelle-occupation", Category: CategoryEvolutionOccupation, Label: "Nouvelle occupation"},
	{ID: "mutation-en-vente", Category: CategoryEvolutionMutation, Label: "En vente"},
	{ID: "mutation-vendu", Category: CategoryEvolutionMutation, Label: "Vendu"},
}
