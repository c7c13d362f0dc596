package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mchen04/Grantify.ai-sub000/internal/models"
)

// Transformer maps raw feed records into canonical grants. The clock is
// injectable so the expiry cutoff is testable.
type Transformer struct {
	Now func() time.Time
}

func NewTransformer() *Transformer {
	return &Transformer{Now: time.Now}
}

// Transform parses the extracted XML document and returns canonical
// grants in input order. Records whose close date is strictly in the
// past are excluded. Records whose natural key already appears in
// existingIDs bypass the cleaner entirely (raw description, raw contact
// fields) to avoid redundant external calls; everything else goes
// through the injected cleaner. A document without the expected root
// collection is fatal for the whole run; individual field defects
// degrade to zero values and never abort.
func (t *Transformer) Transform(ctx context.Context, documentPath string, existingIDs map[string]struct{}, cleaner TextCleaner) ([]models.Grant, error) {
	f, err := os.Open(documentPath)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	decoder := xml.NewDecoder(f)
	if err := seekRootCollection(decoder); err != nil {
		return nil, err
	}

	now := t.Now().UTC()
	var grants []models.Grant
	seen := make(map[string]struct{})
	expired := 0
	cleaned := 0
	skippedCleaning := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "OpportunitySynopsisDetail_1_0" {
			continue
		}

		var raw RawGrantRecord
		if err := decoder.DecodeElement(&raw, &start); err != nil {
			log.Printf("[Transform] skipping undecodable record: %v", err)
			continue
		}

		oppID := strings.TrimSpace(raw.OpportunityID)
		if oppID == "" {
			continue
		}
		if _, dup := seen[oppID]; dup {
			log.Printf("[Transform] duplicate opportunity id %s, keeping first occurrence", oppID)
			continue
		}

		closeDate, err := parseFeedDate(raw.CloseDate)
		if err != nil {
			log.Printf("[Transform] %s: %v", oppID, err)
		}
		if isExpired(closeDate, now) {
			expired++
			continue
		}

		_, known := existingIDs[oppID]
		if known {
			skippedCleaning++
		} else {
			cleaned++
		}

		grant := t.buildGrant(ctx, raw, closeDate, known, cleaner)
		seen[oppID] = struct{}{}
		grants = append(grants, grant)
	}

	log.Printf("[Transform] %d grants (%d expired excluded, %d cleaned, %d skipped cleaning)",
		len(grants), expired, cleaned, skippedCleaning)
	return grants, nil
}

func (t *Transformer) buildGrant(ctx context.Context, raw RawGrantRecord, closeDate *time.Time, skipCleaning bool, cleaner TextCleaner) models.Grant {
	grant := models.Grant{
		OpportunityID:      strings.TrimSpace(raw.OpportunityID),
		OpportunityNumber:  strings.TrimSpace(raw.OpportunityNumber),
		Title:              cleanText(sanitizeUTF8(raw.OpportunityTitle)),
		Category:           expandCategory(raw.OpportunityCategory),
		FundingType:        expandFundingType(raw.FundingInstrument),
		ActivityCategories: inferActivityCategories(raw.FundingActivity, raw.OpportunityTitle),
		EligibleApplicants: expandEligibility(raw.EligibleApplicants),
		AgencyName:         cleanText(raw.AgencyName),
		AgencyCode:         strings.TrimSpace(raw.AgencyCode),
		CloseDate:          closeDate,
		TotalFunding:       parseAmount(raw.TotalFunding),
		AwardCeiling:       parseAmount(raw.AwardCeiling),
		AwardFloor:         parseAmount(raw.AwardFloor),
		CostSharing:        parseCostSharing(raw.CostSharing),
		AdditionalInfoURL:  strings.TrimSpace(raw.AdditionalInfoURL),
	}

	if postDate, err := parseFeedDate(raw.PostDate); err == nil {
		grant.PostDate = postDate
	} else {
		log.Printf("[Transform] %s: %v", grant.OpportunityID, err)
	}

	if skipCleaning {
		// Already-known record: raw fields pass through untouched so no
		// external cleaning budget is spent on it.
		grant.Description = raw.Description
		grant.ContactName = raw.ContactEmailDesc
		grant.ContactEmail = raw.ContactEmail
		return grant
	}

	result := cleaner.Clean(ctx, CleanInput{
		Description:  raw.Description,
		ContactName:  raw.ContactEmailDesc,
		ContactEmail: raw.ContactEmail,
		ContactBlob:  raw.ContactText,
	})

	grant.Description = result.Description
	grant.ContactName = result.Contact.Name
	grant.ContactEmail = result.Contact.Email
	grant.ContactPhone = result.Contact.Phone
	grant.ContactNameSource = result.Contact.NameSource
	grant.ContactPhoneValid = result.Contact.PhoneValid
	grant.ContactPhoneSource = result.Contact.PhoneSource
	return grant
}

// seekRootCollection advances the decoder to the opening Grants element.
// Its absence means the document is malformed and the run must abort.
func seekRootCollection(decoder *xml.Decoder) error {
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return fmt.Errorf("document has no root Grants collection")
		}
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local == "Grants" {
				return nil
			}
			return fmt.Errorf("unexpected root element %q, want Grants", start.Name.Local)
		}
	}
}
