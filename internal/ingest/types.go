package ingest

import (
	"context"
	"encoding/xml"
)

// RawGrantRecord is one opportunity exactly as published in the bulk XML
// extract. Every field is an optional string; dates arrive as 8-digit
// MMDDYYYY strings and money as decorated strings ("$1,500,000").
// It exists only during transformation and is never persisted.
type RawGrantRecord struct {
	XMLName             xml.Name `xml:"OpportunitySynopsisDetail_1_0"`
	OpportunityID       string   `xml:"OpportunityID"`
	OpportunityTitle    string   `xml:"OpportunityTitle"`
	OpportunityNumber   string   `xml:"OpportunityNumber"`
	OpportunityCategory string   `xml:"OpportunityCategory"`
	FundingInstrument   string   `xml:"FundingInstrumentType"`
	FundingActivity     []string `xml:"CategoryOfFundingActivity"`
	EligibleApplicants  []string `xml:"EligibleApplicants"`
	AgencyCode          string   `xml:"AgencyCode"`
	AgencyName          string   `xml:"AgencyName"`
	PostDate            string   `xml:"PostDate"`
	CloseDate           string   `xml:"CloseDate"`
	TotalFunding        string   `xml:"EstimatedTotalProgramFunding"`
	AwardCeiling        string   `xml:"AwardCeiling"`
	AwardFloor          string   `xml:"AwardFloor"`
	CostSharing         string   `xml:"CostSharingOrMatchingRequirement"`
	Description         string   `xml:"Description"`
	ContactEmail        string   `xml:"GrantorContactEmail"`
	ContactEmailDesc    string   `xml:"GrantorContactEmailDescription"`
	ContactText         string   `xml:"GrantorContactText"`
	AdditionalInfoURL   string   `xml:"AdditionalInformationURL"`
}

// CleanedContact carries the decomposed contact fields plus provenance
// tags describing how each value was obtained.
type CleanedContact struct {
	Name  string
	Email string
	Phone string
	// NameSource is "provided" when the name appeared in the input and
	// "inferred-from-email" when it was derived from the email address.
	NameSource string
	// PhoneValid is nil when no phone was found.
	PhoneValid *bool
	// PhoneSource is "given" or "assumed".
	PhoneSource string
}

// CleaningResult is the output of one cleaning pass over a single record.
// It is folded into the canonical grant and never persisted on its own.
type CleaningResult struct {
	Description string
	Contact     CleanedContact
}

// CleanInput bundles the raw free-text fields handed to a cleaner.
// ContactBlob is the single free-text contact field some records carry
// instead of separate name/email/phone fields.
type CleanInput struct {
	Description  string
	ContactName  string
	ContactEmail string
	ContactPhone string
	ContactBlob  string
}

// TextCleaner rewrites free-text fields into a structured result.
// Implementations must not fail: on any internal error they degrade to
// HTML-stripped, whitespace-normalized input with best-effort contact
// extraction.
type TextCleaner interface {
	Clean(ctx context.Context, in CleanInput) CleaningResult
}

const (
	NameSourceProvided  = "provided"
	NameSourceFromEmail = "inferred-from-email"
	PhoneSourceGiven    = "given"
	PhoneSourceAssumed  = "assumed"

	// ProcessingNotStarted is stamped on every grant as it leaves the
	// pipeline; downstream consumers advance it.
	ProcessingNotStarted = "not_processed"
)
