package domain

// SourceType identifies which entity table a result row came from.
type SourceType string

// Known source types.
const (
	SourceReceipt           SourceType = "receipt"
	SourceClaim             SourceType = "claim"
	SourceTeamMember        SourceType = "team_member"
	SourceCustomCategory    SourceType = "custom_category"
	SourceBusinessDirectory SourceType = "business_directory"
	SourceLineItem          SourceType = "line_item"
	SourceFinancialAnalysis SourceType = "financial_analysis"
)

// AllSourceTypes lists every searchable source.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceReceipt, SourceClaim, SourceTeamMember, SourceCustomCategory,
		SourceBusinessDirectory, SourceLineItem,
	}
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceReceipt, SourceClaim, SourceTeamMember, SourceCustomCategory,
		SourceBusinessDirectory, SourceLineItem, SourceFinancialAnalysis:
		return true
	}
	return false
}

// AccessLevel is the visibility scope of a result.
type AccessLevel string

// Access levels, narrowest first.
const (
	AccessUser   AccessLevel = "user"
	AccessTeam   AccessLevel = "team"
	AccessPublic AccessLevel = "public"
)

// QueryIntent is the high-level intent assigned by the preprocessor.
type QueryIntent string

// Known query intents.
const (
	IntentFinancialAnalysis QueryIntent = "financial_analysis"
	IntentDocumentRetrieval QueryIntent = "document_retrieval"
	IntentDataAnalysis      QueryIntent = "data_analysis"
	IntentGeneralSearch     QueryIntent = "general_search"
)

// Valid reports whether i is a known intent.
func (i QueryIntent) Valid() bool {
	switch i {
	case IntentFinancialAnalysis, IntentDocumentRetrieval, IntentDataAnalysis, IntentGeneralSearch:
		return true
	}
	return false
}
