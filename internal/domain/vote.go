package domain

import "strings"

// NotAvailable is stored for any field the source document omits.
const NotAvailable = "N/A"

// VoteHeader holds the vote-level metadata shared by every ballot of a roll call.
type VoteHeader struct {
	Majority          string `json:"majority"`
	Congress          string `json:"congress"`
	Session           string `json:"session"`
	Chamber           string `json:"chamber"`
	RollCallNumber    string `json:"roll_call_number"`
	LegislationNumber string `json:"legislation_number"`
	VoteQuestion      string `json:"vote_question"`
	VoteType          string `json:"vote_type"`
	VoteResult        string `json:"vote_result"`
	ActionDate        string `json:"action_date"`
	ActionTime        string `json:"action_time"`
	Description       string `json:"description"`
	TotalYeas         string `json:"total_yeas"`
	TotalNays         string `json:"total_nays"`
	TotalPresent      string `json:"total_present"`
	TotalNotVoting    string `json:"total_not_voting"`
}

// NewVoteHeader returns a header with every field set to NotAvailable.
func NewVoteHeader() VoteHeader {
	return VoteHeader{
		Majority:          NotAvailable,
		Congress:          NotAvailable,
		Session:           NotAvailable,
		Chamber:           NotAvailable,
		RollCallNumber:    NotAvailable,
		LegislationNumber: NotAvailable,
		VoteQuestion:      NotAvailable,
		VoteType:          NotAvailable,
		VoteResult:        NotAvailable,
		ActionDate:        NotAvailable,
		ActionTime:        NotAvailable,
		Description:       NotAvailable,
		TotalYeas:         NotAvailable,
		TotalNays:         NotAvailable,
		TotalPresent:      NotAvailable,
		TotalNotVoting:    NotAvailable,
	}
}

// Fields returns the header values in column order.
func (h VoteHeader) Fields() []string {
	return []string{
		h.Majority,
		h.Congress,
		h.Session,
		h.Chamber,
		h.RollCallNumber,
		h.LegislationNumber,
		h.VoteQuestion,
		h.VoteType,
		h.VoteResult,
		h.ActionDate,
		h.ActionTime,
		h.Description,
		h.TotalYeas,
		h.TotalNays,
		h.TotalPresent,
		h.TotalNotVoting,
	}
}

// BallotRecord is one member's recorded vote, verbatim from the source.
type BallotRecord struct {
	MemberName string `json:"member_name"`
	State      string `json:"state"`
	Party      string `json:"party"`
	Vote       string `json:"vote"`
}

// RollCall is the in-memory result of extracting one document.
type RollCall struct {
	ID      int
	Year    int
	Header  VoteHeader
	Ballots []BallotRecord
	// BallotErrors aggregates recorded-vote entries that were skipped.
	BallotErrors error
}

// StoredRow is one persisted (vote, member) pair.
type StoredRow struct {
	ID int64 `json:"id"`
	VoteHeader
	BallotRecord
}

// Columns lists the stored row columns, excluding the identity key, in insert order.
var Columns = []string{
	"majority",
	"congress",
	"session",
	"chamber",
	"roll_call_number",
	"legislation_number",
	"vote_question",
	"vote_type",
	"vote_result",
	"action_date",
	"action_time",
	"description",
	"total_yeas",
	"total_nays",
	"total_present",
	"total_not_voting",
	"member_name",
	"state",
	"party",
	"vote",
}

// Values returns the row values aligned with Columns.
func (r StoredRow) Values() []string {
	return append(r.VoteHeader.Fields(), r.MemberName, r.State, r.Party, r.Vote)
}

// IsNotAvailable reports whether a field carries the missing-value sentinel.
func IsNotAvailable(value string) bool {
	return strings.TrimSpace(value) == NotAvailable
}
