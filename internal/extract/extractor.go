// Package extract turns a roll-call XML document into a vote header and its ballots.
package extract

import (
	"bytes"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/hashicorp/go-multierror"

	"github.com/rpattn/rollcall/internal/domain"
)

var (
	metadataExpr      = xpath.MustCompile("//vote-metadata")
	totalsExpr        = xpath.MustCompile("//vote-totals/totals-by-vote")
	actionTimeExpr    = xpath.MustCompile(".//action-time")
	recordedVotesExpr = xpath.MustCompile("//recorded-vote")
	legislatorExpr    = xpath.MustCompile("legislator")
	voteExpr          = xpath.MustCompile("vote")
)

// Extract parses one document. A missing vote-metadata node is fatal; recorded
// votes without a legislator are skipped and reported through RollCall.BallotErrors.
func Extract(doc []byte) (domain.RollCall, error) {
	root, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return domain.RollCall{}, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}

	header, err := extractHeader(root)
	if err != nil {
		return domain.RollCall{}, err
	}

	ballots, ballotErrs := extractBallots(root)

	return domain.RollCall{
		Header:       header,
		Ballots:      ballots,
		BallotErrors: ballotErrs,
	}, nil
}

func extractHeader(root *xmlquery.Node) (domain.VoteHeader, error) {
	metadata := xmlquery.QuerySelector(root, metadataExpr)
	if metadata == nil {
		return domain.VoteHeader{}, domain.ErrMissingMetadata
	}

	header := domain.VoteHeader{
		Majority:          childText(metadata, "majority"),
		Congress:          childText(metadata, "congress"),
		Session:           childText(metadata, "session"),
		Chamber:           childText(metadata, "chamber"),
		RollCallNumber:    childText(metadata, "rollcall-num"),
		LegislationNumber: childText(metadata, "legis-num"),
		VoteQuestion:      childText(metadata, "vote-question"),
		VoteType:          childText(metadata, "vote-type"),
		VoteResult:        childText(metadata, "vote-result"),
		ActionDate:        childText(metadata, "action-date"),
		ActionTime:        attr(xmlquery.QuerySelector(metadata, actionTimeExpr), "time-etz"),
		Description:       childText(metadata, "vote-desc"),
		TotalYeas:         domain.NotAvailable,
		TotalNays:         domain.NotAvailable,
		TotalPresent:      domain.NotAvailable,
		TotalNotVoting:    domain.NotAvailable,
	}

	if totals := xmlquery.QuerySelector(root, totalsExpr); totals != nil {
		header.TotalYeas = childText(totals, "yea-total")
		header.TotalNays = childText(totals, "nay-total")
		header.TotalPresent = childText(totals, "present-total")
		header.TotalNotVoting = childText(totals, "not-voting-total")
	}

	return header, nil
}

func extractBallots(root *xmlquery.Node) ([]domain.BallotRecord, error) {
	var errs *multierror.Error
	ballots := []domain.BallotRecord{}

	for i, entry := range xmlquery.QuerySelectorAll(root, recordedVotesExpr) {
		ballot, err := extractBallot(entry)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("recorded-vote %d: %w", i+1, err))
			continue
		}
		ballots = append(ballots, ballot)
	}

	return ballots, errs.ErrorOrNil()
}

func extractBallot(entry *xmlquery.Node) (domain.BallotRecord, error) {
	legislator := xmlquery.QuerySelector(entry, legislatorExpr)
	if legislator == nil {
		return domain.BallotRecord{}, domain.ErrMissingLegislator
	}

	return domain.BallotRecord{
		MemberName: legislator.InnerText(),
		State:      attr(legislator, "state"),
		Party:      attr(legislator, "party"),
		Vote:       text(xmlquery.QuerySelector(entry, voteExpr)),
	}, nil
}

// childText returns the text of the first direct child named name.
func childText(parent *xmlquery.Node, name string) string {
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return child.InnerText()
		}
	}
	return domain.NotAvailable
}

func text(node *xmlquery.Node) string {
	if node == nil {
		return domain.NotAvailable
	}
	return node.InnerText()
}

func attr(node *xmlquery.Node, name string) string {
	if node == nil {
		return domain.NotAvailable
	}
	for _, a := range node.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return domain.NotAvailable
}
