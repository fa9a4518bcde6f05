package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/rpattn/rollcall/internal/domain"
)

func sampleHeader() domain.VoteHeader {
	header := domain.NewVoteHeader()
	header.Congress = "118"
	header.Session = "1st"
	header.Chamber = "U.S. House of Representatives"
	header.RollCallNumber = "42"
	header.VoteResult = "Passed"
	header.TotalYeas = "220"
	header.TotalNays = "210"
	return header
}

func expectedArgs(header domain.VoteHeader, ballot domain.BallotRecord) []any {
	na := pgtype.Int4{}
	return []any{
		header.Majority, header.Congress, header.Session, header.Chamber, header.RollCallNumber,
		header.LegislationNumber, header.VoteQuestion, header.VoteType, header.VoteResult,
		header.ActionDate, header.ActionTime, header.Description,
		pgtype.Int4{Int32: 220, Valid: true}, pgtype.Int4{Int32: 210, Valid: true}, na, na,
		ballot.MemberName, ballot.State, ballot.Party, ballot.Vote,
	}
}

func TestWriteInsertsOneRowPerBallotInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	header := sampleHeader()
	ballots := []domain.BallotRecord{
		{MemberName: "Smith", State: "CA", Party: "D", Vote: "Yea"},
		{MemberName: "Jones", State: "TX", Party: "R", Vote: "Nay"},
	}

	mock.ExpectBegin()
	for _, ballot := range ballots {
		mock.ExpectExec("INSERT INTO roll_call_votes").
			WithArgs(expectedArgs(header, ballot)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	written, err := NewRollCallRepository(mock).Write(context.Background(), header, ballots)
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 rows written, got %d", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteCountsOnlyInsertedRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	header := sampleHeader()
	ballots := []domain.BallotRecord{
		{MemberName: "Smith", State: "CA", Party: "D", Vote: "Yea"},
		{MemberName: "Jones", State: "TX", Party: "R", Vote: "Nay"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roll_call_votes").WithArgs(expectedArgs(header, ballots[0])...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO roll_call_votes").WithArgs(expectedArgs(header, ballots[1])...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	written, err := NewRollCallRepository(mock).Write(context.Background(), header, ballots)
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if written != 0 {
		t.Fatalf("expected duplicates to be skipped, got %d rows", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteRollsBackWholeRollCallOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	header := sampleHeader()
	ballots := []domain.BallotRecord{
		{MemberName: "Smith", State: "CA", Party: "D", Vote: "Yea"},
		{MemberName: "Jones", State: "TX", Party: "R", Vote: "Nay"},
	}

	diskFull := errors.New("could not extend file: No space left on device")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO roll_call_votes").WithArgs(expectedArgs(header, ballots[0])...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO roll_call_votes").WithArgs(expectedArgs(header, ballots[1])...).WillReturnError(diskFull)
	mock.ExpectRollback()

	written, err := NewRollCallRepository(mock).Write(context.Background(), header, ballots)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if written != 0 {
		t.Fatalf("expected no rows reported after rollback, got %d", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWriteWithoutBallotsTouchesNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	written, err := NewRollCallRepository(mock).Write(context.Background(), sampleHeader(), []domain.BallotRecord{})
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if written != 0 {
		t.Fatalf("expected 0 rows, got %d", written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database interaction: %v", err)
	}
}

func TestEnsureSchemaRunsEveryStatement(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS roll_call_votes").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingestion_logs").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := NewRollCallRepository(mock).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountAppliesFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("118", "42").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	count, err := NewRollCallRepository(mock).Count(context.Background(), RowFilter{Congress: "118", RollCallNumber: "42"})
	if err != nil {
		t.Fatalf("count returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRowFilterClause(t *testing.T) {
	where, args := RowFilter{}.clause()
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty clause, got %q %v", where, args)
	}

	where, args = RowFilter{Congress: "118", Session: "2nd"}.clause()
	if where != " WHERE congress = $1 AND session = $2" {
		t.Fatalf("unexpected clause: %q", where)
	}
	if len(args) != 2 || args[0] != "118" || args[1] != "2nd" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestTotalsRoundTripThroughNullableIntegers(t *testing.T) {
	if got := parseTotal("220"); !got.Valid || got.Int32 != 220 {
		t.Fatalf("expected 220, got %+v", got)
	}
	if got := parseTotal(domain.NotAvailable); got.Valid {
		t.Fatalf("expected sentinel to map to NULL, got %+v", got)
	}
	if got := formatTotal(parseTotal(domain.NotAvailable)); got != domain.NotAvailable {
		t.Fatalf("expected NULL to read back as %q, got %q", domain.NotAvailable, got)
	}
	if got := formatTotal(parseTotal(" 7 ")); got != "7" {
		t.Fatalf("expected 7, got %q", got)
	}
}

func TestInsertStatementCoversEveryColumn(t *testing.T) {
	for _, column := range domain.Columns {
		if !strings.Contains(insertRollCallVoteSQL, column) {
			t.Fatalf("insert statement missing column %s", column)
		}
	}
	if !strings.Contains(insertRollCallVoteSQL, "$20") || strings.Contains(insertRollCallVoteSQL, "$21") {
		t.Fatalf("expected exactly 20 placeholders: %s", insertRollCallVoteSQL)
	}
	if !strings.Contains(insertRollCallVoteSQL, "DO NOTHING") {
		t.Fatalf("expected duplicate guard in insert statement")
	}
}
