package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/rollcall/internal/db"
	"github.com/rpattn/rollcall/internal/domain"
)

var insertRollCallVoteSQL = fmt.Sprintf(
	`INSERT INTO roll_call_votes (%s)
	 VALUES (%s)
	 ON CONFLICT (congress, session, chamber, roll_call_number, member_name) DO NOTHING`,
	strings.Join(domain.Columns, ", "),
	placeholders(len(domain.Columns)),
)

// rollCallRepository implements RollCallRepository on PostgreSQL
type rollCallRepository struct {
	pool DBTX
}

// NewRollCallRepository creates a new roll call repository
func NewRollCallRepository(pool DBTX) RollCallRepository {
	return &rollCallRepository{pool: pool}
}

func (r *rollCallRepository) EnsureSchema(ctx context.Context) error {
	statements, err := db.SchemaStatements()
	if err != nil {
		return err
	}

	for _, statement := range statements {
		if _, err := r.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

func (r *rollCallRepository) Write(ctx context.Context, header domain.VoteHeader, ballots []domain.BallotRecord) (int, error) {
	if len(ballots) == 0 {
		return 0, nil
	}

	written := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, ballot := range ballots {
			tag, err := tx.Exec(ctx, insertRollCallVoteSQL, rowArguments(header, ballot)...)
			if err != nil {
				return fmt.Errorf("failed to insert ballot for %s: %w", ballot.MemberName, err)
			}
			written += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

func (r *rollCallRepository) List(ctx context.Context, filter RowFilter) ([]domain.StoredRow, error) {
	where, args := filter.clause()

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		`SELECT id, %s FROM roll_call_votes%s ORDER BY id LIMIT $%d OFFSET $%d`,
		selectColumns(),
		where,
		len(args)-1,
		len(args),
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roll call votes: %w", err)
	}
	defer rows.Close()

	stored := []domain.StoredRow{}
	for rows.Next() {
		var (
			row                            domain.StoredRow
			yeas, nays, present, notVoting pgtype.Int4
		)
		if scanErr := rows.Scan(
			&row.ID,
			&row.Majority,
			&row.Congress,
			&row.Session,
			&row.Chamber,
			&row.RollCallNumber,
			&row.LegislationNumber,
			&row.VoteQuestion,
			&row.VoteType,
			&row.VoteResult,
			&row.ActionDate,
			&row.ActionTime,
			&row.Description,
			&yeas,
			&nays,
			&present,
			&notVoting,
			&row.MemberName,
			&row.State,
			&row.Party,
			&row.Vote,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan roll call vote: %w", scanErr)
		}

		row.TotalYeas = formatTotal(yeas)
		row.TotalNays = formatTotal(nays)
		row.TotalPresent = formatTotal(present)
		row.TotalNotVoting = formatTotal(notVoting)

		stored = append(stored, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate roll call votes: %w", rowsErr)
	}

	return stored, nil
}

func (r *rollCallRepository) Count(ctx context.Context, filter RowFilter) (int64, error) {
	where, args := filter.clause()

	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM roll_call_votes"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count roll call votes: %w", err)
	}

	return count, nil
}

func (f RowFilter) clause() (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(column, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("congress", f.Congress)
	add("session", f.Session)
	add("roll_call_number", f.RollCallNumber)

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func rowArguments(header domain.VoteHeader, ballot domain.BallotRecord) []any {
	return []any{
		header.Majority,
		header.Congress,
		header.Session,
		header.Chamber,
		header.RollCallNumber,
		header.LegislationNumber,
		header.VoteQuestion,
		header.VoteType,
		header.VoteResult,
		header.ActionDate,
		header.ActionTime,
		header.Description,
		parseTotal(header.TotalYeas),
		parseTotal(header.TotalNays),
		parseTotal(header.TotalPresent),
		parseTotal(header.TotalNotVoting),
		ballot.MemberName,
		ballot.State,
		ballot.Party,
		ballot.Vote,
	}
}

// parseTotal maps the sentinel, and anything else that is not an integer, to NULL.
func parseTotal(value string) pgtype.Int4 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(n), Valid: true}
}

func formatTotal(value pgtype.Int4) string {
	if !value.Valid {
		return domain.NotAvailable
	}
	return strconv.Itoa(int(value.Int32))
}

func selectColumns() string {
	columns := make([]string, len(domain.Columns))
	for i, column := range domain.Columns {
		switch column {
		case "total_yeas", "total_nays", "total_present", "total_not_voting":
			columns[i] = column
		default:
			columns[i] = fmt.Sprintf("COALESCE(%s, '%s')", column, domain.NotAvailable)
		}
	}
	return strings.Join(columns, ", ")
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(values, ", ")
}
