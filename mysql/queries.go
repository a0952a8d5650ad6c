package mysql

import "fmt"

type queries struct {
	insert           string
	selectPending    string
	selectPendingTS  string
	updateFailureOne string
	updateDeadOne    string
	countPending     string
	countByStatus    string
}

func newQueries(table string) queries {
	cols := "id, job_name, payload, created_at, attempt_count"
	insert := fmt.Sprintf("INSERT INTO %s (id, job_name, payload) VALUES (?, ?, ?)", table)
	selectBase := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = ? ORDER BY id ASC LIMIT ? FOR UPDATE SKIP LOCKED",
		cols,
		table,
	)
	selectWithTS := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status = ? AND created_ts >= ? ORDER BY id ASC LIMIT ? FOR UPDATE SKIP LOCKED",
		cols,
		table,
	)
	// Single-table SET assignments run left to right, so the CASE sees the
	// incremented attempt_count.
	updateFailureOne := fmt.Sprintf(
		"UPDATE %s SET attempt_count = attempt_count + 1, last_error = ?, "+
			"status = CASE WHEN attempt_count >= ? THEN ? ELSE ? END "+
			"WHERE id = ?",
		table,
	)
	updateDeadOne := fmt.Sprintf(
		"UPDATE %s SET attempt_count = attempt_count + 1, last_error = ?, status = ? WHERE id = ?",
		table,
	)
	countPending := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", table)
	countByStatus := fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status", table)

	return queries{
		insert:           insert,
		selectPending:    selectBase,
		selectPendingTS:  selectWithTS,
		updateFailureOne: updateFailureOne,
		updateDeadOne:    updateDeadOne,
		countPending:     countPending,
		countByStatus:    countByStatus,
	}
}
