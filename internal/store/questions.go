package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/lostfound/internal/dbx"
	"github.com/erazemk/lostfound/internal/model"
)

// CreateQuestions inserts a full question set for a process. IDs, process ID
// and timestamps are filled in on the passed slice.
func CreateQuestions(ctx context.Context, db dbx.DBTX, processID string, questions []model.VerificationQuestion, now time.Time) error {
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.ProcessID = processID
		q.CreatedAt = now
		q.UpdatedAt = now

		_, err := db.ExecContext(ctx,
			`INSERT INTO verification_questions
			        (id, process_id, position, question, answer, additional_info, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, processID, i, q.Question, q.Answer, q.AdditionalInfo, now, now,
		)
		if err != nil {
			return fmt.Errorf("creating verification question: %w", err)
		}
	}
	return nil
}

// ListQuestions returns the questions of a process in the order they were asked.
func ListQuestions(ctx context.Context, db dbx.DBTX, processID string) ([]model.VerificationQuestion, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, process_id, question, answer, additional_info, created_at, updated_at
		 FROM verification_questions WHERE process_id = ? ORDER BY position`, processID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing verification questions: %w", err)
	}
	defer rows.Close()

	var questions []model.VerificationQuestion
	for rows.Next() {
		var q model.VerificationQuestion
		if err := rows.Scan(&q.ID, &q.ProcessID, &q.Question, &q.Answer, &q.AdditionalInfo, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning verification question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// SaveAnswers writes the Answer field of every question in the set.
func SaveAnswers(ctx context.Context, db dbx.DBTX, questions []model.VerificationQuestion, now time.Time) error {
	for i := range questions {
		q := &questions[i]
		_, err := db.ExecContext(ctx,
			`UPDATE verification_questions SET answer = ?, updated_at = ? WHERE id = ?`,
			q.Answer, now, q.ID,
		)
		if err != nil {
			return fmt.Errorf("saving answer: %w", err)
		}
		q.UpdatedAt = now
	}
	return nil
}

// DeleteQuestions removes every question of a process and returns how many
// were removed.
func DeleteQuestions(ctx context.Context, db dbx.DBTX, processID string) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM verification_questions WHERE process_id = ?`, processID)
	if err != nil {
		return 0, fmt.Errorf("deleting verification questions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted questions: %w", err)
	}
	return n, nil
}
