package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"edusolve/api/internal/pipeline"
)

var ErrNotFound = errors.New("paper not found")

type Paper struct {
	ID            string
	Filename      string
	FileType      string
	ExtractedText string
	Solutions     string
	CreatedAt     time.Time
}

type PaperRepo struct{ DB *sql.DB }

func NewPaperRepo(db *sql.DB) *PaperRepo { return &PaperRepo{DB: db} }

var _ pipeline.Recorder = (*PaperRepo)(nil)

func (r *PaperRepo) Insert(ctx context.Context, p Paper) error {
	const q = `
insert into question_papers(id, filename, file_type, extracted_text, solutions, created_at)
values ($1,$2,$3,$4,$5,$6)`
	var fileType sql.NullString
	if p.FileType != "" {
		fileType = sql.NullString{String: p.FileType, Valid: true}
	}
	if _, err := r.DB.ExecContext(ctx, q, p.ID, p.Filename, fileType, p.ExtractedText, p.Solutions, p.CreatedAt); err != nil {
		return fmt.Errorf("insert paper %s: %w", p.ID, err)
	}
	return nil
}

func (r *PaperRepo) Get(ctx context.Context, id string) (Paper, error) {
	const q = `
select id, filename, coalesce(file_type,'') as file_type, extracted_text, solutions, created_at
from question_papers
where id = $1`
	var p Paper
	err := r.DB.QueryRowContext(ctx, q, id).
		Scan(&p.ID, &p.Filename, &p.FileType, &p.ExtractedText, &p.Solutions, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Paper{}, ErrNotFound
	}
	if err != nil {
		return Paper{}, fmt.Errorf("get paper %s: %w", id, err)
	}
	return p, nil
}

// Record stores a finished pipeline result.
func (r *PaperRepo) Record(ctx context.Context, res pipeline.Result) error {
	return r.Insert(ctx, Paper{
		ID:            res.ID,
		Filename:      res.Filename,
		FileType:      res.FileType,
		ExtractedText: res.ExtractedText,
		Solutions:     res.Solutions,
		CreatedAt:     res.ProcessedAt,
	})
}
