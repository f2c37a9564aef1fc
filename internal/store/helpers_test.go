package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestLikePatternEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"St Mark":  "%St Mark%",
		" 100% ":   `%100\%%`,
		"st_james": `%st\_james%`,
	}
	for input, want := range cases {
		if got := likePattern(input); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestImageColumnsRoundTrip(t *testing.T) {
	columns := imageColumns([]string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"})
	if columns != [3]string{"a.jpg", "b.jpg", "c.jpg"} {
		t.Fatalf("imageColumns() = %v", columns)
	}
	images := imagesFromColumns("a.jpg", "", "c.jpg")
	if len(images) != 2 || images[0] != "a.jpg" || images[1] != "c.jpg" {
		t.Fatalf("imagesFromColumns() = %v", images)
	}
}

func TestClassify(t *testing.T) {
	err := classify("insert user", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	var dup *UniqueViolation
	if !errors.As(err, &dup) || dup.Constraint != "users_email_key" {
		t.Fatalf("classify(23505) = %v", err)
	}

	err = classify("insert parish", &pgconn.PgError{Code: "23503"})
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("classify(23503) = %v, want ErrInvalidReference", err)
	}

	err = classify("get", sql.ErrNoRows)
	if !IsNotFound(err) {
		t.Fatalf("classify(ErrNoRows) lost the sentinel: %v", err)
	}
}

func TestNullString(t *testing.T) {
	blank := "  "
	id := "arc_1"
	if nullString(nil) != nil || nullString(&blank) != nil {
		t.Fatal("blank references must be stored as NULL")
	}
	if got := nullString(&id); got != "arc_1" {
		t.Fatalf("nullString() = %v", got)
	}
}
