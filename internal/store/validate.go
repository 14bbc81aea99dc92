package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"contentexpiry/internal/domain"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates in and returns its parsed due time. It never touches the
// schedules table; the only read is the content-item existence lookup.
func (r *sqliteRepo) check(ctx context.Context, in domain.ScheduleInput) (time.Time, error) {
	if err := r.validate.StructPartial(in, "PostID", "ExpiryDate", "ExpiryAction"); err != nil {
		return time.Time{}, translate(err)
	}

	item, err := r.content.Get(ctx, in.PostID)
	if err != nil {
		return time.Time{}, &domain.StorageError{Op: "lookup content item", Err: err}
	}
	if item == nil {
		return time.Time{}, domain.NewValidationError("Invalid post ID.")
	}

	due, err := ParseDueDate(in.ExpiryDate)
	if err != nil {
		return time.Time{}, err
	}

	if r.actions == nil || !r.actions.Has(in.ExpiryAction) {
		return time.Time{}, domain.NewValidationError("Invalid expiry action.")
	}

	if err := r.validate.StructPartial(in, "RedirectURL", "NewStatus"); err != nil {
		return time.Time{}, translate(err)
	}
	return due, nil
}

// ParseDueDate accepts only dates that round-trip exactly through the canonical
// layout, so "2024-02-30 10:00:00" is rejected instead of rolling over.
func ParseDueDate(s string) (time.Time, error) {
	t, err := domain.ParseDate(s)
	if err != nil || domain.FormatDate(t) != s {
		return time.Time{}, domain.NewValidationError("Invalid expiry date format.")
	}
	return t, nil
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("%s", err.Error())
	}
	fe := verrs[0]
	switch fe.Field() {
	case "redirect_url":
		return domain.NewValidationError("Redirect URL is required.")
	case "new_status":
		return domain.NewValidationError("New status is required.")
	}
	return domain.NewValidationError("%s is required.", fe.Field())
}

func sanitize(in domain.ScheduleInput) domain.ScheduleInput {
	in.ExpiryDate = strings.TrimSpace(in.ExpiryDate)
	in.ExpiryAction = sanitizeKey(in.ExpiryAction)
	in.RedirectURL = strings.TrimSpace(in.RedirectURL)
	in.NewStatus = sanitizeKey(in.NewStatus)
	return in
}

// dropUnused blanks the action-specific fields the built-in action does not read.
// Custom actions keep both.
func dropUnused(in domain.ScheduleInput) domain.ScheduleInput {
	switch domain.Action(in.ExpiryAction) {
	case domain.ActionRedirect:
		in.NewStatus = ""
	case domain.ActionChangeStatus:
		in.RedirectURL = ""
	case domain.ActionUnpublish, domain.ActionDelete:
		in.RedirectURL, in.NewStatus = "", ""
	}
	return in
}

// sanitizeKey lower-cases s and keeps only [a-z0-9_-].
func sanitizeKey(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, s)
}
