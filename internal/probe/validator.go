// Package probe collects ranked lists from a generator for every
// (entity, locale) context, validating each list and stopping early once
// split halves of the sample agree on the top of the ranking.
package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

var schemePattern = regexp.MustCompile(`(?i)^https?://`)

// itemRules is the shape a list element must satisfy after trimming.
type itemRules struct {
	Brand  string `validate:"required"`
	Site   string `validate:"required,url"`
	Locale string `validate:"min=2,max=10"`
}

var _ ports.ListValidator = (*Validator)(nil)

// Validator checks generated lists element by element. The first invalid
// element rejects the list and is reported to the observer.
type Validator struct {
	validate *validator.Validate
	observer ports.ValidationObserver
}

// NewValidator returns a validator reporting to observer. A nil observer
// discards reports.
func NewValidator(observer ports.ValidationObserver) *Validator {
	return &Validator{validate: validator.New(), observer: observer}
}

// Validate returns an error wrapping domain.ErrInvalidList when items is
// empty or any element fails the item rules.
func (v *Validator) Validate(items []domain.ListItem) error {
	if len(items) == 0 {
		v.report(-1, domain.ListItem{}, "list empty")
		return fmt.Errorf("%w: list empty", domain.ErrInvalidList)
	}
	for i, item := range items {
		rules := itemRules{
			Brand:  strings.TrimSpace(item.Brand),
			Site:   normalizeSite(item.Site),
			Locale: item.Locale,
		}
		if err := v.validate.Struct(rules); err != nil {
			reason := describe(err)
			v.report(i, item, reason)
			verr := domain.NewValidationError(fmt.Sprintf("item %d", i))
			verr.AddError(reason)
			return fmt.Errorf("%w: %w", domain.ErrInvalidList, verr)
		}
	}
	return nil
}

func (v *Validator) report(index int, item domain.ListItem, reason string) {
	if v.observer != nil {
		v.observer.OnInvalid(index, item, reason)
	}
}

// normalizeSite prefixes scheme-less sites with https:// so bare hosts such
// as "nike.com" validate as URLs.
func normalizeSite(site string) string {
	site = strings.TrimSpace(site)
	if site == "" || schemePattern.MatchString(site) {
		return site
	}
	return "https://" + strings.TrimLeft(site, "/")
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " missing"
	case "url":
		return field + " not a url"
	default:
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	}
}

// LogObserver writes rejected elements to a slog logger at debug level.
type LogObserver struct {
	Logger *slog.Logger
}

// OnInvalid implements ports.ValidationObserver.
func (o LogObserver) OnInvalid(index int, item domain.ListItem, reason string) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("list element rejected",
		"index", index,
		"reason", reason,
		"brand", item.Brand,
		"site", item.Site,
		"locale", item.Locale,
	)
}
