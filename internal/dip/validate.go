package dip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Forbidden filesystem characters are listed with 0x7C standing in for '|',
// which the validator otherwise reads as an OR separator.
type articleNameInput struct {
	Name string `validate:"required,max=200,excludesall=/\\:*?\"<>0x7C"`
}

type workNameInput struct {
	Name string `validate:"required,max=100"`
}

type voteInput struct {
	Path  string `validate:"required"`
	Value int    `validate:"oneof=-1 0 1"`
}

// ValidateArticleName checks a new article's filename (without extension).
func ValidateArticleName(name string) error {
	if strings.HasPrefix(name, ".") {
		return Validationf("validate article name", "%q must not start with a dot", name)
	}
	return check("validate article name", articleNameInput{Name: name})
}

// ValidateWorkName checks the display name of a work.
func ValidateWorkName(name string) error {
	return check("validate work name", workNameInput{Name: name})
}

// ValidateVote checks a vote value.
func ValidateVote(path string, value int) error {
	return check("validate vote", voteInput{Path: path, Value: value})
}

func check(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return Validationf(op, "%s failed %q (%s)", fe.Field(), fe.Tag(), describe(fe))
	}
	return NewError(ErrValidation, op, err)
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fmt.Sprintf("got %v", fe.Value())
	}
	return fmt.Sprintf("want %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
}
