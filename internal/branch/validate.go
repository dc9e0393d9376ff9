package branch

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/joshuapassos/dbranch/internal/dbrerr"
)

// branchNamePattern matches a Btrfs-subvolume-safe and Docker-container-
// name-safe branch name, per spec §4.2.
var branchNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

func branchNameValidator(fl validator.FieldLevel) bool {
	return branchNamePattern.MatchString(fl.Field().String())
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("branchname", branchNameValidator)
	return v
}()

type branchNameInput struct {
	Name string `validate:"required,branchname"`
}

// validateBranchName rejects anything that isn't a bare
// [a-z0-9][a-z0-9-]{0,62} token before it reaches a subvolume path or a
// privileged btrfs command — in particular, names containing "/" or ".."
// that would otherwise escape the project's mount point.
func validateBranchName(name string) error {
	if err := validate.Struct(branchNameInput{Name: name}); err != nil {
		return dbrerr.New(dbrerr.KindValidation,
			"invalid branch name \""+name+"\": must match "+branchNamePattern.String())
	}
	return nil
}
