package config

import (
	"path"
	"regexp"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"

	convergeerrors "github.com/datashades/converge/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	shortnamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	octalModePattern = regexp.MustCompile(`^0?[0-7]{3,4}$`)
	packageManagers  = map[string]struct{}{"auto": {}, "apt": {}, "yum": {}, "dnf": {}}
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("shortname", func(fl validator.FieldLevel) bool {
			return shortnamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("octal_mode", func(fl validator.FieldLevel) bool {
			return octalModePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("pkg_manager", func(fl validator.FieldLevel) bool {
			_, ok := packageManagers[fl.Field().String()]
			return ok
		})

		_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
			p := fl.Field().String()
			return path.IsAbs(p) && path.Clean(p) == p
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns the shared validator with converge's custom rules.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// ValidateAttributes checks the decoded attributes, including defaults.
func ValidateAttributes(attrs *Attributes) error {
	if attrs == nil {
		return convergeerrors.NewValidationError("attributes", "attributes are nil", nil)
	}
	if err := validatorInstance().Struct(attrs); err != nil {
		return convertValidationError(err)
	}
	if attrs.Settings.ShellTimeout < 0 {
		return convergeerrors.NewValidationError("settings.shell_timeout", "must not be negative", nil)
	}
	return nil
}

// ParseMode converts an octal mode string such as "0775".
func ParseMode(s string) (uint32, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, convergeerrors.NewValidationError("mode", "invalid octal mode "+strconv.Quote(s), err)
	}
	return uint32(mode), nil
}
