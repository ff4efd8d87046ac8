package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	convergeerrors "github.com/datashades/converge/pkg/errors"
)

// convertValidationError turns the first validator failure into a
// ValidationError keyed by the YAML path of the field.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := yamlFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		if ve.Param() != "" {
			msg = fmt.Sprintf("%s failed validation for tag '%s=%s'", field, ve.Tag(), ve.Param())
		}
		return convergeerrors.NewValidationError(field, msg, err)
	}

	return convergeerrors.NewValidationError("attributes", err.Error(), err)
}

var fieldNames = map[string]string{
	"AppID":           "app_id",
	"CKANExt":         "ckan_ext",
	"CKANWeb":         "ckan_web",
	"DrupalWeb":       "drupal_web",
	"DSEnable":        "dsenable",
	"ConfigFile":      "config_file",
	"PackageManager":  "package_manager",
	"ShellTimeout":    "shell_timeout",
	"LockPath":        "lock_path",
	"JournalPath":     "journal_path",
	"MetricsTextfile": "metrics_textfile",
}

// yamlFieldName maps a struct namespace such as Attributes.CKANWeb.DSEnable
// to ckan_web.dsenable.
func yamlFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		name, index, _ := strings.Cut(part, "[")
		if mapped, ok := fieldNames[name]; ok {
			name = mapped
		} else {
			name = strings.ToLower(name)
		}
		if index != "" {
			name += "[" + index
		}
		out = append(out, name)
	}
	return strings.Join(out, ".")
}
