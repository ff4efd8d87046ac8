package directoryplugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/plugins/ownership"
	"github.com/datashades/converge/internal/resource"
)

const defaultMode os.FileMode = 0o755

type directoryEvaluationData struct {
	Target  ownership.Target
	Exists  bool
	Drifted []string
}

type directoryPlugin struct{}

// New creates the directory back end.
func New() plugin.Plugin {
	return &directoryPlugin{}
}

var _ plugin.Plugin = (*directoryPlugin)(nil)

func (p *directoryPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "directory",
		Kind:        resource.KindDirectory,
		Description: "Creates directories and converges their owner, group and mode.",
	}
}

func (p *directoryPlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	target, err := ownership.Resolve(spec.Ownership)
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	info, err := os.Stat(spec.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &model.EvaluationResult{
			StepID:         desc.Identity,
			CurrentState:   model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("directory %s does not exist", spec.Path),
			Diff:           fmt.Sprintf("Would create: %s", spec.Path),
			InternalData:   &directoryEvaluationData{Target: target},
		}, nil
	case err != nil:
		return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("stat %s: %w", spec.Path, err))
	case !info.IsDir():
		return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("%s exists and is not a directory", spec.Path))
	}

	drift := target.Drift(ownership.FromInfo(info))
	if len(drift) == 0 {
		return &model.EvaluationResult{
			StepID:       desc.Identity,
			CurrentState: model.StatusSatisfied,
			Message:      fmt.Sprintf("directory %s is up to date", spec.Path),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   model.StatusDrifted,
		RequiresAction: true,
		Message:        fmt.Sprintf("%s: %s", spec.Path, strings.Join(drift, ", ")),
		InternalData:   &directoryEvaluationData{Target: target, Exists: true, Drifted: drift},
	}, nil
}

func (p *directoryPlugin) Apply(ctx context.Context, eval *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}

	var data *directoryEvaluationData
	if eval != nil {
		data, _ = eval.InternalData.(*directoryEvaluationData)
	}
	if data == nil {
		fresh, err := p.Evaluate(ctx, desc)
		if err != nil {
			return nil, err
		}
		if !fresh.RequiresAction {
			return &model.StepResult{StepID: desc.Identity, Status: model.StatusSkipped, Message: fresh.Message}, nil
		}
		data = fresh.InternalData.(*directoryEvaluationData)
	}

	created, err := ensureDir(spec, data.Target)
	if err != nil {
		return &model.StepResult{
			StepID:  desc.Identity,
			Status:  model.StatusFailed,
			Message: err.Error(),
			Error:   err,
		}, plugin.NewExecutionError(desc.Identity, err)
	}

	msg := fmt.Sprintf("updated %s", spec.Path)
	if len(created) > 0 {
		msg = fmt.Sprintf("created %s", strings.Join(created, ", "))
	}
	return &model.StepResult{StepID: desc.Identity, Status: model.StatusApplied, Message: msg}, nil
}

// ensureDir creates spec.Path, and its missing parents when recursive, and
// applies ownership to every directory it created and to the leaf.
func ensureDir(spec *resource.DirSpec, target ownership.Target) ([]string, error) {
	var missing []string
	for dir := filepath.Clean(spec.Path); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(dir); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		missing = append(missing, dir)
		if dir == filepath.Dir(dir) {
			break
		}
	}

	if len(missing) > 1 && !spec.Recursive {
		return nil, fmt.Errorf("parent of %s does not exist and recursive is not set", spec.Path)
	}

	mode := target.Mode
	if mode == 0 {
		mode = defaultMode
	}

	// Create outermost first.
	created := make([]string, 0, len(missing))
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], mode); err != nil && !errors.Is(err, fs.ErrExist) {
			return created, fmt.Errorf("mkdir %s: %w", missing[i], err)
		}
		if err := target.Apply(missing[i]); err != nil {
			return created, err
		}
		created = append(created, missing[i])
	}

	if len(created) == 0 {
		if err := target.Apply(spec.Path); err != nil {
			return nil, err
		}
	}
	return created, nil
}

func specOf(desc *resource.Descriptor) (*resource.DirSpec, error) {
	if desc == nil || desc.Dir == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("directory payload missing"))
	}
	return desc.Dir, nil
}
