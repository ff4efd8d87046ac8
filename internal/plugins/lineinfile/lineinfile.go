package lineinfileplugin

import (
	"context"
	"fmt"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/resource"
)

type lineInFilePlugin struct{}

// New creates the line_in_file back end.
func New() plugin.Plugin {
	return &lineInFilePlugin{}
}

var _ plugin.Plugin = (*lineInFilePlugin)(nil)

func (p *lineInFilePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "line_in_file",
		Kind:        resource.KindLineInFile,
		Description: "Ensures lines, and words within lines, in text files.",
	}
}

type lineInFileEvaluationData struct {
	Config   *editConfig
	State    *FileState
	Lines    []string
	Trailing bool
	Change   *ChangeSet
}

func (p *lineInFilePlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
	cfg, err := configOf(desc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	data, err := evaluate(cfg)
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	if !data.Change.Changed {
		msg := "line configuration satisfied"
		if cfg.Edit != resource.EditEnsureLine && len(findMatches(data.State.Lines, cfg.target)) == 0 {
			msg = fmt.Sprintf("no line in %s matches %s", cfg.Path, cfg.target)
		}
		return &model.EvaluationResult{
			StepID:       desc.Identity,
			CurrentState: model.StatusSatisfied,
			Message:      msg,
			InternalData: data,
		}, nil
	}

	state := model.StatusDrifted
	if !data.State.Exists {
		state = model.StatusMissing
	}
	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   state,
		RequiresAction: true,
		Message:        fmt.Sprintf("line action needed: %s", data.Change.Action),
		Diff:           data.Change.Diff,
		InternalData:   data,
	}, nil
}

func (p *lineInFilePlugin) Apply(ctx context.Context, eval *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	cfg, err := configOf(desc)
	if err != nil {
		return nil, err
	}

	var data *lineInFileEvaluationData
	if eval != nil {
		data, _ = eval.InternalData.(*lineInFileEvaluationData)
	}
	if data == nil {
		if data, err = evaluate(cfg); err != nil {
			return nil, plugin.NewStateError(desc.Identity, err)
		}
	}

	if !data.Change.Changed {
		return &model.StepResult{
			StepID:  desc.Identity,
			Status:  model.StatusSkipped,
			Message: "no changes needed",
		}, nil
	}

	if cfg.Backup && data.State.Exists {
		original, err := encodeContent(data.State.Content, cfg.Encoding)
		if err != nil {
			return nil, plugin.NewExecutionError(desc.Identity, fmt.Errorf("failed to encode backup content: %w", err))
		}
		if _, err := createBackup(data.State.Path, original, data.State.Permissions); err != nil {
			return nil, plugin.NewExecutionError(desc.Identity, fmt.Errorf("failed to create backup: %w", err))
		}
	}

	encoded, err := encodeContent(joinLines(data.Lines, data.Trailing), cfg.Encoding)
	if err != nil {
		return nil, plugin.NewExecutionError(desc.Identity, fmt.Errorf("failed to encode content: %w", err))
	}

	if err := writeFileAtomic(data.State, encoded); err != nil {
		return &model.StepResult{
			StepID:  desc.Identity,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("failed to write file: %v", err),
			Error:   err,
		}, plugin.NewExecutionError(desc.Identity, fmt.Errorf("failed to write file: %w", err))
	}

	return &model.StepResult{
		StepID:  desc.Identity,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("line action completed: %s", data.Change.Action),
	}, nil
}

// evaluate computes the edited content without touching the file.
func evaluate(cfg *editConfig) (*lineInFileEvaluationData, error) {
	state, err := readFileState(cfg.Path, cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var (
		lines  []string
		action string
	)
	switch cfg.Edit {
	case resource.EditEnsureLine:
		lines, action = ensureLine(state.Lines, cfg)
	case resource.EditAppendToken:
		lines, action = appendToken(state.Lines, cfg)
	case resource.EditReorder:
		lines, action = reorder(state.Lines, cfg)
	}

	trailing := state.TrailingNewline || (!state.Exists && len(lines) > 0) || action == "append" || action == "insert"
	if len(lines) == 0 {
		trailing = false
	}

	return &lineInFileEvaluationData{
		Config:   cfg,
		State:    state,
		Lines:    lines,
		Trailing: trailing,
		Change:   generateChangeSet(state.Path, state.Lines, lines, action),
	}, nil
}

func configOf(desc *resource.Descriptor) (*editConfig, error) {
	if desc == nil || desc.Line == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("line_in_file payload missing"))
	}
	cfg, err := newEditConfig(desc.Line)
	if err != nil {
		return nil, plugin.NewValidationError(desc.Identity, err)
	}
	return cfg, nil
}
