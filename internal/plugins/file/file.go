package fileplugin

import (
	"context"
	"crypto/sha256"
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
	"github.com/datashades/converge/pkg/diff"
)

const defaultMode os.FileMode = 0o644

type fileEvaluationData struct {
	Target         ownership.Target
	Exists         bool
	ContentMatches bool
}

type filePlugin struct{}

// New creates the file content back end.
func New() plugin.Plugin {
	return &filePlugin{}
}

var _ plugin.Plugin = (*filePlugin)(nil)

func (p *filePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "file",
		Kind:        resource.KindFileContent,
		Description: "Writes files with exact content, owner, group and mode.",
	}
}

func (p *filePlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
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

	existing, err := os.ReadFile(spec.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("read %s: %w", spec.Path, err))
		}
		return &model.EvaluationResult{
			StepID:         desc.Identity,
			CurrentState:   model.StatusMissing,
			RequiresAction: true,
			Message:        fmt.Sprintf("%s does not exist", spec.Path),
			Diff:           diff.GenerateUnifiedDiff(nil, []byte(spec.Content), spec.Path+" (absent)", spec.Path),
			InternalData:   &fileEvaluationData{Target: target},
		}, nil
	}

	st, err := ownership.Stat(spec.Path)
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	contentMatches := hashContent(existing) == hashContent([]byte(spec.Content))
	drift := target.Drift(st)
	data := &fileEvaluationData{Target: target, Exists: true, ContentMatches: contentMatches}

	if contentMatches && len(drift) == 0 {
		return &model.EvaluationResult{
			StepID:       desc.Identity,
			CurrentState: model.StatusSatisfied,
			Message:      fmt.Sprintf("%s is up to date", spec.Path),
			InternalData: data,
		}, nil
	}

	var reasons []string
	if !contentMatches {
		reasons = append(reasons, "content differs")
	}
	reasons = append(reasons, drift...)

	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   model.StatusDrifted,
		RequiresAction: true,
		Message:        fmt.Sprintf("%s: %s", spec.Path, strings.Join(reasons, ", ")),
		Diff:           diff.GenerateUnifiedDiff(existing, []byte(spec.Content), spec.Path+" (current)", spec.Path),
		InternalData:   data,
	}, nil
}

func (p *filePlugin) Apply(ctx context.Context, eval *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}

	var data *fileEvaluationData
	if eval != nil {
		data, _ = eval.InternalData.(*fileEvaluationData)
	}
	if data == nil {
		fresh, err := p.Evaluate(ctx, desc)
		if err != nil {
			return nil, err
		}
		data = fresh.InternalData.(*fileEvaluationData)
	}

	if data.Exists && data.ContentMatches {
		if err := data.Target.Apply(spec.Path); err != nil {
			return failed(desc.Identity, err)
		}
		return &model.StepResult{
			StepID:  desc.Identity,
			Status:  model.StatusApplied,
			Message: fmt.Sprintf("updated ownership of %s", spec.Path),
		}, nil
	}

	if err := writeFileAtomic(spec.Path, []byte(spec.Content), data.Target); err != nil {
		return failed(desc.Identity, err)
	}

	verb := "updated"
	if !data.Exists {
		verb = "created"
	}
	return &model.StepResult{
		StepID:  desc.Identity,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("%s %s", verb, spec.Path),
	}, nil
}

func failed(id string, err error) (*model.StepResult, error) {
	return &model.StepResult{
		StepID:  id,
		Status:  model.StatusFailed,
		Message: err.Error(),
		Error:   err,
	}, plugin.NewExecutionError(id, err)
}

// writeFileAtomic writes through a temp file in the destination directory so
// readers never observe a partial file.
func writeFileAtomic(path string, content []byte, target ownership.Target) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if target.Mode == 0 {
		target.Mode = defaultMode
		if st, err := ownership.Stat(path); err == nil {
			target.Mode = st.Mode
		}
	}
	if err := target.Apply(tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

func specOf(desc *resource.Descriptor) (*resource.FileSpec, error) {
	if desc == nil || desc.File == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("file payload missing"))
	}
	return desc.File, nil
}
