package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/dialog"
	"github.com/harunnryd/kakunin/internal/render"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

const replHelp = `Commands:
  approve                           confirm the requirement
  modify <field> <value> [reason]   change a requirement field (dotted path)
  answer <question-id> <value>      answer a question by id
  questions                         list every question
  status                            show the working requirement
  history                           show the dialog turns and changes
  cancel [reason]                   cancel the dialog
  quit                              leave; the session can be resumed later`

// REPL drives one confirmation dialog in the terminal.
type REPL struct {
	components *RuntimeComponents
	prompter   Prompter
	out        io.Writer
	formatter  *render.TableFormatter
	sessionID  string
}

func NewREPL(components *RuntimeComponents, prompter Prompter, out io.Writer) *REPL {
	return &REPL{
		components: components,
		prompter:   prompter,
		out:        out,
		formatter:  render.NewTableFormatter(),
	}
}

func (r *REPL) SessionID() string {
	return r.sessionID
}

// Open attaches to an existing session, or creates one when id is empty.
func (r *REPL) Open(ctx context.Context, id, title string) error {
	if id != "" {
		if _, err := r.components.Registry.Get(id); err != nil {
			return err
		}
		r.sessionID = id
		fmt.Fprintln(r.out, render.Muted("Resuming session "+id))
		return nil
	}

	meta, err := r.components.Registry.Create(ctx, title)
	if err != nil {
		return err
	}
	r.sessionID = meta.ID
	fmt.Fprintln(r.out, render.Muted("Session "+meta.ID))
	return nil
}

func (r *REPL) with(ctx context.Context, fn func(*confirm.Flow)) error {
	return r.components.Registry.With(ctx, r.sessionID, func(f *confirm.Flow) error {
		fn(f)
		return nil
	})
}

// Run starts (or resumes) the dialog and returns when it is approved,
// cancelled or left by the user.
func (r *REPL) Run(ctx context.Context, requirement string) error {
	if r.sessionID == "" {
		if err := r.Open(ctx, "", ""); err != nil {
			return err
		}
	}

	var state dialog.State
	if err := r.with(ctx, func(f *confirm.Flow) { state = f.State() }); err != nil {
		return err
	}

	if requirement == "" && state.Terminal() {
		return r.closed(ctx, state)
	}
	if requirement != "" || !state.Active() {
		if err := r.start(ctx, requirement); err != nil {
			return r.leave(err)
		}
	}

	if err := r.answerRequired(ctx); err != nil {
		return r.leave(err)
	}
	if err := r.answerOptional(ctx); err != nil {
		return r.leave(err)
	}

	r.printStatus(ctx)
	fmt.Fprintln(r.out, render.Muted(replHelp))

	for {
		if err := ctx.Err(); err != nil {
			return r.leave(err)
		}
		line, err := r.prompter.Command()
		if err != nil {
			return r.leave(err)
		}
		done, err := r.Execute(ctx, line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// leave maps a user abort or cancelled context onto a clean exit.
func (r *REPL) leave(err error) error {
	if errors.Is(err, ErrAborted) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		fmt.Fprintln(r.out, render.Muted(fmt.Sprintf("Dialog paused. Resume with: kakunin confirm --session %s", r.sessionID)))
		return nil
	}
	return err
}

func (r *REPL) start(ctx context.Context, requirement string) error {
	if strings.TrimSpace(requirement) == "" {
		text, err := r.prompter.Requirement()
		if err != nil {
			return err
		}
		requirement = text
	}

	fmt.Fprintln(r.out, render.Muted("Parsing requirement..."))
	var res confirm.StartResult
	if err := r.with(ctx, func(f *confirm.Flow) { res = f.Start(ctx, requirement) }); err != nil {
		return err
	}
	if !res.Success {
		fmt.Fprintln(r.out, render.Error(res.Error))
		return res.Err
	}

	fmt.Fprintln(r.out, render.Title("Summary: ")+res.Summary)
	fmt.Fprintln(r.out, render.Title("Project type: ")+res.ProjectType)
	if len(res.Features) > 0 {
		fmt.Fprintln(r.out, render.Title("Features: ")+strings.Join(res.Features, ", "))
	}
	fmt.Fprintf(r.out, "%d question(s) to confirm\n", res.QuestionsCount)
	return nil
}

func (r *REPL) answerRequired(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var q *confirm.QuestionView
		if err := r.with(ctx, func(f *confirm.Flow) { q = f.CurrentQuestion() }); err != nil {
			return err
		}
		if q == nil {
			return nil
		}

		answer, err := r.prompter.Ask(*q)
		if err != nil {
			return err
		}

		var res confirm.AnswerResult
		if err := r.with(ctx, func(f *confirm.Flow) { res = f.Answer(answer) }); err != nil {
			return err
		}
		if !res.Success {
			fmt.Fprintln(r.out, render.Error(res.Error))
			continue
		}
		if res.State == dialog.StateClarifying {
			fmt.Fprintln(r.out, render.Warn("Noted. Use 'modify project_type <type>' to correct it once the questions are done."))
		}
		if res.Message != "" {
			fmt.Fprintln(r.out, render.Success(res.Message))
		}
	}
}

// answerOptional offers each unanswered optional question once; an empty
// answer skips it.
func (r *REPL) answerOptional(ctx context.Context) error {
	var questions []confirm.QuestionView
	if err := r.with(ctx, func(f *confirm.Flow) { questions = f.Questions() }); err != nil {
		return err
	}

	for _, q := range questions {
		if q.Required || q.Answered {
			continue
		}
		answer, err := r.prompter.Ask(q)
		if err != nil {
			return err
		}
		if s, ok := answer.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}

		var res confirm.AnswerResult
		if err := r.with(ctx, func(f *confirm.Flow) { res = f.AnswerQuestion(q.ID, answer) }); err != nil {
			return err
		}
		if !res.Success {
			fmt.Fprintln(r.out, render.Error(res.Error))
		}
	}
	return nil
}

// Execute runs one command line. done reports that the dialog loop should end.
func (r *REPL) Execute(ctx context.Context, line string) (done bool, err error) {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintln(r.out, render.Error(fmt.Sprintf("cannot parse command: %v", err)))
		return false, nil
	}
	if len(args) == 0 {
		return false, nil
	}

	switch strings.ToLower(args[0]) {
	case "approve":
		return r.approve(ctx)

	case "modify":
		if len(args) < 3 {
			fmt.Fprintln(r.out, render.Warn("usage: modify <field> <value> [reason]"))
			return false, nil
		}
		reason := strings.Join(args[3:], " ")
		if reason == "" {
			reason = "changed in terminal dialog"
		}
		var res confirm.ModifyResult
		if err := r.with(ctx, func(f *confirm.Flow) { res = f.Modify(args[1], ParseValue(args[2]), reason) }); err != nil {
			return false, err
		}
		if !res.Success {
			fmt.Fprintln(r.out, render.Error(res.Error))
			return false, nil
		}
		fmt.Fprintln(r.out, render.Success(res.Message))
		return false, nil

	case "answer":
		if len(args) < 3 {
			fmt.Fprintln(r.out, render.Warn("usage: answer <question-id> <value>"))
			return false, nil
		}
		var res confirm.AnswerResult
		value := strings.Join(args[2:], " ")
		if err := r.with(ctx, func(f *confirm.Flow) { res = f.AnswerQuestion(args[1], value) }); err != nil {
			return false, err
		}
		if !res.Success {
			fmt.Fprintln(r.out, render.Error(res.Error))
			return false, nil
		}
		fmt.Fprintln(r.out, render.Success("Answer recorded"))
		return false, nil

	case "questions":
		var questions []confirm.QuestionView
		if err := r.with(ctx, func(f *confirm.Flow) { questions = f.Questions() }); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.formatter.FormatQuestions(questions))
		return false, nil

	case "status":
		r.printStatus(ctx)
		return false, nil

	case "history":
		var turns []dialog.Turn
		var changes []dialog.ChangeRecord
		if err := r.with(ctx, func(f *confirm.Flow) {
			turns = f.History()
			changes = f.Changes()
		}); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, r.formatter.FormatTurns(turns))
		fmt.Fprintln(r.out, r.formatter.FormatChanges(changes))
		return false, nil

	case "cancel":
		var res confirm.CancelResult
		reason := strings.Join(args[1:], " ")
		if err := r.with(ctx, func(f *confirm.Flow) { res = f.Cancel(reason) }); err != nil {
			return false, err
		}
		if !res.Success {
			fmt.Fprintln(r.out, render.Error(res.Error))
			return false, nil
		}
		fmt.Fprintln(r.out, render.Warn("Dialog cancelled"))
		return true, nil

	case "quit", "exit":
		fmt.Fprintln(r.out, render.Muted(fmt.Sprintf("Dialog paused. Resume with: kakunin confirm --session %s", r.sessionID)))
		return true, nil

	case "help", "?":
		fmt.Fprintln(r.out, render.Muted(replHelp))
		return false, nil

	default:
		fmt.Fprintln(r.out, render.Warn(fmt.Sprintf("unknown command %q, type 'help'", args[0])))
		return false, nil
	}
}

func (r *REPL) approve(ctx context.Context) (bool, error) {
	var res confirm.ApproveResult
	if err := r.with(ctx, func(f *confirm.Flow) { res = f.Approve() }); err != nil {
		return false, err
	}
	if !res.Success {
		fmt.Fprintln(r.out, render.Error(res.Error))
		for _, q := range res.UnansweredQuestions {
			fmt.Fprintln(r.out, "  - "+q)
		}
		return false, nil
	}

	fmt.Fprintln(r.out, render.Success("Requirement confirmed, ready for code generation"))
	data, err := yaml.Marshal(res.Requirement)
	if err != nil {
		return true, fmt.Errorf("encode requirement: %w", err)
	}
	fmt.Fprint(r.out, string(data))
	return true, nil
}

// closed reports a finished dialog instead of replacing it. Restarting takes
// an explicit requirement.
func (r *REPL) closed(ctx context.Context, state dialog.State) error {
	r.printStatus(ctx)
	if state == dialog.StateApproved {
		var final map[string]any
		if err := r.with(ctx, func(f *confirm.Flow) { final = f.FinalRequirement() }); err != nil {
			return err
		}
		data, err := yaml.Marshal(final)
		if err != nil {
			return fmt.Errorf("encode requirement: %w", err)
		}
		fmt.Fprint(r.out, string(data))
	}
	fmt.Fprintln(r.out, render.Warn(fmt.Sprintf("Session %s is %s.", r.sessionID, state)))
	fmt.Fprintln(r.out, render.Muted(fmt.Sprintf("To start over in this session, which replaces its requirement and history: kakunin confirm --session %s \"<requirement>\"", r.sessionID)))
	return nil
}

func (r *REPL) printStatus(ctx context.Context) {
	var status confirm.StatusResult
	if err := r.with(ctx, func(f *confirm.Flow) { status = f.Status() }); err != nil {
		fmt.Fprintln(r.out, render.Error(err.Error()))
		return
	}
	fmt.Fprintln(r.out, r.formatter.FormatStatus(status))
}

// ParseValue reads a command-line value as a YAML scalar or flow collection,
// so "true", "3" and "[a, b]" keep their types. Anything else stays a string.
func ParseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	if _, isMap := v.(map[string]any); isMap && !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return raw
	}
	return v
}
