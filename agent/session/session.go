package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/types"
)

// CrewID is the crew a session runs unless WithCrewID overrides it.
const CrewID = "ai_wingman_crew"

// Task identifiers the session decodes.
const (
	TaskAnalyzeEmotions      = "analyze_emotions_task"
	TaskSimulatePartnerA     = "simulate_partner_a_task"
	TaskSimulatePartnerB     = "simulate_partner_b_task"
	TaskProvideCounseling    = "provide_counseling_task"
	TaskProvideEncouragement = "provide_encouragement_task"
	TaskGenerateInteraction  = "generate_interaction_task"
)

// Runner runs a crew. *crews.Manager implements it.
type Runner interface {
	Run(ctx context.Context, crewID string, vars map[string]string, opts ...crews.RunOption) (*crews.CrewResult, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithCrewID runs a different crew with the same task layout.
func WithCrewID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.crewID = id
		}
	}
}

// Manager 驱动一次冲突调解会话：构建运行上下文、执行 crew 并解码各任务输出。
type Manager struct {
	runner   Runner
	crewID   string
	validate *validator.Validate
	logger   *zap.Logger
}

// NewManager creates a session manager over runner.
func NewManager(runner Runner, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	m := &Manager{
		runner:   runner,
		crewID:   CrewID,
		validate: v,
		logger:   logger.With(zap.String("component", "session")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessConversation runs the session crew for conv and decodes every
// section of the result.
//
// An INVALID_REQUEST error means nothing ran. Errors from the crew run are
// returned as is. A CAPABILITY_ERROR is returned when the crew failed or did
// not produce the integrated dialogue. Other sections that could not be
// produced are left empty.
func (m *Manager) ProcessConversation(ctx context.Context, conv Conversation, opts ...crews.RunOption) (*Interaction, error) {
	conv.Transcript = strings.TrimSpace(conv.Transcript)
	if err := m.validate.Struct(conv); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, describeInvalid(err)).WithCause(err)
	}

	res, err := m.runner.Run(ctx, m.crewID, conv.Vars(), opts...)
	if err != nil {
		return nil, err
	}
	if res.Status != crews.CrewSucceeded {
		return nil, types.Errorf(types.ErrCapability, "session crew %s", res.Status)
	}
	dialogue, ok := res.Task(TaskGenerateInteraction)
	if !ok || dialogue.Status != crews.TaskSucceeded {
		return nil, types.NewError(types.ErrCapability, "session crew produced no integrated dialogue")
	}

	logger := m.logger.With(zap.String("run_id", res.RunID))
	out := &Interaction{
		RunID:              res.RunID,
		EmotionAnalysis:    decodeTask[EmotionAnalysis](res, TaskAnalyzeEmotions, logger, nil),
		PartnerAResponse:   decodeTask(res, TaskSimulatePartnerA, logger, partnerFallback),
		PartnerBResponse:   decodeTask(res, TaskSimulatePartnerB, logger, partnerFallback),
		CounselorResponse:  decodeTask(res, TaskProvideCounseling, logger, counselorFallback),
		EncouragerResponse: decodeTask[EncouragerResponse](res, TaskProvideEncouragement, logger, nil),
		IntegratedDialogue: strings.TrimSpace(dialogue.Output),
	}
	out.EmotionAnalysis.normalize()
	return out, nil
}

func partnerFallback(p *PartnerResponse, raw string) { p.Perspective = raw }

func counselorFallback(c *CounselorResponse, raw string) { c.Analysis = raw }

func decodeTask[T any](res *crews.CrewResult, taskID string, logger *zap.Logger, fallback func(*T, string)) T {
	tr, ok := res.Task(taskID)
	if !ok || tr.Status != crews.TaskSucceeded {
		var zero T
		logger.Debug("session section unavailable", zap.String("task", taskID))
		return zero
	}
	v, via := decodeSection(tr.Output, fallback)
	logger.Debug("session section decoded", zap.String("task", taskID), zap.String("via", via))
	return v
}

func describeInvalid(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Namespace()[strings.IndexByte(fe.Namespace(), '.')+1:], fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
